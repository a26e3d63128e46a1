// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunResolve, RunRedeemActivation, etc.) accepts a
// typed dependency struct and returns results without side-effects beyond those
// dependencies. Expected authentication failures come back as status values;
// only infrastructure faults come back as errors.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store, token signer, password
// hasher, throttle, user directory, audit and metrics. They do NOT own any of
// these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goAccess (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency fields.
package flows
