package flows

// Deps groups flow dependency sets. The root engine builds this once and
// delegates each request method to the matching flow.
type Deps struct {
	Login          LoginDeps
	Logout         LogoutDeps
	Resolve        ResolveDeps
	Activation     ActivationDeps
	Register       RegisterDeps
	ChangePassword ChangePasswordDeps
	Resend         ResendDeps
}
