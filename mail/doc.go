// Package mail delivers activation messages for goAccess.
//
// [Outbox] implements goAccess.Mailer: it renders the activation link into a
// [Message], queues it without blocking the caller and hands it to a [Sender]
// from a single worker goroutine, retrying transient failures. [LogSender] is
// the development Sender; production deployments plug in their own transport.
package mail
