// Package retry runs fetch operations with exponential backoff and full
// jitter.
//
// Errors are classified with model.ClassifyFetchError: transient failures
// are retried, permanent and unavailable failures return immediately. A
// server-requested Retry-After wait is honored when it is longer than the
// computed backoff.
package retry
