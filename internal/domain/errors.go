// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration is returned for fatal configuration problems such as a
	// missing or malformed master key. Startup must abort on this error.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrStorage is returned when a storage backend operation fails. At the
	// ingestion boundary it is user-facing and non-retryable; inside job
	// handlers it is retryable.
	ErrStorage = errors.New("storage operation failed")

	// ErrEncryption is returned when encrypting a document or wrapping a
	// document key fails. Fatal for that document.
	ErrEncryption = errors.New("encryption failed")

	// ErrDecryption is returned when an AEAD open fails, which covers both
	// ciphertext tampering and a wrong master key.
	ErrDecryption = errors.New("decryption failed")

	// ErrJobTimeout is returned when a job handler exceeds its hard timeout.
	// The job follows the normal retry policy.
	ErrJobTimeout = errors.New("job timed out")

	// ErrJobExhausted is returned when a job has used up its retry budget and
	// has been dead-lettered. Requires operator attention.
	ErrJobExhausted = errors.New("job retry budget exhausted")

	// ErrRateLimited is returned when a principal exceeds its admission
	// budget. The caller must back off; this is not a fault.
	ErrRateLimited = errors.New("rate limited")

	// ErrOrphanRecord is returned when a document record references a storage
	// object that no longer exists. The record is deleted as part of
	// returning this error, so a retry observes not-found.
	ErrOrphanRecord = errors.New("orphaned document record")

	// ErrDocumentNotFound is returned when a document does not exist.
	ErrDocumentNotFound = errors.New("document not found")
)
