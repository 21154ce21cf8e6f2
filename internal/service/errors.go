package service

import "fmt"

// VaultServiceError wraps errors from the vault service with context.
type VaultServiceError struct {
	// Operation is the operation that failed (e.g., "ingest", "open")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for VaultServiceError.
func (e *VaultServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vault service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("vault service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *VaultServiceError) Unwrap() error {
	return e.Err
}

// newVaultServiceError creates a new VaultServiceError.
func newVaultServiceError(operation, message string, err error) *VaultServiceError {
	return &VaultServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
