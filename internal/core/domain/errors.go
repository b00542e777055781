package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Validation Errors.

	// ErrInvalidClassification indicates an unknown classification name.
	ErrInvalidClassification = errors.New("invalid classification")

	// ErrMissingMetadata indicates a document lacks a mandatory metadata key.
	ErrMissingMetadata = errors.New("missing mandatory metadata")

	// ErrDimensionMismatch indicates a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrQueryTooShort indicates a query below the minimum length.
	ErrQueryTooShort = errors.New("query too short")

	// ErrUnknownRole indicates a role name absent from the policy.
	ErrUnknownRole = errors.New("unknown role")

	// ErrIndexAlignment indicates the vector index parallel arrays diverged.
	ErrIndexAlignment = errors.New("index arrays out of alignment")

	// Persistence Errors.

	// ErrCorrupt indicates a persisted artifact could not be decoded.
	ErrCorrupt = errors.New("corrupt artifact")

	// ErrDecryption is the umbrella for every authenticated-decryption failure.
	// The specific causes below all satisfy errors.Is(err, ErrDecryption).
	ErrDecryption = errors.New("decryption failed")

	// ErrWrongKey indicates the artifact was sealed under a different key.
	ErrWrongKey = &decryptionError{msg: "sealed with a different key"}

	// ErrTampered indicates authentication of the ciphertext failed.
	ErrTampered = &decryptionError{msg: "ciphertext failed authentication"}

	// ErrTruncated indicates the sealed blob is shorter than its header.
	ErrTruncated = &decryptionError{msg: "sealed blob truncated"}

	// ErrNotEncrypted indicates plaintext where a sealed blob was expected.
	ErrNotEncrypted = &decryptionError{msg: "artifact is not encrypted"}

	// Access Errors.

	// ErrAccessDenied indicates insufficient permission or clearance.
	ErrAccessDenied = errors.New("access denied")

	// ErrUnknownUser indicates the user id is not registered with the gate.
	ErrUnknownUser = errors.New("unknown user")

	// ErrUserInactive indicates the user exists but is deactivated.
	ErrUserInactive = errors.New("user inactive")

	// Upstream Errors.

	// ErrLLMUnavailable indicates the generation service failed or is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service failed or is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrStoreUnavailable indicates the metadata store could not serve a request.
	ErrStoreUnavailable = errors.New("metadata store unavailable")

	// ErrAuditWrite indicates an audit record could not be persisted.
	// Callers must surface it; audit integrity is not best-effort.
	ErrAuditWrite = errors.New("audit write failed")
)

// decryptionError is a specific decryption failure that also matches ErrDecryption.
type decryptionError struct {
	msg string
}

func (e *decryptionError) Error() string {
	return "decryption failed: " + e.msg
}

// Is reports whether target is the ErrDecryption umbrella.
func (e *decryptionError) Is(target error) bool {
	return target == ErrDecryption
}
