package domain

import "time"

// AuditEventKind categorises an audit record.
type AuditEventKind string

// Audit event kinds.
const (
	AuditQuery        AuditEventKind = "query"
	AuditIngest       AuditEventKind = "ingest"
	AuditAccessDenied AuditEventKind = "access_denied"
	AuditAuth         AuditEventKind = "auth"
	AuditConfigChange AuditEventKind = "config_change"
	AuditSystemStart  AuditEventKind = "start"
	AuditSystemStop   AuditEventKind = "stop"
	AuditError        AuditEventKind = "error"
)

// IsValid returns true if the kind is recognised.
func (k AuditEventKind) IsValid() bool {
	switch k {
	case AuditQuery, AuditIngest, AuditAccessDenied, AuditAuth,
		AuditConfigChange, AuditSystemStart, AuditSystemStop, AuditError:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (k AuditEventKind) String() string {
	return string(k)
}

// AuditEvent is an append-only record of a security-relevant action.
// Query events carry only QueryHash, never the query text.
type AuditEvent struct {
	// ID is assigned by the log when empty.
	ID string

	// Timestamp is assigned by the log when zero.
	Timestamp time.Time

	Kind   AuditEventKind
	UserID string

	// Classification is the level involved in the action.
	Classification Classification

	// Details is free-form context (counts, document ids, reasons).
	Details map[string]any

	// QueryHash is the hex digest of the query text, if any.
	QueryHash string

	Success bool
}

// AuditFailure describes a record that could not be read back.
type AuditFailure struct {
	// Line is the 1-based line number in the log artifact.
	Line int

	// Err is the cause, typically wrapping ErrDecryption or ErrCorrupt.
	Err error
}

// AuditReadResult holds readable events and per-record failures.
type AuditReadResult struct {
	Events   []AuditEvent
	Failures []AuditFailure
}

// AuditVerifyReport summarises a hash-chain walk over the log.
type AuditVerifyReport struct {
	// Records is the number of readable records.
	Records int

	// BrokenLinks lists line numbers whose prev_hash does not match.
	BrokenLinks []int

	// BadHashes lists line numbers whose record hash does not match its content.
	BadHashes []int

	// Failures lists unreadable lines.
	Failures []AuditFailure
}

// Intact reports whether the chain verified without any problem.
func (r AuditVerifyReport) Intact() bool {
	return len(r.BrokenLinks) == 0 && len(r.BadHashes) == 0 && len(r.Failures) == 0
}
