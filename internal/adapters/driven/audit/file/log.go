package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/logger"
)

// Ensure Log implements the interface.
var _ driven.AuditLog = (*Log)(nil)

// DefaultFile is the log path relative to the data directory.
const DefaultFile = "audit/audit.log"

// maxLineBytes bounds a single record line. Longer lines are skipped and
// reported as unreadable.
const maxLineBytes = 4 << 20

// genesisHash is the prev_hash of the first record.
var genesisHash = hex.EncodeToString(make([]byte, 32))

// sealedAAD binds sealed lines to the audit log.
var sealedAAD = []byte("bastion.audit-record")

// Config configures the log.
type Config struct {
	// Path is the log file.
	Path string

	// Sealer encrypts each record. Nil writes plain JSON lines.
	Sealer driven.Sealer
}

// envelope is one line of the log. Event holds the exact bytes hashed.
type envelope struct {
	Seq        uint64          `json:"seq"`
	PrevHash   string          `json:"prev_hash"`
	Event      json.RawMessage `json:"event"`
	RecordHash string          `json:"record_hash"`
}

// record is the stored form of domain.AuditEvent.
type record struct {
	ID             string                `json:"id"`
	Timestamp      time.Time             `json:"timestamp"`
	Kind           domain.AuditEventKind `json:"kind"`
	UserID         string                `json:"user_id"`
	Classification domain.Classification `json:"classification"`
	Details        map[string]any        `json:"details,omitempty"`
	QueryHash      string                `json:"query_hash,omitempty"`
	Success        bool                  `json:"success"`
}

// Log is a hash-chained JSON lines audit log.
type Log struct {
	cfg Config

	mu       sync.Mutex
	file     *os.File
	seq      uint64
	lastHash string
}

// Open opens or creates the log and positions the chain after the last
// readable record.
func Open(cfg Config) (*Log, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: audit log path is empty", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("%w: create audit directory: %v", domain.ErrAuditWrite, err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: open audit log: %v", domain.ErrAuditWrite, err)
	}

	l := &Log{cfg: cfg, file: f, lastHash: genesisHash}
	err = l.scan(func(_ int, env *envelope, _ error) {
		if env != nil {
			l.seq = env.Seq
			l.lastHash = env.RecordHash
		}
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := terminateTail(f); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// terminateTail ends a torn last line with a newline so the next record
// starts on a line of its own. The torn bytes stay in place and read back
// as an unreadable line.
func terminateTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat audit log: %v", domain.ErrAuditWrite, err)
	}
	if info.Size() == 0 {
		return nil
	}
	r, err := os.Open(f.Name())
	if err != nil {
		return fmt.Errorf("%w: open audit log for reading: %v", domain.ErrAuditWrite, err)
	}
	defer r.Close()
	last := make([]byte, 1)
	if _, err := r.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("%w: read audit log tail: %v", domain.ErrAuditWrite, err)
	}
	if last[0] == '\n' {
		return nil
	}
	logger.Warn("audit: last line of %s is incomplete, terminating it", f.Name())
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("%w: terminate torn line: %v", domain.ErrAuditWrite, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", domain.ErrAuditWrite, err)
	}
	return nil
}

// Append writes one event and syncs it to disk.
func (l *Log) Append(ctx context.Context, event domain.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuditWrite, err)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(toRecord(event))
	if err != nil {
		return fmt.Errorf("%w: encode event: %v", domain.ErrAuditWrite, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("%w: log is closed", domain.ErrAuditWrite)
	}

	env := envelope{Seq: l.seq + 1, PrevHash: l.lastHash, Event: body}
	env.RecordHash = hashRecord(env.Seq, env.PrevHash, env.Event)

	line, err := l.encodeLine(&env)
	if err != nil {
		return err
	}
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("%w: write: %v", domain.ErrAuditWrite, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", domain.ErrAuditWrite, err)
	}

	l.seq = env.Seq
	l.lastHash = env.RecordHash
	logger.Debug("audit: appended %s event #%d for %s", event.Kind, env.Seq, event.UserID)
	return nil
}

// Read returns the most recent readable events, oldest first.
func (l *Log) Read(ctx context.Context, limit int) (domain.AuditReadResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.AuditReadResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var result domain.AuditReadResult
	err := l.scan(func(line int, env *envelope, lineErr error) {
		if lineErr == nil {
			var rec record
			if err := json.Unmarshal(env.Event, &rec); err != nil {
				lineErr = fmt.Errorf("%w: event body: %v", domain.ErrCorrupt, err)
			} else {
				result.Events = append(result.Events, rec.toEvent())
				return
			}
		}
		logger.Warn("audit: line %d unreadable: %v", line, lineErr)
		result.Failures = append(result.Failures, domain.AuditFailure{Line: line, Err: lineErr})
	})
	if err != nil {
		return domain.AuditReadResult{}, err
	}

	if limit > 0 && len(result.Events) > limit {
		result.Events = result.Events[len(result.Events)-limit:]
	}
	return result, nil
}

// Verify walks the whole chain. A link after an unreadable line cannot be
// checked and is skipped.
func (l *Log) Verify(ctx context.Context) (domain.AuditVerifyReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.AuditVerifyReport{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		report   domain.AuditVerifyReport
		prevSeq  uint64
		prevHash = genesisHash
		known    = true
	)
	err := l.scan(func(line int, env *envelope, lineErr error) {
		if lineErr != nil {
			report.Failures = append(report.Failures, domain.AuditFailure{Line: line, Err: lineErr})
			known = false
			return
		}
		report.Records++
		if hashRecord(env.Seq, env.PrevHash, env.Event) != env.RecordHash {
			report.BadHashes = append(report.BadHashes, line)
		}
		if known && (env.PrevHash != prevHash || env.Seq != prevSeq+1) {
			report.BrokenLinks = append(report.BrokenLinks, line)
		}
		prevSeq = env.Seq
		prevHash = env.RecordHash
		known = true
	})
	if err != nil {
		return domain.AuditVerifyReport{}, err
	}
	return report, nil
}

// Close closes the file. Further appends fail.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// scan reads every non-empty line and hands the decoded envelope, or the
// reason it could not be decoded, to fn. Line numbers are 1-based.
func (l *Log) scan(fn func(line int, env *envelope, err error)) error {
	f, err := os.Open(l.cfg.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open audit log for reading: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	for line := 1; ; line++ {
		raw, tooLong, err := readLine(r, maxLineBytes)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: reading audit log: %v", domain.ErrCorrupt, err)
		}
		switch raw = bytes.TrimSpace(raw); {
		case tooLong:
			fn(line, nil, fmt.Errorf("%w: line exceeds %d bytes", domain.ErrCorrupt, maxLineBytes))
		case len(raw) > 0:
			env, decodeErr := l.decodeLine(raw)
			fn(line, env, decodeErr)
		}
		if err != nil {
			return nil
		}
	}
}

// readLine returns the next line without its newline. A line longer than
// limit is consumed but not kept, and tooLong is set.
func readLine(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		frag, err := r.ReadSlice('\n')
		if !tooLong {
			line = append(line, frag...)
			if len(bytes.TrimSuffix(line, []byte{'\n'})) > limit {
				line, tooLong = nil, true
			}
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return bytes.TrimSuffix(line, []byte{'\n'}), tooLong, err
		}
	}
}

func (l *Log) encodeLine(env *envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: encode record: %v", domain.ErrAuditWrite, err)
	}
	if l.cfg.Sealer != nil {
		sealed, err := l.cfg.Sealer.Seal(data, sealedAAD)
		if err != nil {
			return nil, fmt.Errorf("%w: seal record: %v", domain.ErrAuditWrite, err)
		}
		data = []byte(base64.StdEncoding.EncodeToString(sealed))
	}
	return append(data, '\n'), nil
}

func (l *Log) decodeLine(raw []byte) (*envelope, error) {
	plain := raw[0] == '{'
	switch {
	case l.cfg.Sealer != nil && plain:
		return nil, fmt.Errorf("%w: plaintext record in sealed log", domain.ErrNotEncrypted)
	case l.cfg.Sealer == nil && !plain:
		return nil, fmt.Errorf("%w: sealed record but encryption is disabled", domain.ErrWrongKey)
	case l.cfg.Sealer != nil:
		sealed, err := base64.StdEncoding.DecodeString(string(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTruncated, err)
		}
		if raw, err = l.cfg.Sealer.Open(sealed, sealedAAD); err != nil {
			return nil, err
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: record: %v", domain.ErrCorrupt, err)
	}
	if env.Seq == 0 || env.RecordHash == "" || len(env.Event) == 0 {
		return nil, fmt.Errorf("%w: record is missing chain fields", domain.ErrCorrupt)
	}
	return &env, nil
}

// hashRecord is the chained digest of one record.
func hashRecord(seq uint64, prevHash string, event []byte) string {
	h := blake3.New()
	h.Write([]byte(strconv.FormatUint(seq, 10) + "\n" + prevHash + "\n"))
	h.Write(event)
	return hex.EncodeToString(h.Sum(nil))
}

func toRecord(e domain.AuditEvent) record {
	return record{
		ID:             e.ID,
		Timestamp:      e.Timestamp.UTC(),
		Kind:           e.Kind,
		UserID:         e.UserID,
		Classification: e.Classification,
		Details:        e.Details,
		QueryHash:      e.QueryHash,
		Success:        e.Success,
	}
}

func (r record) toEvent() domain.AuditEvent {
	return domain.AuditEvent{
		ID:             r.ID,
		Timestamp:      r.Timestamp,
		Kind:           r.Kind,
		UserID:         r.UserID,
		Classification: r.Classification,
		Details:        r.Details,
		QueryHash:      r.QueryHash,
		Success:        r.Success,
	}
}
