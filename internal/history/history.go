// Package history persists per-session conversation logs.
//
// A log is read and written as a whole: callers Load it, append a turn, and
// Save the result. Every backend stores the log as a pretty-printed JSON
// array under the key "{session_id}.json". There is no locking between
// concurrent writers of the same session; the last Save wins.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrStorage matches every failure reported by a backend.
	ErrStorage = errors.New("storage error")
	// ErrInvalidSessionID is returned for ids that cannot be used as a record name.
	ErrInvalidSessionID = errors.New("invalid session id")
)

// maxSessionIDLen bounds ids so they stay valid file and object names.
const maxSessionIDLen = 256

// Store maps a session id to its ordered message log.
type Store interface {
	// Load returns the stored log, or an empty slice if the session has none.
	Load(ctx context.Context, sessionID string) ([]Message, error)
	// Save overwrites the stored log for the session.
	Save(ctx context.Context, sessionID string, messages []Message) error
	// Name identifies the backend for status reporting.
	Name() string
}

// StorageError wraps a backend failure with the operation and session involved.
type StorageError struct {
	Backend   string
	Op        string
	SessionID string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s %q: %v", e.Backend, e.Op, e.SessionID, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

func storageErr(backend, op, sessionID string, err error) error {
	return &StorageError{Backend: backend, Op: op, SessionID: sessionID, Err: err}
}

// ValidateSessionID rejects ids that could escape a store root or produce an
// unusable record name.
func ValidateSessionID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidSessionID)
	case len(id) > maxSessionIDLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidSessionID, maxSessionIDLen)
	case id == "." || id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	case strings.ContainsAny(id, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidSessionID, id)
	}
	return nil
}

// Key returns the record name for a session.
func Key(sessionID string) (string, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	return sessionID + ".json", nil
}

// Encode renders a log the way every backend stores it.
func Encode(messages []Message) ([]byte, error) {
	if messages == nil {
		messages = []Message{}
	}
	return json.MarshalIndent(messages, "", "  ")
}

// Decode parses a stored log. Empty input decodes to an empty log.
func Decode(data []byte) ([]Message, error) {
	out := []Message{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Message{}
	}
	return out, nil
}

// Observer receives timing for every store operation.
type Observer interface {
	ObserveStore(backend, op string, d time.Duration, err error)
}

type instrumented struct {
	Store
	obs Observer
}

// Instrument reports each Load and Save of s to obs.
func Instrument(s Store, obs Observer) Store {
	if obs == nil {
		return s
	}
	return &instrumented{Store: s, obs: obs}
}

func (i *instrumented) Load(ctx context.Context, sessionID string) ([]Message, error) {
	start := time.Now()
	msgs, err := i.Store.Load(ctx, sessionID)
	i.obs.ObserveStore(i.Name(), "load", time.Since(start), err)
	return msgs, err
}

func (i *instrumented) Save(ctx context.Context, sessionID string, messages []Message) error {
	start := time.Now()
	err := i.Store.Save(ctx, sessionID, messages)
	i.obs.ObserveStore(i.Name(), "save", time.Since(start), err)
	return err
}

// Close closes the wrapped store when it holds resources.
func (i *instrumented) Close() error {
	if c, ok := i.Store.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
