package redis

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for storage failure classification. Use errors.Is(err,
// ErrXxx) for typed assertions rather than string matching.
var (
	ErrNotFound  = errors.New("record not found")
	ErrTimeout   = errors.New("operation timed out")
	ErrNetwork   = errors.New("network error")
	ErrAuth      = errors.New("authentication failed")
	ErrCorrupted = errors.New("record corrupted")
)

// StorageError wraps an underlying error with a classification. It
// preserves the original error in the chain for inspection via errors.As.
type StorageError struct {
	Kind error
	Op   string
	Key  string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func wrapError(err error, op, key string) error {
	if err == nil {
		return nil
	}
	return &StorageError{Kind: classifyError(err), Op: op, Key: key, Err: err}
}

type errorPattern struct {
	patterns []string
	kind     error
}

// classifierTable is checked in order; the first match wins.
var classifierTable = []errorPattern{
	{[]string{"redis: nil", "no such key"}, ErrNotFound},
	{[]string{"i/o timeout", "context deadline exceeded", "timeout"}, ErrTimeout},
	{[]string{"connection refused", "no route to host", "network is unreachable", "dial tcp", "broken pipe", "EOF"}, ErrNetwork},
	{[]string{"NOAUTH", "WRONGPASS", "invalid password", "authentication"}, ErrAuth},
	{[]string{"cjson", "json decode", "invalid strategyData"}, ErrCorrupted},
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	errStr := err.Error()
	for _, entry := range classifierTable {
		if containsAny(errStr, entry.patterns...) {
			return entry.kind
		}
	}
	return errors.New("storage error")
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
