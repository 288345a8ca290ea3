package model

import "fmt"

// OperationKind is the mutation reported by the change feed.
type OperationKind string

const (
	OpInsert  OperationKind = "insert"
	OpUpdate  OperationKind = "update"
	OpReplace OperationKind = "replace"
	OpDelete  OperationKind = "delete"
)

// ParseOperationKind maps a driver or config string onto a known kind.
func ParseOperationKind(s string) (OperationKind, error) {
	switch op := OperationKind(s); op {
	case OpInsert, OpUpdate, OpReplace, OpDelete:
		return op, nil
	default:
		return "", fmt.Errorf("unknown operation kind %q", s)
	}
}

// ResumeToken is an opaque cursor into a change feed. Only the source that
// issued it knows how to interpret the bytes.
type ResumeToken []byte

func (t ResumeToken) IsZero() bool { return len(t) == 0 }

func (t ResumeToken) String() string { return string(t) }

// ChangeRecord is a single notification received from the feed.
// [IMMUTABLE] Produced by the storage layer and never modified afterwards.
type ChangeRecord struct {
	Op         OperationKind
	DocumentID string
	// Document is the full current document; nil when the feed did not carry it.
	Document map[string]any
	Token    ResumeToken
}
