// Package docstore is the document store client used by the identity and membership core: keyed JSON documents in
// named collections, merge writes, one atomic conditional write, and per-document change subscriptions.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no document exists for the collection/key.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrAlreadyExists is returned by Create when the key is already taken.
	ErrAlreadyExists = errors.New("docstore: document already exists")
	// ErrConditionFailed is returned by PutIf when the stored document does not match the condition.
	ErrConditionFailed = errors.New("docstore: condition not met")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("docstore: store closed")
)

// Collection names shared by the repositories. Field names inside documents are the wire format and must stay stable.
const (
	CollectionUsers         = "users"
	CollectionOrganizations = "organizations"
	CollectionInviteCodes   = "invite_codes"
	CollectionCredentials   = "credentials"
	CollectionAuditLogs     = "audit_logs"
	CollectionPolicies      = "policies"
)

// Fields is a set of top-level document fields. Values are JSON-encoded by the store.
type Fields map[string]any

// Document is a stored document. Data is a JSON object.
type Document struct {
	Collection string
	Key        string
	Data       json.RawMessage
}

// Decode unmarshals the document data into v.
func (d *Document) Decode(v any) error {
	if d == nil {
		return ErrNotFound
	}
	return json.Unmarshal(d.Data, v)
}

// Snapshot is the state of one document as delivered to a subscriber. Exists is false when the document is missing.
type Snapshot struct {
	Collection string
	Key        string
	Exists     bool
	Data       json.RawMessage
}

// Decode unmarshals the snapshot data into v. Returns ErrNotFound when the document does not exist.
func (s Snapshot) Decode(v any) error {
	if !s.Exists {
		return ErrNotFound
	}
	return json.Unmarshal(s.Data, v)
}

// FilterOp selects how a Filter matches a document field.
type FilterOp int

const (
	// OpEq matches when the field equals Value.
	OpEq FilterOp = iota
	// OpArrayContains matches when the field is an array holding an element that contains Value
	// (JSON containment: objects match on the subset of keys given in Value).
	OpArrayContains
)

// Filter is one predicate of a Query. All filters of a query must match.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Eq returns a filter matching documents whose field equals v.
func Eq(field string, v any) Filter {
	return Filter{Field: field, Op: OpEq, Value: v}
}

// ArrayContains returns a filter matching documents whose array field holds an element containing v.
func ArrayContains(field string, v any) Filter {
	return Filter{Field: field, Op: OpArrayContains, Value: v}
}

// ChangeFunc receives document snapshots. Calls for one subscription are never concurrent.
type ChangeFunc func(Snapshot)

// ErrorFunc receives subscription errors.
type ErrorFunc func(error)

// Unsubscribe stops a subscription. Safe to call more than once.
type Unsubscribe func()

// Store is the document store client contract.
type Store interface {
	// Get returns the document, or ErrNotFound.
	Get(ctx context.Context, collection, key string) (*Document, error)
	// Put writes fields. With merge only the given top-level fields are overwritten; otherwise the document is replaced.
	Put(ctx context.Context, collection, key string, fields Fields, merge bool) error
	// Create writes a new document; returns ErrAlreadyExists if the key is taken.
	Create(ctx context.Context, collection, key string, fields Fields) error
	// PutIf merges fields only if every field in cond equals the stored value, as one atomic write.
	// Returns ErrNotFound if the document is missing and ErrConditionFailed if cond does not hold.
	PutIf(ctx context.Context, collection, key string, cond, fields Fields) error
	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, key string) error
	// Subscribe delivers an initial snapshot and then a snapshot after every change to the document, in write order.
	// Bursts of changes may be coalesced into one snapshot of the latest state. The subscription ends on
	// Unsubscribe or when ctx is done.
	Subscribe(ctx context.Context, collection, key string, onChange ChangeFunc, onError ErrorFunc) (Unsubscribe, error)
	// Query returns the documents of collection matching all filters, ordered by key.
	Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases resources and ends all subscriptions.
	Close() error
}

// FieldsOf converts a JSON-tagged struct into top-level Fields.
func FieldsOf(v any) (Fields, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("docstore: value is not a JSON object: %w", err)
	}
	out := make(Fields, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out, nil
}

func encodeFields(f Fields) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(f))
	for k, v := range f {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("docstore: encode field %q: %w", k, err)
		}
		out[k] = raw
	}
	return out, nil
}

func validateKey(collection, key string) error {
	if collection == "" || key == "" {
		return errors.New("docstore: collection and key are required")
	}
	return nil
}
