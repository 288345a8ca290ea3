package model

import "slices"

// TopicConfig describes one live stream the dashboard can subscribe to.
type TopicConfig struct {
	Name       string
	Collection string
	// Operations is the interest set. Records outside of it are skipped.
	Operations []OperationKind
	// LookupOnUpdate re-fetches the owning aggregate when an update record does
	// not carry what the client needs.
	LookupOnUpdate bool
	// RequiredField must be present in the document for it to be forwarded
	// as-is; when missing and LookupOnUpdate is set the aggregate is re-read.
	RequiredField string
}

// Interested reports whether the topic forwards records of the given kind.
func (t TopicConfig) Interested(op OperationKind) bool {
	return slices.Contains(t.Operations, op)
}

// TopicFilter narrows a subscription on the storage side.
type TopicFilter struct {
	Collection string
	Operations []OperationKind
	// DocumentID scopes the subscription to a single entity when non-empty.
	DocumentID string
	// SubscriberID identifies the subscription owner for drivers that need a
	// consumer name (queues, durable cursors).
	SubscriberID string
}

// Filter builds the storage filter for this topic, optionally scoped to one id.
func (t TopicConfig) Filter(documentID, subscriberID string) TopicFilter {
	return TopicFilter{
		Collection:   t.Collection,
		Operations:   slices.Clone(t.Operations),
		DocumentID:   documentID,
		SubscriberID: subscriberID,
	}
}
