package models

import (
	"fmt"
	"strings"
)

// Failure reasons reported by source adapters.
const (
	ReasonTransport   = "transport"
	ReasonStatus      = "status"
	ReasonDecode      = "decode"
	ReasonShape       = "shape"
	ReasonRateLimited = "rate_limited"
)

// AdapterError is a typed failure scoped to one upstream source.
// It never crosses the reconciler boundary on its own; the reconciler
// records it per source and only surfaces the aggregate.
type AdapterError struct {
	Source string
	Reason string
	Err    error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Reason)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// NewAdapterError wraps err as a typed adapter failure.
func NewAdapterError(source, reason string, err error) *AdapterError {
	return &AdapterError{Source: source, Reason: reason, Err: err}
}

// ReconcileError means every configured source failed in a cycle, so
// no merge was possible. Partial failure is not an error: as long as
// one adapter produced quotes a full record set is still emitted.
type ReconcileError struct {
	Causes []*AdapterError
}

func (e *ReconcileError) Error() string {
	parts := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		parts = append(parts, c.Error())
	}
	return "all sources failed: " + strings.Join(parts, "; ")
}
