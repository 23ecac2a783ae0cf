// Package reqid carries operation identifiers in contexts. Nested operations
// (a query within a pass within a request) each get their own ID and can find
// the ID of the operation that started them.
package reqid

import (
	"context"

	"github.com/oklog/ulid/v2"
)

type key struct{}

type ids struct {
	id     ulid.ULID
	parent *ids
}

// NewContext returns a copy of parent carrying a new ID. The ID previously
// in parent, if any, becomes the parent ID.
func NewContext(parent context.Context) (context.Context, ulid.ULID) {
	prev, _ := parent.Value(key{}).(*ids)
	id := ulid.Make()
	return context.WithValue(parent, key{}, &ids{id: id, parent: prev}), id
}

// FromContext extracts the innermost ID from ctx.
func FromContext(ctx context.Context) (ulid.ULID, bool) {
	v, ok := ctx.Value(key{}).(*ids)
	if !ok {
		return ulid.ULID{}, false
	}
	return v.id, true
}

// ParentFromContext returns the ID that was current when the innermost ID
// was created.
func ParentFromContext(ctx context.Context) (ulid.ULID, bool) {
	v, ok := ctx.Value(key{}).(*ids)
	if !ok || v.parent == nil {
		return ulid.ULID{}, false
	}
	return v.parent.id, true
}
