package reqid

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("expected %s from context, got %s ok=%v", id, got, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected id in empty context")
	}
	if _, ok := ParentFromContext(ctx); ok {
		t.Fatalf("unexpected parent id for outermost context")
	}
}

func TestNestedContext(t *testing.T) {
	outer, outerID := NewContext(context.Background())
	inner, innerID := NewContext(outer)
	if innerID == outerID {
		t.Fatalf("expected distinct ids, got %s twice", innerID)
	}
	if got, _ := FromContext(inner); got != innerID {
		t.Fatalf("expected inner id %s, got %s", innerID, got)
	}
	if got, ok := ParentFromContext(inner); !ok || got != outerID {
		t.Fatalf("expected parent id %s, got %s ok=%v", outerID, got, ok)
	}
}
