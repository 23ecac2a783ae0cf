package executor

import (
	"context"
	"fmt"
	"testing"

	language "github.com/unboundedsystems/adapt/internal/language"
	schema "github.com/unboundedsystems/adapt/internal/schema"
)

func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

func mustSchema(t *testing.T, sdl string) *schema.Schema {
	t.Helper()
	s, err := schema.BuildFromSDL(sdl)
	if err != nil {
		t.Fatalf("schema error: %v", err)
	}
	return s
}

type resolverFunc func(ctx context.Context, info ResolveInfo, source any, args map[string]any) (any, error)

func value(v any) resolverFunc {
	return func(context.Context, ResolveInfo, any, map[string]any) (any, error) { return v, nil }
}

func fail(err error) resolverFunc {
	return func(context.Context, ResolveInfo, any, map[string]any) (any, error) { return nil, err }
}

// testRuntime resolves "Type.field" from a table, falling back to the field
// of a map source. It records every async batch it is handed.
type testRuntime struct {
	resolvers map[string]resolverFunc
	batches   [][]AsyncResolveTask
}

func newTestRuntime(resolvers map[string]resolverFunc) *testRuntime {
	if resolvers == nil {
		resolvers = map[string]resolverFunc{}
	}
	return &testRuntime{resolvers: resolvers}
}

func (r *testRuntime) ResolveSync(ctx context.Context, info ResolveInfo, source any, args map[string]any) (any, error) {
	if fn, ok := r.resolvers[info.ObjectType+"."+info.Field]; ok {
		return fn(ctx, info, source, args)
	}
	if m, ok := source.(map[string]any); ok {
		return m[info.Field], nil
	}
	return nil, nil
}

func (r *testRuntime) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	r.batches = append(r.batches, tasks)
	out := make([]AsyncResolveResult, len(tasks))
	for i, task := range tasks {
		out[i].Value, out[i].Error = r.ResolveSync(ctx, task.Info, task.Source, task.Args)
	}
	return out
}

func (r *testRuntime) ResolveType(_ context.Context, abstractType string, value any) (string, error) {
	if m, ok := value.(map[string]any); ok {
		if name, ok := m["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve %s for %T", abstractType, value)
}

func (r *testRuntime) SerializeLeafValue(_ context.Context, _ string, value any) (any, error) {
	return value, nil
}
