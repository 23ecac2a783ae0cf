package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	language "github.com/unboundedsystems/adapt/internal/language"
	schema "github.com/unboundedsystems/adapt/internal/schema"
)

var ignoreErr = cmpopts.IgnoreFields(GraphQLError{}, "Err")

// Pattern: Result comparison
func TestErrors_LocatedPaths_Result(t *testing.T) {
	t.Run("Simple", func(t *testing.T) {
		sch := &schema.Schema{
			QueryType: "Query",
			Types: map[string]*schema.Type{
				"Query":  {Name: "Query", Kind: schema.TypeKindObject, Fields: []*schema.Field{{Name: "a", Type: schema.NamedType("String")}}},
				"String": {Name: "String", Kind: schema.TypeKindScalar},
			},
		}
		rt := newTestRuntime(map[string]resolverFunc{
			"Query.a": fail(fmt.Errorf("boom")),
		})
		exec := NewExecutor(rt, sch)
		doc := mustParseQuery(t, "{ a }")

		gotRes := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)

		wantRes := &ExecutionResult{
			Data:   map[string]any{"a": nil},
			Errors: []GraphQLError{{Message: "boom", Path: Path{"a"}}},
		}
		if diff := cmp.Diff(wantRes, gotRes, ignoreErr); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("List index in path", func(t *testing.T) {
		sch := &schema.Schema{
			QueryType: "Query",
			Types: map[string]*schema.Type{
				"Query":  {Name: "Query", Kind: schema.TypeKindObject, Fields: []*schema.Field{{Name: "objs", Type: schema.ListType(schema.NamedType("Obj"))}}},
				"Obj":    {Name: "Obj", Kind: schema.TypeKindObject, Fields: []*schema.Field{{Name: "a", Type: schema.NamedType("String")}}},
				"String": {Name: "String", Kind: schema.TypeKindScalar},
			},
		}
		rt := newTestRuntime(map[string]resolverFunc{
			"Query.objs": value([]any{map[string]any{"idx": 0}, map[string]any{"idx": 1}}),
			"Obj.a": func(ctx context.Context, info ResolveInfo, src any, args map[string]any) (any, error) {
				if src.(map[string]any)["idx"].(int) == 1 {
					return nil, fmt.Errorf("boom")
				}
				return "A", nil
			},
		})
		exec := NewExecutor(rt, sch)
		doc := mustParseQuery(t, "{ objs { a } }")

		gotRes := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)

		wantRes := &ExecutionResult{
			Data:   map[string]any{"objs": []any{map[string]any{"a": "A"}, map[string]any{"a": nil}}},
			Errors: []GraphQLError{{Message: "boom", Path: Path{"objs", 1, "a"}}},
		}
		if diff := cmp.Diff(wantRes, gotRes, ignoreErr); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Non-null propagates to parent", func(t *testing.T) {
		sch := mustSchema(t, `
			type Query { obj: Obj }
			type Obj { a: String! }
		`)
		rt := newTestRuntime(map[string]resolverFunc{
			"Query.obj": value(map[string]any{}),
			"Obj.a":     fail(fmt.Errorf("boom")),
		})
		gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ obj { a } }"), "", nil, nil)

		wantRes := &ExecutionResult{
			Data:   map[string]any{"obj": nil},
			Errors: []GraphQLError{{Message: "boom", Path: Path{"obj", "a"}}},
		}
		if diff := cmp.Diff(wantRes, gotRes, ignoreErr); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})
}

type codedError struct{ code string }

func (e *codedError) Error() string { return "coded: " + e.code }

func TestErrors_KeepResolverError(t *testing.T) {
	sch := mustSchema(t, `type Query { a: String b: String @async }`)
	rt := newTestRuntime(map[string]resolverFunc{
		"Query.a": fail(&codedError{code: "sync"}),
		"Query.b": fail(fmt.Errorf("wrapped: %w", &codedError{code: "async"})),
	})
	res := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ a b }"), "", nil, nil)
	require.Len(t, res.Errors, 2)

	var codes []string
	for _, gqlErr := range res.Errors {
		var ce *codedError
		require.True(t, errors.As(gqlErr, &ce))
		codes = append(codes, ce.code)
	}
	require.Equal(t, []string{"sync", "async"}, codes)
}

func TestAsyncBatchPerDepth(t *testing.T) {
	sch := mustSchema(t, `
		type Query { a: A @async }
		type A { x: Int b: B @async }
		type B { y: Int }
	`)
	rt := newTestRuntime(map[string]resolverFunc{
		"Query.a": value(map[string]any{}),
		"A.x":     value(1),
		"A.b":     value(map[string]any{}),
		"B.y":     value(2),
	})
	gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ a { x b { y } } }"), "", nil, nil)

	wantRes := &ExecutionResult{
		Data:   map[string]any{"a": map[string]any{"x": 1, "b": map[string]any{"y": 2}}},
		Errors: []GraphQLError{},
	}
	if diff := cmp.Diff(wantRes, gotRes); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, rt.batches, 2)
	require.Equal(t, Path{"a"}, rt.batches[0][0].Info.Path)
	require.Equal(t, Path{"a", "b"}, rt.batches[1][0].Info.Path)
}

func TestFragmentsOnAbstractTypes(t *testing.T) {
	sch := mustSchema(t, `
		interface Node { id: ID! }
		type Foo implements Node { id: ID! name: String }
		type Query { node: Node }
	`)
	rt := newTestRuntime(map[string]resolverFunc{
		"Query.node": value(map[string]any{"__typename": "Foo"}),
		"Foo.id":     value("1"),
		"Foo.name":   value("n"),
	})
	doc := mustParseQuery(t, `{ node { ... on Node { id } ...FooName } } fragment FooName on Foo { name }`)
	gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", nil, nil)

	wantRes := &ExecutionResult{
		Data:   map[string]any{"node": map[string]any{"id": "1", "name": "n"}},
		Errors: []GraphQLError{},
	}
	if diff := cmp.Diff(wantRes, gotRes); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveInfo(t *testing.T) {
	sch := mustSchema(t, `type Query { echo(n: Int, first: Int = 10): Int }`)
	var gotInfo ResolveInfo
	var gotArgs map[string]any
	rt := newTestRuntime(map[string]resolverFunc{
		"Query.echo": func(ctx context.Context, info ResolveInfo, source any, args map[string]any) (any, error) {
			gotInfo, gotArgs = info, args
			return args["n"], nil
		},
	})

	doc := mustParseQuery(t, `query Q($n: Int) { e: echo(n: $n) }`)
	res := NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "Q", map[string]any{"n": float64(3)}, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"e": 3}, res.Data)

	require.Equal(t, "Query", gotInfo.ObjectType)
	require.Equal(t, "echo", gotInfo.Field)
	require.Equal(t, Path{"e"}, gotInfo.Path)
	require.Equal(t, language.Query, gotInfo.Operation)
	require.Equal(t, map[string]any{"n": 3}, gotInfo.Variables)
	require.Len(t, gotInfo.Fields, 1)
	require.Equal(t, "e", gotInfo.Fields[0].Alias)
	require.Equal(t, map[string]any{"n": 3, "first": 10}, gotArgs)
}

func TestInputObjects(t *testing.T) {
	sch := mustSchema(t, `
		input Filter { name: String! limit: Int = 5 }
		type Query { find(filter: Filter!): String }
	`)
	var gotArgs map[string]any
	rt := newTestRuntime(map[string]resolverFunc{
		"Query.find": func(ctx context.Context, info ResolveInfo, source any, args map[string]any) (any, error) {
			gotArgs = args
			return "ok", nil
		},
	})
	exec := NewExecutor(rt, sch)

	res := exec.ExecuteRequest(context.Background(), mustParseQuery(t, `{ find(filter: {name: "x"}) }`), "", nil, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"filter": map[string]any{"name": "x", "limit": 5}}, gotArgs)

	doc := mustParseQuery(t, `query($f: Filter!) { find(filter: $f) }`)
	res = exec.ExecuteRequest(context.Background(), doc, "", map[string]any{"f": map[string]any{"limit": 1}}, nil)
	require.Nil(t, res.Data)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0].Message, "required field 'name' of input type Filter was not provided")

	res = exec.ExecuteRequest(context.Background(), doc, "", map[string]any{"f": map[string]any{"name": "x", "bogus": 1}}, nil)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0].Message, "unknown field 'bogus'")

	nested := mustParseQuery(t, `query($n: String!) { find(filter: {name: $n, limit: 2}) }`)
	res = exec.ExecuteRequest(context.Background(), nested, "", map[string]any{"n": "y"}, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"filter": map[string]any{"name": "y", "limit": 2}}, gotArgs)
}

func TestVariableErrors(t *testing.T) {
	sch := mustSchema(t, `type Query { node(id: ID!): String count(n: Int): Int }`)
	exec := NewExecutor(newTestRuntime(nil), sch)

	res := exec.ExecuteRequest(context.Background(), mustParseQuery(t, `query($id: ID!) { node(id: $id) }`), "", nil, nil)
	wantRes := &ExecutionResult{
		Errors: []GraphQLError{{Message: "variable $id of required type ID! was not provided"}},
	}
	if diff := cmp.Diff(wantRes, res); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}

	res = exec.ExecuteRequest(context.Background(), mustParseQuery(t, `query($n: Int) { count(n: $n) }`), "", map[string]any{"n": "42"}, nil)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0].Message, "cannot coerce")
}

func TestOperationSelection(t *testing.T) {
	sch := mustSchema(t, `
		type Query { a: Int }
		type Mutation { set(v: Int!): Int }
	`)
	rt := newTestRuntime(map[string]resolverFunc{
		"Query.a": value(1),
		"Mutation.set": func(ctx context.Context, info ResolveInfo, source any, args map[string]any) (any, error) {
			return args["v"], nil
		},
	})
	exec := NewExecutor(rt, sch)
	doc := mustParseQuery(t, `query Read { a } mutation Write { set(v: 2) }`)

	res := exec.ExecuteRequest(context.Background(), doc, "Write", nil, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"set": 2}, res.Data)

	res = exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Equal(t, []GraphQLError{{Message: "operation not found"}}, res.Errors)
}

func TestEnumArguments(t *testing.T) {
	sch := mustSchema(t, `
		enum Color { RED GREEN }
		type Query { paint(c: Color!): Color }
	`)
	var gotArgs map[string]any
	rt := newTestRuntime(map[string]resolverFunc{
		"Query.paint": func(ctx context.Context, info ResolveInfo, source any, args map[string]any) (any, error) {
			gotArgs = args
			return args["c"], nil
		},
	})
	exec := NewExecutor(rt, sch)

	res := exec.ExecuteRequest(context.Background(), mustParseQuery(t, `{ paint(c: RED) }`), "", nil, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"paint": "RED"}, res.Data)

	gotArgs = nil
	res = exec.ExecuteRequest(context.Background(), mustParseQuery(t, `{ paint(c: BLUE) }`), "", nil, nil)
	require.Equal(t, map[string]any{"paint": nil}, res.Data)
	require.Len(t, res.Errors, 1)
	require.Equal(t, Path{"paint"}, res.Errors[0].Path)
	require.Contains(t, res.Errors[0].Message, `"BLUE" is not a value of enum Color`)
	require.Nil(t, gotArgs)
}

func TestArgumentErrorsSkipResolver(t *testing.T) {
	sch := mustSchema(t, `
		type Query { node(id: ID!): Node slow(id: ID!): Node @async other: Int }
		type Node { id: ID! }
	`)
	var calls []string
	record := func(ctx context.Context, info ResolveInfo, source any, args map[string]any) (any, error) {
		calls = append(calls, info.Field)
		return map[string]any{"id": args["id"]}, nil
	}
	rt := newTestRuntime(map[string]resolverFunc{
		"Query.node":  record,
		"Query.slow":  record,
		"Query.other": value(1),
	})
	exec := NewExecutor(rt, sch)

	gotRes := exec.ExecuteRequest(context.Background(), mustParseQuery(t, `{ node { id } slow(id: [1, 2]) { id } other }`), "", nil, nil)
	wantRes := &ExecutionResult{
		Data: map[string]any{"node": nil, "slow": nil, "other": 1},
		Errors: []GraphQLError{
			{Message: "argument 'id' of required type was not provided", Path: Path{"node"}},
			{Message: "argument 'id' cannot be coerced: cannot coerce [1 2] ([]interface {}) to ID", Path: Path{"slow"}},
		},
	}
	if diff := cmp.Diff(wantRes, gotRes, ignoreErr); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, calls)
	require.Empty(t, rt.batches)

	doc := mustParseQuery(t, `query($id: ID) { node(id: $id) { id } }`)
	res := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Equal(t, map[string]any{"node": nil}, res.Data)
	require.Len(t, res.Errors, 1)
	require.Empty(t, calls)

	res = exec.ExecuteRequest(context.Background(), doc, "", map[string]any{"id": "7"}, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"node": map[string]any{"id": "7"}}, res.Data)
	require.Equal(t, []string{"node"}, calls)
}

func TestAsyncNonNullPropagation(t *testing.T) {
	t.Run("root field", func(t *testing.T) {
		sch := mustSchema(t, `type Query { a: String! @async b: Int }`)
		rt := newTestRuntime(map[string]resolverFunc{
			"Query.a": fail(fmt.Errorf("boom")),
			"Query.b": value(1),
		})
		gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ a b }"), "", nil, nil)

		wantRes := &ExecutionResult{
			Data:   map[string]any{"a": nil, "b": 1},
			Errors: []GraphQLError{{Message: "boom", Path: Path{"a"}}},
		}
		if diff := cmp.Diff(wantRes, gotRes, ignoreErr); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("nearest nullable ancestor", func(t *testing.T) {
		sch := mustSchema(t, `
			type Query { obj: Obj other: Int }
			type Obj { inner: Inner! }
			type Inner { a: String! @async }
		`)
		rt := newTestRuntime(map[string]resolverFunc{
			"Query.obj":   value(map[string]any{"inner": map[string]any{}}),
			"Query.other": value(7),
			"Inner.a":     value(nil),
		})
		gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ obj { inner { a } } other }"), "", nil, nil)

		wantRes := &ExecutionResult{
			Data: map[string]any{"obj": nil, "other": 7},
			Errors: []GraphQLError{{
				Message: "Cannot return null for non-nullable field obj.inner.a",
				Path:    Path{"obj", "inner", "a"},
			}},
		}
		if diff := cmp.Diff(wantRes, gotRes, ignoreErr); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("drops work below a nulled value", func(t *testing.T) {
		sch := mustSchema(t, `
			type Query { obj: Obj }
			type Obj { b: Inner @async a: String! @async }
			type Inner { c: Int @async }
		`)
		rt := newTestRuntime(map[string]resolverFunc{
			"Query.obj": value(map[string]any{}),
			"Obj.b":     value(map[string]any{}),
			"Obj.a":     fail(fmt.Errorf("boom")),
			"Inner.c":   value(3),
		})
		res := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ obj { b { c } a } }"), "", nil, nil)

		require.Equal(t, map[string]any{"obj": nil}, res.Data)
		require.Len(t, res.Errors, 1)
		require.Len(t, rt.batches, 1)
	})
}

func TestCanceledContext(t *testing.T) {
	sch := mustSchema(t, `type Query { a: String @async b: Int }`)
	rt := newTestRuntime(map[string]resolverFunc{
		"Query.a": value("A"),
		"Query.b": value(1),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewExecutor(rt, sch).ExecuteRequest(ctx, mustParseQuery(t, "{ a b }"), "", nil, nil)
	require.Equal(t, map[string]any{"a": nil, "b": 1}, res.Data)
	require.Len(t, res.Errors, 1)
	require.Equal(t, Path{"a"}, res.Errors[0].Path)
	require.ErrorIs(t, res.Errors[0], context.Canceled)
	require.Empty(t, rt.batches)
}

type extError struct{}

func (extError) Error() string              { return "needs more" }
func (extError) Extensions() map[string]any { return map[string]any{"code": "MORE"} }

func TestErrorExtensions(t *testing.T) {
	sch := mustSchema(t, `type Query { a: String @async }`)
	rt := newTestRuntime(map[string]resolverFunc{
		"Query.a": fail(fmt.Errorf("wrapped: %w", extError{})),
	})
	res := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ a }"), "", nil, nil)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "wrapped: needs more", res.Errors[0].Message)
	require.Equal(t, map[string]any{"code": "MORE"}, res.Errors[0].Extensions)
}

func TestUnknownField(t *testing.T) {
	sch := mustSchema(t, `type Query { a: Int }`)
	rt := newTestRuntime(map[string]resolverFunc{"Query.a": value(1)})
	res := NewExecutor(rt, sch).ExecuteRequest(context.Background(), mustParseQuery(t, "{ a nope __typename }"), "", nil, nil)

	require.Equal(t, map[string]any{"a": 1, "__typename": "Query"}, res.Data)
	require.Equal(t, []GraphQLError{{Message: "Cannot query field 'nope' on type 'Query'", Path: Path{"nope"}}}, res.Errors)
}

func TestPathString(t *testing.T) {
	require.Equal(t, "", Path{}.String())
	require.Equal(t, "a", Path{"a"}.String())
	require.Equal(t, "objs[1].a", Path{"objs", 1, "a"}.String())
	require.Equal(t, "m[0][2]", Path{"m", 0, 2}.String())
}
