package executor

import (
	"context"

	"github.com/unboundedsystems/adapt/internal/language"
)

// Runtime is what the Executor calls out to: field resolution, batched
// resolution of @async fields, abstract type resolution and leaf
// serialization.
//
// Execution is breadth first. Synchronous fields are resolved as soon as
// they are reached. Async fields reached while completing one depth are
// resolved together by a single BatchResolveAsync call before the executor
// moves deeper. Errors returned by any method become located GraphQL errors
// that keep the original error in GraphQLError.Err. Implementations must not
// mutate source or args values.
type Runtime interface {
	// ResolveSync resolves a field immediately. (nil, nil) is a GraphQL null.
	ResolveSync(ctx context.Context, info ResolveInfo, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves the async fields of one depth. results[i]
	// belongs to tasks[i]; an error in one element does not affect others.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType names the concrete object type of a value whose field type
	// is an interface or union.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue converts a scalar or enum value to a JSON-safe Go
	// value. Enums serialize to their name.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

// ResolveInfo describes the field being resolved. Per-request parameters
// travel here or in ctx, never as hidden properties on source or args.
type ResolveInfo struct {
	// ObjectType is the name of the type the field is selected on.
	ObjectType string
	Field      string
	Path       Path
	Operation  language.Operation
	// Variables are the coerced variable values of the operation.
	Variables map[string]any
	// Fields are the AST nodes merged into this field.
	Fields []*language.Field
}

// AsyncResolveTask is one async field awaiting resolution.
type AsyncResolveTask struct {
	Info   ResolveInfo
	Source any
	Args   map[string]any
}

type AsyncResolveResult struct {
	Value any
	Error error
}
