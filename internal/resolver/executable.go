package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/unboundedsystems/adapt/internal/executor"
	"github.com/unboundedsystems/adapt/internal/language"
	"github.com/unboundedsystems/adapt/internal/schema"
)

// Executable pairs a schema with the field functions that resolve it.
type Executable struct {
	Schema    *schema.Schema
	Resolvers Map
}

// NewExecutable loads sdl and checks that every resolver key names a field of
// the schema.
func NewExecutable(sdl string, resolvers Map) (*Executable, error) {
	sch, err := schema.BuildFromSDL(sdl)
	if err != nil {
		return nil, err
	}
	for key := range resolvers {
		typeName, fieldName, ok := splitKey(key)
		t := sch.Types[typeName]
		if !ok || t == nil || t.Field(fieldName) == nil {
			return nil, fmt.Errorf("resolver %q does not match a schema field", key)
		}
	}
	return &Executable{Schema: sch, Resolvers: resolvers}, nil
}

// MustExecutable is NewExecutable for package-level schemas.
func MustExecutable(sdl string, resolvers Map) *Executable {
	e, err := NewExecutable(sdl, resolvers)
	if err != nil {
		panic(err)
	}
	return e
}

// Execute runs doc with root as the root value and rctx as Params.Context.
func (e *Executable) Execute(ctx context.Context, doc *language.QueryDocument, variables map[string]any, root, rctx any, opts ...Option) *executor.ExecutionResult {
	rt := NewRuntime(e.Resolvers, append([]Option{WithContext(rctx)}, opts...)...)
	return executor.NewExecutor(rt, e.Schema).ExecuteRequest(ctx, doc, "", variables, root)
}

func splitKey(key string) (string, string, bool) {
	typeName, fieldName, ok := strings.Cut(key, ".")
	return typeName, fieldName, ok && typeName != "" && fieldName != ""
}
