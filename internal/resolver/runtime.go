// Package resolver provides an executor.Runtime backed by a map of Go field
// functions. It is the runtime every observer schema executes with.
package resolver

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/unboundedsystems/adapt/internal/executor"
)

// DefaultMaxConcurrency bounds the number of async field functions running at
// once within one batch.
const DefaultMaxConcurrency = 16

// Params carries everything a field function may look at. Context is the
// observer context the query executes with; it is never attached to Source or
// Args.
type Params struct {
	Source  any
	Args    map[string]any
	Info    executor.ResolveInfo
	Context any
}

// FieldFunc resolves one field.
type FieldFunc func(ctx context.Context, p Params) (any, error)

// Map holds field functions keyed by "Type.field".
type Map map[string]FieldFunc

// Runtime implements executor.Runtime over a Map.
//   - Fields without a function fall back to DefaultResolver.
//   - BatchResolveAsync runs every task of the batch concurrently, bounded by
//     maxConcurrency. Results keep task order; errors are per task.
//   - ResolveType reads "__typename" from map values or TypeName() from
//     values implementing Typed.
type Runtime struct {
	fields         Map
	context        any
	maxConcurrency int
}

var _ executor.Runtime = (*Runtime)(nil)

type Option func(*Runtime)

// WithContext sets the value passed as Params.Context to every field function.
func WithContext(c any) Option { return func(r *Runtime) { r.context = c } }

// WithMaxConcurrency bounds concurrent async resolution. Values below 1 are
// ignored.
func WithMaxConcurrency(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.maxConcurrency = n
		}
	}
}

func NewRuntime(fields Map, opts ...Option) *Runtime {
	r := &Runtime{fields: fields, maxConcurrency: DefaultMaxConcurrency}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Runtime) resolve(ctx context.Context, info executor.ResolveInfo, source any, args map[string]any) (any, error) {
	fn := r.fields[info.ObjectType+"."+info.Field]
	if fn == nil {
		return DefaultResolver(source, info.Field)
	}
	return fn(ctx, Params{Source: source, Args: args, Info: info, Context: r.context})
}

func (r *Runtime) ResolveSync(ctx context.Context, info executor.ResolveInfo, source any, args map[string]any) (any, error) {
	return r.resolve(ctx, info, source, args)
}

func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}
	if len(tasks) == 1 {
		v, err := r.resolve(ctx, tasks[0].Info, tasks[0].Source, tasks[0].Args)
		results[0] = executor.AsyncResolveResult{Value: v, Error: err}
		return results
	}

	p := pool.New().WithMaxGoroutines(r.maxConcurrency)
	for i, t := range tasks {
		p.Go(func() {
			v, err := r.resolve(ctx, t.Info, t.Source, t.Args)
			results[i] = executor.AsyncResolveResult{Value: v, Error: err}
		})
	}
	p.Wait()
	return results
}

// Typed lets Go values name their concrete GraphQL type.
type Typed interface {
	TypeName() string
}

func (r *Runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	switch v := value.(type) {
	case Typed:
		return v.TypeName(), nil
	case map[string]any:
		if name, ok := v["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve concrete type of %s from %T", abstractType, value)
}

// SerializeLeafValue normalizes builtin scalars so results look the same
// whether data came from Go values or from decoded JSON. Custom scalars and
// enums pass through.
func (r *Runtime) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error) {
	switch scalarOrEnumTypeName {
	case "Int":
		return serializeInt(value)
	case "Float":
		return serializeFloat(value)
	case "String":
		return serializeString(value)
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("cannot represent %v (%T) as Boolean", value, value)
	case "ID":
		switch v := value.(type) {
		case string:
			return v, nil
		case int, int32, int64:
			return fmt.Sprintf("%d", v), nil
		case float64:
			if v == math.Trunc(v) {
				return strconv.FormatInt(int64(v), 10), nil
			}
		}
		return nil, fmt.Errorf("cannot represent %v (%T) as ID", value, value)
	default:
		return value, nil
	}
}

func serializeInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt32 && v <= math.MaxInt32 {
			return int(v), nil
		}
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return nil, fmt.Errorf("cannot represent %v (%T) as Int", value, value)
}

func serializeFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, fmt.Errorf("cannot represent %v (%T) as Float", value, value)
}

func serializeString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case bool, int, int32, int64, float64:
		return fmt.Sprintf("%v", v), nil
	}
	return nil, fmt.Errorf("cannot represent %v (%T) as String", value, value)
}

// DefaultResolver reads a field from a map key, an exported struct field with
// a matching name or json tag, or a method with no arguments.
func DefaultResolver(source any, field string) (any, error) {
	if source == nil {
		return nil, nil
	}
	if m, ok := source.(map[string]any); ok {
		return m[field], nil
	}

	rv := reflect.ValueOf(source)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, nil
		}
		v := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	case reflect.Struct:
		if v, ok := structField(rv, field); ok {
			return v, nil
		}
	}
	if m := reflect.ValueOf(source).MethodByName(exported(field)); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
		return m.Call(nil)[0].Interface(), nil
	}
	return nil, nil
}

func structField(rv reflect.Value, field string) (any, bool) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if tag == field || (tag == "" && strings.EqualFold(sf.Name, field)) {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

func exported(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
