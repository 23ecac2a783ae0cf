package executor

import (
	"context"
	"fmt"
	"reflect"

	"github.com/unboundedsystems/adapt/internal/language"
	"github.com/unboundedsystems/adapt/internal/schema"
)

type Executor struct {
	runtime Runtime
	schema  *schema.Schema
}

func NewExecutor(runtime Runtime, sch *schema.Schema) *Executor {
	return &Executor{runtime: runtime, schema: sch}
}

// execution is the state of one ExecuteRequest call.
type execution struct {
	ctx       context.Context
	runtime   Runtime
	schema    *schema.Schema
	document  *language.QueryDocument
	operation language.Operation
	variables map[string]any

	data    map[string]any
	errors  []GraphQLError
	pending []pendingField
	// nulled holds response paths already replaced by null; async work
	// below them is dropped.
	nulled []Path
}

// pendingField is an async field waiting for the next batch.
type pendingField struct {
	task   AsyncResolveTask
	typ    *schema.TypeRef
	fields []*language.Field
	// boundary is where null lands if the field is non-null and resolves to
	// null: the nearest nullable ancestor. Empty for root fields.
	boundary Path
}

// deferred marks a response slot an async field will fill.
type deferred struct{}

// ExecuteRequest executes the named operation of document, or its only
// operation when operationName is empty. initialValue is the source of the
// root fields.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	op := selectOperation(document, operationName)
	if op == nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: "operation not found"}}}
	}
	vars, err := coerceVariables(e.schema, op, variableValues)
	if err != nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: err.Error()}}}
	}
	rootType := e.schema.RootType(op.Operation)
	if rootType == nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: fmt.Sprintf("root type not found for %s operation", op.Operation)}}}
	}

	ex := &execution{
		ctx:       ctx,
		runtime:   e.runtime,
		schema:    e.schema,
		document:  document,
		operation: op.Operation,
		variables: vars,
		errors:    []GraphQLError{},
	}
	ex.data = ex.selectionSet(rootType, op.SelectionSet, initialValue, Path{}, nil)
	for len(ex.pending) > 0 {
		ex.flush()
	}
	return &ExecutionResult{Data: ex.data, Errors: ex.errors}
}

func selectOperation(doc *language.QueryDocument, name string) *language.OperationDefinition {
	if name == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0]
		}
		return nil
	}
	return doc.Operations.ForName(name)
}

// selectionSet executes set on source. It returns nil when a non-null field
// below a non-root object resolved to null; root fields are set to null
// individually instead.
func (ex *execution) selectionSet(objectType *schema.Type, set language.SelectionSet, source any, path, boundary Path) map[string]any {
	out := make(map[string]any)
	for _, g := range ex.collectFields(objectType, set) {
		fieldPath := path.append(g.name)
		name := g.fields[0].Name
		if name == "__typename" {
			out[g.name] = objectType.Name
			continue
		}
		def := objectType.Field(name)
		if def == nil {
			ex.addError(fmt.Sprintf("Cannot query field '%s' on type '%s'", name, objectType.Name), fieldPath)
			continue
		}

		v := ex.field(objectType, def, g.fields, source, fieldPath, boundary)
		if isNullish(v) {
			if schema.IsNonNull(def.Type) && len(path) > 0 {
				return nil
			}
			v = nil
		}
		out[g.name] = v
	}
	return out
}

func (ex *execution) field(objectType *schema.Type, def *schema.Field, fields []*language.Field, source any, path, boundary Path) any {
	args, problems := arguments(ex.schema, def, fields[0].Arguments, ex.variables)
	if len(problems) > 0 {
		for _, msg := range problems {
			ex.addError(msg, path)
		}
		return nil
	}
	info := ResolveInfo{
		ObjectType: objectType.Name,
		Field:      def.Name,
		Path:       path,
		Operation:  ex.operation,
		Variables:  ex.variables,
		Fields:     fields,
	}

	if def.Async {
		ex.pending = append(ex.pending, pendingField{
			task:     AsyncResolveTask{Info: info, Source: source, Args: args},
			typ:      def.Type,
			fields:   fields,
			boundary: boundary,
		})
		return deferred{}
	}

	v, err := ex.runtime.ResolveSync(ex.ctx, info, source, args)
	if err != nil {
		ex.addErr(err, path)
		return nil
	}
	return ex.complete(def.Type, fields, v, path, boundary)
}

// flush resolves the queued async fields as one batch. A canceled context
// fails every task without calling the runtime.
func (ex *execution) flush() {
	queued := ex.pending
	ex.pending = nil

	live := make([]pendingField, 0, len(queued))
	for _, p := range queued {
		if !ex.isNulled(p.task.Info.Path) {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return
	}

	results := make([]AsyncResolveResult, len(live))
	if err := ex.ctx.Err(); err != nil {
		for i := range results {
			results[i].Error = err
		}
	} else {
		tasks := make([]AsyncResolveTask, len(live))
		for i, p := range live {
			tasks[i] = p.task
		}
		got := ex.runtime.BatchResolveAsync(ex.ctx, tasks)
		for i := range results {
			if i < len(got) {
				results[i] = got[i]
			} else {
				results[i].Error = fmt.Errorf("runtime returned %d results for %d tasks", len(got), len(tasks))
			}
		}
	}

	for i, p := range live {
		ex.completePending(p, results[i])
	}
}

func (ex *execution) completePending(p pendingField, r AsyncResolveResult) {
	path := p.task.Info.Path
	if ex.isNulled(path) {
		return
	}

	var v any
	if r.Error != nil {
		ex.addErr(r.Error, path)
	} else {
		v = ex.complete(p.typ, p.fields, r.Value, path, p.boundary)
	}
	if !isNullish(v) {
		ex.set(path, v)
		return
	}
	if !schema.IsNonNull(p.typ) {
		ex.set(path, nil)
		return
	}
	target := p.boundary
	if len(target) == 0 {
		target = path[:1]
	}
	ex.set(target, nil)
	ex.nulled = append(ex.nulled, target)
}

// complete turns a resolved value into its response form. boundary is where
// null lands if the value sits in a non-null position and turns out null.
func (ex *execution) complete(typ *schema.TypeRef, fields []*language.Field, value any, path, boundary Path) any {
	if schema.IsNonNull(typ) {
		if isNullish(value) {
			if !ex.hasErrorAt(path) {
				ex.addError(fmt.Sprintf("Cannot return null for non-nullable field %s", path), path)
			}
			return nil
		}
		return ex.completeNamedOrList(typ.OfType, fields, value, path, boundary)
	}
	if isNullish(value) {
		return nil
	}
	return ex.completeNamedOrList(typ, fields, value, path, path)
}

func (ex *execution) completeNamedOrList(typ *schema.TypeRef, fields []*language.Field, value any, path, boundary Path) any {
	if typ.Kind == schema.TypeRefKindList {
		return ex.completeList(typ, fields, value, path, boundary)
	}

	t := ex.schema.Types[typ.Named]
	if t == nil {
		ex.addError(fmt.Sprintf("Unknown type: %s", typ.Named), path)
		return nil
	}
	switch t.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		v, err := ex.runtime.SerializeLeafValue(ex.ctx, t.Name, value)
		if err != nil {
			ex.addErr(err, path)
			return nil
		}
		return v
	case schema.TypeKindObject:
		return ex.completeObject(t, fields, value, path, boundary)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		name, err := ex.runtime.ResolveType(ex.ctx, t.Name, value)
		if err != nil {
			ex.addErr(err, path)
			return nil
		}
		concrete := ex.schema.Types[name]
		if concrete == nil || concrete.Kind != schema.TypeKindObject || !ex.schema.IsPossibleType(t.Name, name) {
			ex.addError(fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", t.Name, name), path)
			return nil
		}
		return ex.completeObject(concrete, fields, value, path, boundary)
	}
	ex.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", t.Kind), path)
	return nil
}

func (ex *execution) completeObject(t *schema.Type, fields []*language.Field, value any, path, boundary Path) any {
	out := ex.selectionSet(t, subSelection(fields), value, path, boundary)
	if out == nil {
		return nil
	}
	return out
}

func (ex *execution) completeList(typ *schema.TypeRef, fields []*language.Field, value any, path, boundary Path) any {
	items, ok := value.([]any)
	if !ok {
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			ex.addError(fmt.Sprintf("Expected list value, got %T", value), path)
			return nil
		}
		items = make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
	}

	out := make([]any, len(items))
	for i, item := range items {
		v := ex.complete(typ.OfType, fields, item, path.append(i), boundary)
		if isNullish(v) {
			if schema.IsNonNull(typ.OfType) {
				return nil
			}
			v = nil
		}
		out[i] = v
	}
	return out
}

// set writes v at path in the response. Paths through values that were
// replaced by null are ignored.
func (ex *execution) set(path Path, v any) {
	var cur any = ex.data
	for i, elem := range path {
		last := i == len(path)-1
		switch key := elem.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return
			}
			if last {
				m[key] = v
				return
			}
			cur = m[key]
		case int:
			list, ok := cur.([]any)
			if !ok || key >= len(list) {
				return
			}
			if last {
				list[key] = v
				return
			}
			cur = list[key]
		}
	}
}

func (ex *execution) isNulled(path Path) bool {
	for _, n := range ex.nulled {
		if path.hasPrefix(n) {
			return true
		}
	}
	return false
}

func (ex *execution) addError(msg string, path Path) {
	ex.errors = append(ex.errors, GraphQLError{Message: msg, Path: path})
}

// addErr records an error returned by the runtime.
func (ex *execution) addErr(err error, path Path) {
	ex.errors = append(ex.errors, newError(err, path))
}

func (ex *execution) hasErrorAt(path Path) bool {
	for _, e := range ex.errors {
		if len(e.Path) == len(path) && e.Path.hasPrefix(path) {
			return true
		}
	}
	return false
}

// isNullish reports nil interfaces and typed nils.
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
