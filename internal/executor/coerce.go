package executor

import (
	"fmt"
	"math"
	"strconv"

	"github.com/unboundedsystems/adapt/internal/language"
	"github.com/unboundedsystems/adapt/internal/schema"
)

// coerceVariables applies defaults and input coercion to the raw variable
// values of op.
func coerceVariables(sch *schema.Schema, op *language.OperationDefinition, raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(op.VariableDefinitions))
	for _, def := range op.VariableDefinitions {
		typ := typeRefOf(def.Type)
		value, ok := raw[def.Variable]
		switch {
		case !ok && def.DefaultValue != nil:
			value = literal(def.DefaultValue, nil)
		case !ok && def.Type.NonNull:
			return nil, fmt.Errorf("variable $%s of required type %s was not provided", def.Variable, def.Type.String())
		case !ok:
			continue
		}
		if value == nil && def.Type.NonNull {
			return nil, fmt.Errorf("variable $%s of type %s cannot be null", def.Variable, def.Type.String())
		}
		v, err := coerce(sch, value, typ)
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s cannot be coerced: %v", def.Variable, def.Type.String(), err)
		}
		out[def.Variable] = v
	}
	return out, nil
}

// arguments coerces the arguments given to a field, filling in defaults.
// Every problem found is returned as a message; a field with problems is not
// resolved.
func arguments(sch *schema.Schema, def *schema.Field, given language.ArgumentList, vars map[string]any) (map[string]any, []string) {
	out := make(map[string]any, len(def.Arguments))
	var problems []string
	for _, arg := range def.Arguments {
		node := given.ForName(arg.Name)
		if node == nil || isUnsetVariable(node.Value, vars) {
			switch {
			case arg.DefaultValue != nil:
				out[arg.Name] = coerceDefault(sch, arg)
			case schema.IsNonNull(arg.Type):
				problems = append(problems, fmt.Sprintf("argument '%s' of required type was not provided", arg.Name))
			}
			continue
		}
		v, err := coerce(sch, literal(node.Value, vars), arg.Type)
		if err != nil {
			problems = append(problems, fmt.Sprintf("argument '%s' cannot be coerced: %v", arg.Name, err))
			continue
		}
		out[arg.Name] = v
	}
	return out, problems
}

func isUnsetVariable(v *language.Value, vars map[string]any) bool {
	if v == nil || v.Kind != language.Variable {
		return false
	}
	_, ok := vars[v.Raw]
	return !ok
}

// literal converts an AST value to a Go value, substituting variables at any
// nesting level.
func literal(v *language.Value, vars map[string]any) any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case language.Variable:
		return vars[v.Raw]
	case language.IntValue:
		n, err := strconv.ParseInt(v.Raw, 10, 64)
		if err != nil {
			return v.Raw
		}
		return int(n)
	case language.FloatValue:
		f, err := strconv.ParseFloat(v.Raw, 64)
		if err != nil {
			return v.Raw
		}
		return f
	case language.BooleanValue:
		return v.Raw == "true"
	case language.NullValue:
		return nil
	case language.ListValue:
		out := make([]any, len(v.Children))
		for i, c := range v.Children {
			out[i] = literal(c.Value, vars)
		}
		return out
	case language.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			if isUnsetVariable(c.Value, vars) {
				continue
			}
			out[c.Name] = literal(c.Value, vars)
		}
		return out
	default:
		// strings, block strings and enum names
		return v.Raw
	}
}

// coerce converts value to the Go representation of typ.
func coerce(sch *schema.Schema, value any, typ *schema.TypeRef) (any, error) {
	if schema.IsNonNull(typ) {
		if value == nil {
			return nil, fmt.Errorf("cannot provide null for non-null type")
		}
		return coerce(sch, value, typ.OfType)
	}
	if value == nil {
		return nil, nil
	}
	if typ.Kind == schema.TypeRefKindList {
		items, ok := value.([]any)
		if !ok {
			// a single value stands for a list of one
			items = []any{value}
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := coerce(sch, item, typ.OfType)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}

	switch typ.Named {
	case "Int":
		return toInt(value)
	case "Float":
		return toFloat(value)
	case "String":
		if s, ok := value.(string); ok {
			return s, nil
		}
		return fmt.Sprint(value), nil
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("cannot coerce %v (%T) to boolean", value, value)
	case "ID":
		return toID(value)
	}

	t := sch.Types[typ.Named]
	switch {
	case t == nil:
		return value, nil
	case t.Kind == schema.TypeKindInputObject:
		return coerceInputObject(sch, value, t)
	case t.Kind == schema.TypeKindEnum:
		return coerceEnum(value, t)
	}
	// custom scalars pass through
	return value, nil
}

func coerceInputObject(sch *schema.Schema, value any, t *schema.Type) (any, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object for input type %s, got %T", t.Name, value)
	}
	known := make(map[string]bool, len(t.InputFields))
	out := make(map[string]any, len(t.InputFields))
	for _, f := range t.InputFields {
		known[f.Name] = true
		v, present := m[f.Name]
		if !present {
			switch {
			case f.DefaultValue != nil:
				out[f.Name] = coerceDefault(sch, f)
			case schema.IsNonNull(f.Type):
				return nil, fmt.Errorf("required field '%s' of input type %s was not provided", f.Name, t.Name)
			}
			continue
		}
		cv, err := coerce(sch, v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field '%s' of input type %s: %v", f.Name, t.Name, err)
		}
		out[f.Name] = cv
	}
	for k := range m {
		if !known[k] {
			return nil, fmt.Errorf("unknown field '%s' for input type %s", k, t.Name)
		}
	}
	return out, nil
}

func coerceEnum(value any, t *schema.Type) (any, error) {
	name, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("cannot coerce %v (%T) to enum %s", value, value, t.Name)
	}
	for _, v := range t.EnumValues {
		if v.Name == name {
			return name, nil
		}
	}
	return nil, fmt.Errorf("%q is not a value of enum %s", name, t.Name)
}

// coerceDefault coerces a schema default. SDL defaults hold int64 integers,
// which narrow to int like literal arguments do.
func coerceDefault(sch *schema.Schema, v *schema.InputValue) any {
	if cv, err := coerce(sch, v.DefaultValue, v.Type); err == nil {
		return cv
	}
	return v.DefaultValue
}

func toInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float32:
		return toInt(float64(v))
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int(v), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
}

func toFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to float", value, value)
}

func toID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to ID", value, value)
}

func typeRefOf(t *language.Type) *schema.TypeRef {
	switch {
	case t == nil:
		return nil
	case t.NonNull:
		return schema.NonNullType(typeRefOf(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	case t.Elem != nil:
		return schema.ListType(typeRefOf(t.Elem))
	}
	return schema.NamedType(t.NamedType)
}
