package schema

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

func NewSchema(description string) *Schema {
	return &Schema{
		Types:       make(map[string]*Type),
		Directives:  make(map[string]*Directive),
		Description: description,
	}
}

func (s *Schema) SetQueryType(name string) *Schema        { s.QueryType = name; return s }
func (s *Schema) SetMutationType(name string) *Schema     { s.MutationType = name; return s }
func (s *Schema) SetSubscriptionType(name string) *Schema { s.SubscriptionType = name; return s }

func (s *Schema) AddType(t *Type) *Schema {
	if s.Types == nil {
		s.Types = make(map[string]*Type)
	}
	s.Types[t.Name] = t
	return s
}

func (s *Schema) AddDirective(d *Directive) *Schema {
	if s.Directives == nil {
		s.Directives = make(map[string]*Directive)
	}
	s.Directives[d.Name] = d
	return s
}

func NewType(name string, kind TypeKind, description string) *Type {
	return &Type{Name: name, Kind: kind, Description: description}
}

func (t *Type) AddField(f *Field) *Type        { t.Fields = append(t.Fields, f); return t }
func (t *Type) AddInterface(name string) *Type { t.Interfaces = append(t.Interfaces, name); return t }
func (t *Type) AddPossibleType(name string) *Type {
	t.PossibleTypes = append(t.PossibleTypes, name)
	return t
}
func (t *Type) AddEnumValue(v *EnumValue) *Type        { t.EnumValues = append(t.EnumValues, v); return t }
func (t *Type) AddInputField(v *InputValue) *Type      { t.InputFields = append(t.InputFields, v); return t }
func (f *Field) AddArgument(a *InputValue) *Field      { f.Arguments = append(f.Arguments, a); return f }
func (f *Field) SetAsync(async bool) *Field            { f.Async = async; return f }
func (v *InputValue) SetDefault(value any) *InputValue { v.DefaultValue = value; return v }

func NewField(name, description string, typ *TypeRef) *Field {
	return &Field{Name: name, Description: description, Type: typ}
}

func (f *Field) Deprecate(reason string) *Field {
	f.IsDeprecated = true
	f.DeprecationReason = reason
	return f
}

func NewInputValue(name, description string, typ *TypeRef) *InputValue {
	return &InputValue{Name: name, Description: description, Type: typ}
}

func NewEnumValue(name, description string) *EnumValue {
	return &EnumValue{Name: name, Description: description}
}

func (e *EnumValue) Deprecate(reason string) *EnumValue {
	e.IsDeprecated = true
	e.DeprecationReason = reason
	return e
}

// BuildFromSDL parses SDL and returns the corresponding Schema. The @all and
// @async directives are declared automatically unless the SDL already does.
func BuildFromSDL(sdl string) (*Schema, error) {
	return BuildFromSDLNamed("schema.graphql", sdl)
}

// BuildFromSDLNamed is BuildFromSDL with a source name used in error locations.
func BuildFromSDLNamed(name, sdl string) (*Schema, error) {
	sources := []*ast.Source{{Name: name, Input: sdl}}
	if !strings.Contains(sdl, "directive @"+AllDirective) {
		sources = append([]*ast.Source{{Name: "prelude.graphql", Input: preludeSDL, BuiltIn: true}}, sources...)
	}
	src, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", name, err)
	}
	return BuildFromAST(src), nil
}

// BuildFromAST converts a validated gqlparser schema into the executable model.
// Introspection types and fields are left out.
func BuildFromAST(src *ast.Schema) *Schema {
	s := NewSchema(src.Description)
	s.Source = src
	if src.Query != nil {
		s.SetQueryType(src.Query.Name)
	}
	if src.Mutation != nil {
		s.SetMutationType(src.Mutation.Name)
	}
	if src.Subscription != nil {
		s.SetSubscriptionType(src.Subscription.Name)
	}
	for _, d := range src.Directives {
		s.AddDirective(buildDirective(d))
	}
	for name, def := range src.Types {
		if strings.HasPrefix(name, "__") {
			continue
		}
		s.AddType(buildDefinition(src, def))
	}
	return s
}

func buildDirective(d *ast.DirectiveDefinition) *Directive {
	out := &Directive{Name: d.Name, Description: d.Description, IsRepeatable: d.IsRepeatable}
	for _, loc := range d.Locations {
		out.Locations = append(out.Locations, string(loc))
	}
	for _, arg := range d.Arguments {
		out.Arguments = append(out.Arguments, NewInputValue(arg.Name, arg.Description, buildTypeRef(arg.Type)).
			SetDefault(defaultValue(arg.DefaultValue)))
	}
	return out
}

func buildDefinition(src *ast.Schema, def *ast.Definition) *Type {
	switch def.Kind {
	case ast.Object, ast.Interface:
		kind := TypeKindObject
		if def.Kind == ast.Interface {
			kind = TypeKindInterface
		}
		t := NewType(def.Name, kind, def.Description)
		for _, name := range def.Interfaces {
			t.AddInterface(name)
		}
		for _, fd := range def.Fields {
			if strings.HasPrefix(fd.Name, "__") {
				continue
			}
			t.AddField(buildField(fd))
		}
		if def.Kind == ast.Interface {
			for _, impl := range src.PossibleTypes[def.Name] {
				t.AddPossibleType(impl.Name)
			}
		}
		return t
	case ast.Union:
		t := NewType(def.Name, TypeKindUnion, def.Description)
		for _, name := range def.Types {
			t.AddPossibleType(name)
		}
		return t
	case ast.Enum:
		t := NewType(def.Name, TypeKindEnum, def.Description)
		for _, v := range def.EnumValues {
			ev := NewEnumValue(v.Name, v.Description)
			if reason, ok := deprecation(v.Directives); ok {
				ev.Deprecate(reason)
			}
			t.AddEnumValue(ev)
		}
		return t
	case ast.InputObject:
		t := NewType(def.Name, TypeKindInputObject, def.Description)
		for _, fd := range def.Fields {
			t.AddInputField(NewInputValue(fd.Name, fd.Description, buildTypeRef(fd.Type)).
				SetDefault(defaultValue(fd.DefaultValue)))
		}
		return t
	default:
		return NewType(def.Name, TypeKindScalar, def.Description)
	}
}

func buildField(fd *ast.FieldDefinition) *Field {
	f := NewField(fd.Name, fd.Description, buildTypeRef(fd.Type)).
		SetAsync(fd.Directives.ForName(AsyncDirective) != nil)
	if reason, ok := deprecation(fd.Directives); ok {
		f.Deprecate(reason)
	}
	for _, arg := range fd.Arguments {
		f.AddArgument(NewInputValue(arg.Name, arg.Description, buildTypeRef(arg.Type)).
			SetDefault(defaultValue(arg.DefaultValue)))
	}
	return f
}

func buildTypeRef(t *ast.Type) *TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return NonNullType(buildTypeRef(&ast.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.Elem != nil {
		return ListType(buildTypeRef(t.Elem))
	}
	return NamedType(t.NamedType)
}

func defaultValue(v *ast.Value) any {
	if v == nil {
		return nil
	}
	out, err := v.Value(nil)
	if err != nil {
		return nil
	}
	return out
}

func deprecation(dirs ast.DirectiveList) (string, bool) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return "", true
}

// Render produces SDL for a schema loaded from source. Schemas assembled by
// hand render as the empty string.
func Render(s *Schema) string {
	if s == nil || s.Source == nil {
		return ""
	}
	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatSchema(s.Source)
	return buf.String()
}
