package schema

import (
	"github.com/vektah/gqlparser/v2/ast"

	language "github.com/unboundedsystems/adapt/internal/language"
)

// Schema is the executable form of an observer schema.
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type
	Directives       map[string]*Directive
	Description      string

	// Source is the gqlparser schema the model was loaded from, if any.
	// Query validation and SDL rendering work from it.
	Source *ast.Schema `json:"-"`
}

func (s *Schema) GetQueryType() *Type    { return s.Types[s.QueryType] }
func (s *Schema) GetMutationType() *Type { return s.Types[s.MutationType] }

// RootType returns the type operations of kind op start from, or nil when the
// schema has none.
func (s *Schema) RootType(op language.Operation) *Type {
	var name string
	switch op {
	case language.Query:
		name = s.QueryType
	case language.Mutation:
		name = s.MutationType
	case language.Subscription:
		name = s.SubscriptionType
	}
	if name == "" {
		return nil
	}
	return s.Types[name]
}

// IsPossibleType reports whether a fragment with type condition cond applies
// to a value of the object type concrete. An empty condition always applies.
func (s *Schema) IsPossibleType(cond, concrete string) bool {
	if cond == "" || cond == concrete {
		return true
	}
	t := s.Types[cond]
	if t == nil {
		return false
	}
	if contains(t.PossibleTypes, concrete) {
		return true
	}
	c := s.Types[concrete]
	return c != nil && contains(c.Interfaces, cond)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

type Type struct {
	Name        string
	Kind        TypeKind
	Description string
	// Fields of objects and interfaces, in declaration order.
	Fields     []*Field
	Interfaces []string
	// PossibleTypes of interfaces and unions.
	PossibleTypes []string
	EnumValues    []*EnumValue
	InputFields   []*InputValue
}

// Field looks up a field definition by name.
func (t *Type) Field(name string) *Field {
	if t == nil {
		return nil
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// HasFields reports whether selections can be made on t.
func (t *Type) HasFields() bool {
	return t != nil && (t.Kind == TypeKindObject || t.Kind == TypeKindInterface)
}

type Field struct {
	Name        string
	Description string
	Type        *TypeRef
	Arguments   []*InputValue
	// Async fields are resolved in depth-wise batches.
	Async             bool
	IsDeprecated      bool
	DeprecationReason string
}

// NeedsNoArgs reports whether the field can be selected with no arguments:
// each argument has a default or accepts null. @all only expands such fields.
func (f *Field) NeedsNoArgs() bool {
	for _, arg := range f.Arguments {
		if arg.DefaultValue == nil && IsNonNull(arg.Type) {
			return false
		}
	}
	return true
}

type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// TypeRef is a possibly wrapped reference to a named type.
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef
	Named  string
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

func (t *TypeRef) IsNonNull() bool {
	return t != nil && t.Kind == TypeRefKindNonNull
}

// GetNamedType strips every wrapper.
func (t *TypeRef) GetNamedType() string {
	for t != nil && t.Named == "" {
		t = t.OfType
	}
	if t == nil {
		return ""
	}
	return t.Named
}

// String renders t in SDL notation, e.g. "[Foo!]".
func (t *TypeRef) String() string {
	switch {
	case t == nil:
		return ""
	case t.Kind == TypeRefKindNonNull:
		return t.OfType.String() + "!"
	case t.Kind == TypeRefKindList:
		return "[" + t.OfType.String() + "]"
	}
	return t.Named
}

type EnumValue struct {
	Name              string
	Description       string
	IsDeprecated      bool
	DeprecationReason string
}

// InputValue is an argument or input object field.
type InputValue struct {
	Name         string
	Description  string
	Type         *TypeRef
	DefaultValue any
}

type Directive struct {
	Name         string
	Description  string
	Locations    []string
	Arguments    []*InputValue
	IsRepeatable bool
}

func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }

// IsNonNull is the nil-safe form of TypeRef.IsNonNull.
func IsNonNull(t *TypeRef) bool { return t.IsNonNull() }
