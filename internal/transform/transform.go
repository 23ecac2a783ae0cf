// Package transform rewrites query documents against a schema. The only
// transform today expands selections marked with @all into explicit fields.
package transform

import (
	"strconv"

	"github.com/unboundedsystems/adapt/internal/language"
	"github.com/unboundedsystems/adapt/internal/schema"
)

// ApplyAll returns a copy of doc in which every field or operation carrying
// @all has its selection set extended with the fields of its type that can be
// queried without arguments. The input document is not modified. Directives
// are kept on the output as they were.
func ApplyAll(sch *schema.Schema, doc *language.QueryDocument) *language.QueryDocument {
	if doc == nil {
		return nil
	}
	out := *doc
	out.Operations = make(language.OperationList, len(doc.Operations))
	for i, op := range doc.Operations {
		out.Operations[i] = expandOperation(sch, op)
	}
	out.Fragments = make(language.FragmentDefinitionList, len(doc.Fragments))
	for i, frag := range doc.Fragments {
		cp := *frag
		cp.SelectionSet = expandSelectionSet(sch, sch.Types[frag.TypeCondition], frag.SelectionSet)
		out.Fragments[i] = &cp
	}
	return &out
}

func expandOperation(sch *schema.Schema, op *language.OperationDefinition) *language.OperationDefinition {
	cp := *op
	root := sch.RootType(op.Operation)
	cp.SelectionSet = expandSelectionSet(sch, root, op.SelectionSet)
	if op.Directives.ForName(schema.AllDirective) != nil && root != nil {
		cp.SelectionSet = merge(cp.SelectionSet, fieldsOf(sch, root, 1))
	}
	return &cp
}

// expandSelectionSet copies set, expanding @all on the fields it contains.
// parent is nil when the enclosing type is unknown; @all below it is a no-op.
func expandSelectionSet(sch *schema.Schema, parent *schema.Type, set language.SelectionSet) language.SelectionSet {
	if set == nil {
		return nil
	}
	out := make(language.SelectionSet, 0, len(set))
	for _, sel := range set {
		switch s := sel.(type) {
		case *language.Field:
			out = append(out, expandField(sch, parent, s))
		case *language.InlineFragment:
			cp := *s
			t := parent
			if s.TypeCondition != "" {
				t = sch.Types[s.TypeCondition]
			}
			cp.SelectionSet = expandSelectionSet(sch, t, s.SelectionSet)
			out = append(out, &cp)
		default:
			out = append(out, sel)
		}
	}
	return out
}

func expandField(sch *schema.Schema, parent *schema.Type, f *language.Field) *language.Field {
	cp := *f
	fieldType := fieldTypeOf(sch, parent, f.Name)
	cp.SelectionSet = expandSelectionSet(sch, fieldType, f.SelectionSet)

	all := f.Directives.ForName(schema.AllDirective)
	if all == nil || fieldType == nil || !fieldType.HasFields() {
		return &cp
	}
	cp.SelectionSet = merge(cp.SelectionSet, fieldsOf(sch, fieldType, Depth(all)))
	return &cp
}

// fieldTypeOf returns the named type of parent.name, or nil if parent has no
// such field.
func fieldTypeOf(sch *schema.Schema, parent *schema.Type, name string) *schema.Type {
	if parent == nil || !parent.HasFields() {
		return nil
	}
	def := parent.Field(name)
	if def == nil {
		return nil
	}
	return sch.Types[def.Type.GetNamedType()]
}

// fieldsOf builds the synthetic selection for t. Object-typed fields get a
// nested selection while depth remains, and are emitted bare at the last
// level.
func fieldsOf(sch *schema.Schema, t *schema.Type, depth int) language.SelectionSet {
	var out language.SelectionSet
	for _, def := range t.Fields {
		if !def.NeedsNoArgs() {
			continue
		}
		field := &language.Field{Alias: def.Name, Name: def.Name}
		if depth > 1 {
			if child := sch.Types[def.Type.GetNamedType()]; child != nil && child.HasFields() {
				field.SelectionSet = fieldsOf(sch, child, depth-1)
			}
		}
		out = append(out, field)
	}
	return out
}

// merge keeps existing as is and appends the fields of extra whose response
// name is not already selected.
func merge(existing, extra language.SelectionSet) language.SelectionSet {
	seen := make(map[string]bool, len(existing))
	for _, sel := range existing {
		if f, ok := sel.(*language.Field); ok {
			seen[language.ResponseName(f)] = true
		}
	}
	out := make(language.SelectionSet, 0, len(existing)+len(extra))
	out = append(out, existing...)
	for _, sel := range extra {
		f := sel.(*language.Field)
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		out = append(out, f)
	}
	return out
}

// Depth reads the depth argument of an @all directive. Documents are
// validated before transformation, so anything but a positive integer
// literal falls back to the default of 1.
func Depth(d *language.Directive) int {
	arg := d.Arguments.ForName(schema.AllDepthArg)
	if arg == nil || arg.Value == nil || arg.Value.Kind != language.IntValue {
		return 1
	}
	n, err := strconv.Atoi(arg.Value.Raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
