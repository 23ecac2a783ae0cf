package executor

import (
	"github.com/unboundedsystems/adapt/internal/language"
	"github.com/unboundedsystems/adapt/internal/schema"
)

// fieldGroup is the set of field nodes sharing one response name.
type fieldGroup struct {
	name   string
	fields []*language.Field
}

// collectFields groups the fields selected on objectType by response name,
// in the order they first appear. Fragments apply when their type condition
// is objectType or an abstract type that includes it.
func (ex *execution) collectFields(objectType *schema.Type, set language.SelectionSet) []fieldGroup {
	var groups []fieldGroup
	index := make(map[string]int)
	visited := make(map[string]bool)

	var walk func(set language.SelectionSet)
	walk = func(set language.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *language.Field:
				if !ex.included(s.Directives) {
					continue
				}
				name := language.ResponseName(s)
				if i, ok := index[name]; ok {
					groups[i].fields = append(groups[i].fields, s)
					continue
				}
				index[name] = len(groups)
				groups = append(groups, fieldGroup{name: name, fields: []*language.Field{s}})
			case *language.InlineFragment:
				if ex.included(s.Directives) && ex.schema.IsPossibleType(s.TypeCondition, objectType.Name) {
					walk(s.SelectionSet)
				}
			case *language.FragmentSpread:
				if visited[s.Name] || !ex.included(s.Directives) {
					continue
				}
				visited[s.Name] = true
				frag := ex.document.Fragments.ForName(s.Name)
				if frag == nil || !ex.included(frag.Directives) || !ex.schema.IsPossibleType(frag.TypeCondition, objectType.Name) {
					continue
				}
				walk(frag.SelectionSet)
			}
		}
	}
	walk(set)
	return groups
}

// included evaluates @skip and @include.
func (ex *execution) included(dirs language.DirectiveList) bool {
	if skip, ok := ex.directiveIf(dirs.ForName("skip")); ok && skip {
		return false
	}
	if include, ok := ex.directiveIf(dirs.ForName("include")); ok && !include {
		return false
	}
	return true
}

func (ex *execution) directiveIf(d *language.Directive) (bool, bool) {
	if d == nil {
		return false, false
	}
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false, false
	}
	b, ok := literal(arg.Value, ex.variables).(bool)
	return b, ok
}

// subSelection merges the selection sets of every node in a field group.
func subSelection(fields []*language.Field) language.SelectionSet {
	if len(fields) == 1 {
		return fields[0].SelectionSet
	}
	var out language.SelectionSet
	for _, f := range fields {
		out = append(out, f.SelectionSet...)
	}
	return out
}
