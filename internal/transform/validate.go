package transform

import (
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"github.com/vektah/gqlparser/v2/validator/core"
	"github.com/vektah/gqlparser/v2/validator/rules"

	"github.com/unboundedsystems/adapt/internal/schema"
)

// Limits bound what @all may add to a document. Expansion grows with the
// fan-out of the schema raised to the depth, so both are capped.
type Limits struct {
	// MaxDepth is the largest depth argument accepted.
	MaxDepth int
	// MaxFields caps the synthetic fields a single @all may add, counted
	// across all levels.
	MaxFields int
}

var DefaultLimits = Limits{MaxDepth: 5, MaxFields: 2000}

// AllDepthRule rejects @all directives whose depth is not an integer literal
// between 1 and maxDepth.
func AllDepthRule(maxDepth int) core.Rule {
	return core.Rule{
		Name: "AllDirectiveDepth",
		RuleFunc: func(observers *core.Events, addError core.AddErrFunc) {
			observers.OnDirective(func(walker *core.Walker, directive *ast.Directive) {
				if directive.Name != schema.AllDirective {
					return
				}
				arg := directive.Arguments.ForName(schema.AllDepthArg)
				if arg == nil || arg.Value == nil {
					return
				}
				if arg.Value.Kind != ast.IntValue {
					addError(
						core.Message(`Argument "%s" of @%s must be an integer literal, got %s.`, schema.AllDepthArg, schema.AllDirective, arg.Value.String()),
						core.At(arg.Value.Position),
					)
					return
				}
				n, err := strconv.Atoi(arg.Value.Raw)
				switch {
				case err != nil || n < 1:
					addError(
						core.Message(`Argument "%s" of @%s must be at least 1, got %s.`, schema.AllDepthArg, schema.AllDirective, arg.Value.Raw),
						core.At(arg.Value.Position),
					)
				case maxDepth > 0 && n > maxDepth:
					addError(
						core.Message(`Argument "%s" of @%s must be at most %d, got %s.`, schema.AllDepthArg, schema.AllDirective, maxDepth, arg.Value.Raw),
						core.At(arg.Value.Position),
					)
				}
			})
		},
	}
}

// allSizeRule rejects @all directives that would add more than lim.MaxFields
// fields. Directives already over lim.MaxDepth are left to AllDepthRule.
func allSizeRule(sch *schema.Schema, lim Limits) core.Rule {
	check := func(t *schema.Type, d *ast.Directive, depth int, addError core.AddErrFunc) {
		if d == nil || !t.HasFields() {
			return
		}
		if lim.MaxDepth > 0 && depth > lim.MaxDepth {
			return
		}
		if n := countFields(sch, t, depth, lim.MaxFields); n > lim.MaxFields {
			addError(
				core.Message(`@%s on type "%s" with %s %d adds more than %d fields.`, schema.AllDirective, t.Name, schema.AllDepthArg, depth, lim.MaxFields),
				core.At(d.Position),
			)
		}
	}
	return core.Rule{
		Name: "AllDirectiveSize",
		RuleFunc: func(observers *core.Events, addError core.AddErrFunc) {
			observers.OnOperation(func(walker *core.Walker, op *ast.OperationDefinition) {
				// Operations expand one level whatever the depth argument says.
				check(sch.RootType(op.Operation), op.Directives.ForName(schema.AllDirective), 1, addError)
			})
			observers.OnField(func(walker *core.Walker, field *ast.Field) {
				if field.Definition == nil {
					return
				}
				if d := field.Directives.ForName(schema.AllDirective); d != nil {
					check(sch.Types[field.Definition.Type.Name()], d, Depth(d), addError)
				}
			})
		},
	}
}

// countFields counts the fields fieldsOf(sch, t, depth) emits. It stops once
// the count exceeds limit.
func countFields(sch *schema.Schema, t *schema.Type, depth, limit int) int {
	n := 0
	for _, def := range t.Fields {
		if !def.NeedsNoArgs() {
			continue
		}
		n++
		if n > limit {
			return n
		}
		if depth > 1 {
			if child := sch.Types[def.Type.GetNamedType()]; child != nil && child.HasFields() {
				n += countFields(sch, child, depth-1, limit-n)
				if n > limit {
					return n
				}
			}
		}
	}
	return n
}

// scalarLeafsRule is the standard ScalarLeafs rule, except that a composite
// field carrying @all may omit its selection set.
var scalarLeafsRule = core.Rule{
	Name: rules.ScalarLeafsRule.Name,
	RuleFunc: func(observers *core.Events, addError core.AddErrFunc) {
		observers.OnField(func(walker *core.Walker, field *ast.Field) {
			if field.Definition == nil {
				return
			}
			fieldType := walker.Schema.Types[field.Definition.Type.Name()]
			if fieldType == nil {
				return
			}
			if fieldType.IsLeafType() && len(field.SelectionSet) > 0 {
				addError(
					core.Message(`Field "%s" must not have a selection since type "%s" has no subfields.`, field.Name, fieldType.Name),
					core.At(field.Position),
				)
			}
			if !fieldType.IsLeafType() && len(field.SelectionSet) == 0 && field.Directives.ForName(schema.AllDirective) == nil {
				addError(
					core.Message(`Field "%s" of type "%s" must have a selection of subfields.`, field.Name, field.Definition.Type.String()),
					core.At(field.Position),
				)
			}
		})
	},
}

// Rules returns the standard validation rules adjusted for @all, with the
// expansion bounded by lim. A zero MaxFields disables the size check.
func Rules(sch *schema.Schema, lim Limits) *rules.Rules {
	r := rules.NewDefaultRules()
	r.ReplaceRule(scalarLeafsRule.Name, scalarLeafsRule.RuleFunc)
	depth := AllDepthRule(lim.MaxDepth)
	r.AddRule(depth.Name, depth.RuleFunc)
	if lim.MaxFields > 0 {
		size := allSizeRule(sch, lim)
		r.AddRule(size.Name, size.RuleFunc)
	}
	return r
}

// Validate checks doc against the schema it will be executed with. The
// document is annotated with definitions as a side effect.
func Validate(sch *schema.Schema, doc *ast.QueryDocument, lim Limits) gqlerror.List {
	if sch.Source == nil {
		return gqlerror.List{gqlerror.Errorf("schema has no source to validate against")}
	}
	return validator.ValidateWithRules(sch.Source, doc, Rules(sch, lim))
}
