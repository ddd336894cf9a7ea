package directive

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/conneroisu/weave/internal/types"
)

var singleQuoted = regexp.MustCompile(`'([^'"\\]*)'`)

// Evaluate reports whether a conditional expression holds for props.
//
// Prop names used as identifiers are bound to their values as strings. The
// expression language is the HCL native syntax restricted to literals,
// variables, parentheses, unary and binary operators and a ? b : c; function
// calls, collections and for-expressions are rejected. Anything that fails
// to parse, is rejected or fails to evaluate (an unbound identifier, a type
// mismatch) is false.
//
// Operators follow loose prop semantics: &&, || and ! apply the same
// truthiness as a bare condition, and a string operand of ==, !=, the
// relational or the arithmetic operators is converted to the other
// operand's type when it can be, so count == 5 holds for count="5".
func Evaluate(expr string, props types.Props) (result bool) {
	defer func() {
		if recover() != nil {
			result = false
		}
	}()

	parsed, err := Parse(expr)
	if err != nil {
		return false
	}

	vars := make(map[string]cty.Value, props.Len())
	for _, p := range props.Entries() {
		if hclsyntax.ValidIdentifier(p.Name) {
			vars[p.Name] = cty.StringVal(p.Value.String())
		}
	}

	val, err := eval(parsed, &hcl.EvalContext{Variables: vars})
	if err != nil {
		return false
	}

	return truthy(val)
}

// eval walks the checked syntax tree. Leaves are evaluated by HCL; operators
// are applied here.
func eval(expr hclsyntax.Expression, ctx *hcl.EvalContext) (cty.Value, error) {
	switch e := expr.(type) {
	case *hclsyntax.ParenthesesExpr:
		return eval(e.Expression, ctx)
	case *hclsyntax.ConditionalExpr:
		cond, err := eval(e.Condition, ctx)
		if err != nil {
			return cty.NilVal, err
		}
		if truthy(cond) {
			return eval(e.TrueResult, ctx)
		}

		return eval(e.FalseResult, ctx)
	case *hclsyntax.UnaryOpExpr:
		val, err := eval(e.Val, ctx)
		if err != nil {
			return cty.NilVal, err
		}
		if e.Op == hclsyntax.OpLogicalNot {
			return cty.BoolVal(!truthy(val)), nil
		}
		num, err := convert.Convert(val, cty.Number)
		if err != nil {
			return cty.NilVal, err
		}

		return e.Op.Impl.Call([]cty.Value{num})
	case *hclsyntax.BinaryOpExpr:
		return evalBinary(e, ctx)
	default:
		val, diags := expr.Value(ctx)
		if diags.HasErrors() {
			return cty.NilVal, diags
		}

		return val, nil
	}
}

func evalBinary(e *hclsyntax.BinaryOpExpr, ctx *hcl.EvalContext) (cty.Value, error) {
	lhs, err := eval(e.LHS, ctx)
	if err != nil {
		return cty.NilVal, err
	}

	switch e.Op {
	case hclsyntax.OpLogicalAnd, hclsyntax.OpLogicalOr:
		// short-circuit: the right side is not evaluated once the left decides
		if truthy(lhs) == (e.Op == hclsyntax.OpLogicalOr) {
			return cty.BoolVal(truthy(lhs)), nil
		}
		rhs, err := eval(e.RHS, ctx)
		if err != nil {
			return cty.NilVal, err
		}

		return cty.BoolVal(truthy(rhs)), nil
	}

	rhs, err := eval(e.RHS, ctx)
	if err != nil {
		return cty.NilVal, err
	}

	switch e.Op {
	case hclsyntax.OpEqual, hclsyntax.OpNotEqual:
		equal := looseEqual(lhs, rhs)
		if e.Op == hclsyntax.OpNotEqual {
			equal = !equal
		}

		return cty.BoolVal(equal), nil
	}

	// arithmetic and relational operators take numbers
	l, err := convert.Convert(lhs, cty.Number)
	if err != nil {
		return cty.NilVal, err
	}
	r, err := convert.Convert(rhs, cty.Number)
	if err != nil {
		return cty.NilVal, err
	}

	return e.Op.Impl.Call([]cty.Value{l, r})
}

// looseEqual compares values of the same type directly. A string compared
// with a number or a bool is converted to that type first; values that
// cannot be converted are unequal.
func looseEqual(a, b cty.Value) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	if !a.Type().Equals(b.Type()) {
		switch {
		case a.Type() == cty.String:
			converted, err := convert.Convert(a, b.Type())
			if err != nil {
				return false
			}
			a = converted
		case b.Type() == cty.String:
			converted, err := convert.Convert(b, a.Type())
			if err != nil {
				return false
			}
			b = converted
		default:
			return false
		}
	}

	return a.Equals(b).True()
}

// Parse parses and validates a condition without evaluating it.
func Parse(expr string) (hclsyntax.Expression, error) {
	src := normalize(expr)
	if src == "" {
		return nil, fmt.Errorf("empty condition")
	}

	parsed, diags := hclsyntax.ParseExpression([]byte(src), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	if err := checkAllowed(parsed); err != nil {
		return nil, err
	}

	return parsed, nil
}

// normalize rewrites the JavaScript spellings authors tend to use into HCL:
// strict (in)equality and single-quoted strings.
func normalize(expr string) string {
	s := strings.TrimSpace(expr)
	s = strings.ReplaceAll(s, "!==", "!=")
	s = strings.ReplaceAll(s, "===", "==")

	return singleQuoted.ReplaceAllString(s, `"$1"`)
}

// checkAllowed walks the syntax tree and rejects every node outside the
// operator subset.
func checkAllowed(expr hclsyntax.Expression) error {
	if expr == nil {
		return nil
	}

	switch e := expr.(type) {
	case *hclsyntax.LiteralValueExpr:
		return nil
	case *hclsyntax.ScopeTraversalExpr:
		if len(e.Traversal) != 1 {
			return fmt.Errorf("attribute access is not supported in conditions")
		}

		return nil
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			if err := checkAllowed(part); err != nil {
				return err
			}
		}

		return nil
	case *hclsyntax.TemplateWrapExpr:
		return checkAllowed(e.Wrapped)
	case *hclsyntax.ParenthesesExpr:
		return checkAllowed(e.Expression)
	case *hclsyntax.UnaryOpExpr:
		return checkAllowed(e.Val)
	case *hclsyntax.BinaryOpExpr:
		if err := checkAllowed(e.LHS); err != nil {
			return err
		}

		return checkAllowed(e.RHS)
	case *hclsyntax.ConditionalExpr:
		for _, sub := range []hclsyntax.Expression{e.Condition, e.TrueResult, e.FalseResult} {
			if err := checkAllowed(sub); err != nil {
				return err
			}
		}

		return nil
	case *hclsyntax.FunctionCallExpr:
		return fmt.Errorf("function %q is not allowed in conditions", e.Name)
	default:
		return fmt.Errorf("unsupported expression %T in condition", expr)
	}
}

// truthy maps a result onto a boolean. Strings follow the prop convention:
// "" and "false" are false, any other text is true.
func truthy(v cty.Value) bool {
	if v.IsNull() || !v.IsKnown() {
		return false
	}

	switch v.Type() {
	case cty.Bool:
		return v.True()
	case cty.Number:
		return !v.Equals(cty.Zero).True()
	case cty.String:
		s := strings.TrimSpace(v.AsString())

		return s != "" && !strings.EqualFold(s, "false")
	default:
		return false
	}
}
