package script

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// interp holds the state of one execution: variable bindings, captured
// stdout and emitted components.
type interp struct {
	ctx        context.Context
	deadline   time.Time
	env        map[string]Value
	out        strings.Builder
	components []Component
}

// checkBudget enforces cancellation and the wall-clock budget at
// statement boundaries. The language has no loop construct, so this
// granularity bounds total run time.
func (in *interp) checkBudget() error {
	select {
	case <-in.ctx.Done():
		return fmt.Errorf("execution cancelled: %v", in.ctx.Err())
	default:
	}
	if time.Now().After(in.deadline) {
		return fmt.Errorf("execution budget exceeded")
	}
	return nil
}

func (in *interp) eval(node Node) (Value, error) {
	switch n := node.(type) {
	case *NumberLit:
		return Num(n.Value), nil
	case *StringLit:
		return Str(n.Value), nil
	case *BoolLit:
		return BoolVal(n.Value), nil
	case *NullLit:
		return Null(), nil

	case *ListLit:
		items := make([]Value, len(n.Items))
		for i, itemNode := range n.Items {
			v, err := in.eval(itemNode)
			if err != nil {
				return Null(), err
			}
			items[i] = v
		}
		return ListVal(items), nil

	case *Ident:
		v, ok := in.env[n.Name]
		if !ok {
			return Null(), fmt.Errorf("name error: %q is not defined", n.Name)
		}
		return v, nil

	case *Call:
		return in.evalCall(n)

	case *Unary:
		return in.evalUnary(n)

	case *Binary:
		return in.evalBinary(n)

	case *Index:
		return in.evalIndex(n)

	default:
		return Null(), fmt.Errorf("internal error: unknown node %T", node)
	}
}

func (in *interp) evalCall(call *Call) (Value, error) {
	b, ok := builtins[call.Name]
	if !ok {
		return Null(), fmt.Errorf("name error: unknown function %q", call.Name)
	}
	if len(call.Args) < b.minArgs || (b.maxArgs >= 0 && len(call.Args) > b.maxArgs) {
		return Null(), fmt.Errorf("type error: %s() takes %s arguments, got %d",
			call.Name, b.arity(), len(call.Args))
	}
	args := make([]Value, len(call.Args))
	for i, argNode := range call.Args {
		v, err := in.eval(argNode)
		if err != nil {
			return Null(), err
		}
		args[i] = v
	}
	return b.fn(in, args)
}

func (in *interp) evalUnary(n *Unary) (Value, error) {
	right, err := in.eval(n.Right)
	if err != nil {
		return Null(), err
	}
	switch n.Op {
	case TokenMinus:
		f, ok := asNumber(right)
		if !ok {
			return Null(), fmt.Errorf("type error: cannot negate %s", right.TypeName())
		}
		return Num(-f), nil
	case TokenNot:
		return BoolVal(!right.Truthy()), nil
	default:
		return Null(), fmt.Errorf("internal error: unary op %d", n.Op)
	}
}

func (in *interp) evalBinary(n *Binary) (Value, error) {
	// and/or short-circuit.
	if n.Op == TokenAnd || n.Op == TokenOr {
		left, err := in.eval(n.Left)
		if err != nil {
			return Null(), err
		}
		if n.Op == TokenAnd && !left.Truthy() {
			return BoolVal(false), nil
		}
		if n.Op == TokenOr && left.Truthy() {
			return BoolVal(true), nil
		}
		right, err := in.eval(n.Right)
		if err != nil {
			return Null(), err
		}
		return BoolVal(right.Truthy()), nil
	}

	left, err := in.eval(n.Left)
	if err != nil {
		return Null(), err
	}
	right, err := in.eval(n.Right)
	if err != nil {
		return Null(), err
	}

	switch n.Op {
	case TokenPlus:
		// String concatenation when either side is a string.
		if left.Kind == KindString || right.Kind == KindString {
			return Str(left.Render() + right.Render()), nil
		}
		return in.arith(left, right, "+")
	case TokenMinus:
		return in.arith(left, right, "-")
	case TokenStar:
		return in.arith(left, right, "*")
	case TokenSlash:
		return in.arith(left, right, "/")
	case TokenPercent:
		return in.arith(left, right, "%")
	case TokenEq:
		return BoolVal(valuesEqual(left, right)), nil
	case TokenNotEq:
		return BoolVal(!valuesEqual(left, right)), nil
	case TokenLt, TokenLte, TokenGt, TokenGte:
		return compareOrdered(left, right, n.Op)
	default:
		return Null(), fmt.Errorf("internal error: binary op %d", n.Op)
	}
}

func (in *interp) arith(left, right Value, op string) (Value, error) {
	a, okA := asNumber(left)
	b, okB := asNumber(right)
	if !okA || !okB {
		return Null(), fmt.Errorf("type error: cannot apply %q to %s and %s",
			op, left.TypeName(), right.TypeName())
	}
	switch op {
	case "+":
		return Num(a + b), nil
	case "-":
		return Num(a - b), nil
	case "*":
		return Num(a * b), nil
	case "/":
		if b == 0 {
			return Null(), fmt.Errorf("value error: division by zero")
		}
		return Num(a / b), nil
	case "%":
		if b == 0 {
			return Null(), fmt.Errorf("value error: modulo by zero")
		}
		return Num(float64(int64(a) % int64(b))), nil
	default:
		return Null(), fmt.Errorf("internal error: arith op %q", op)
	}
}

func (in *interp) evalIndex(n *Index) (Value, error) {
	target, err := in.eval(n.Target)
	if err != nil {
		return Null(), err
	}
	key, err := in.eval(n.Key)
	if err != nil {
		return Null(), err
	}

	switch target.Kind {
	case KindList:
		idx, ok := asNumber(key)
		if !ok {
			return Null(), fmt.Errorf("type error: list index must be a number, got %s", key.TypeName())
		}
		i := int(idx)
		if i < 0 {
			i += len(target.List)
		}
		if i < 0 || i >= len(target.List) {
			return Null(), fmt.Errorf("value error: list index %d out of range (length %d)", int(idx), len(target.List))
		}
		return target.List[i], nil

	case KindMap:
		if key.Kind != KindString {
			return Null(), fmt.Errorf("type error: map key must be a string, got %s", key.TypeName())
		}
		v, ok := target.Map.Items[key.Str]
		if !ok {
			return Null(), fmt.Errorf("value error: key %q not found", key.Str)
		}
		return v, nil

	case KindTable:
		// df["col"] is sugar for col(df, "col").
		if key.Kind != KindString {
			return Null(), fmt.Errorf("type error: column selector must be a string, got %s", key.TypeName())
		}
		return columnValues(target.Table, key.Str)

	default:
		return Null(), fmt.Errorf("type error: cannot index %s", target.TypeName())
	}
}

// valuesEqual compares numerically when both sides have a numeric view,
// else by rendered string.
func valuesEqual(a, b Value) bool {
	if fa, ok := asNumber(a); ok {
		if fb, ok := asNumber(b); ok {
			return fa == fb
		}
	}
	if a.Kind == KindNull || b.Kind == KindNull {
		return a.Kind == b.Kind
	}
	return a.Render() == b.Render()
}

func compareOrdered(a, b Value, op TokenType) (Value, error) {
	if fa, okA := asNumber(a); okA {
		if fb, okB := asNumber(b); okB {
			return BoolVal(applyOrder(compareFloats(fa, fb), op)), nil
		}
	}
	if a.Kind == KindString && b.Kind == KindString {
		return BoolVal(applyOrder(strings.Compare(a.Str, b.Str), op)), nil
	}
	return Null(), fmt.Errorf("type error: cannot order %s and %s", a.TypeName(), b.TypeName())
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func applyOrder(cmp int, op TokenType) bool {
	switch op {
	case TokenLt:
		return cmp < 0
	case TokenLte:
		return cmp <= 0
	case TokenGt:
		return cmp > 0
	case TokenGte:
		return cmp >= 0
	default:
		return false
	}
}
