// Package formula evaluates simple arithmetic over dataset variables, e.g.
// "tas-273.15" or "pr*86400". Operators are applied one kind at a time in
// the fixed order / * - +, each left to right, without parentheses.
package formula

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.ngs.io/climeval/internal/dataset"
)

var (
	// ErrSyntax reports a malformed expression.
	ErrSyntax = errors.New("formula syntax error")
	// ErrUnknownVariable reports an operand that is neither a number nor a variable.
	ErrUnknownVariable = errors.New("formula variable not found")
)

// Order is the operator priority. Every occurrence of an operator is
// resolved before moving to the next one.
var Order = []string{"/", "*", "-", "+"}

var delimiter = regexp.MustCompile(`[^\w.]+`)

// Step is one binary application in an evaluation.
type Step struct {
	Result string
	Left   string
	Op     string
	Right  string
}

func (s Step) String() string {
	if s.Left == "" {
		return fmt.Sprintf("%s = %s%s", s.Result, s.Op, s.Right)
	}
	return fmt.Sprintf("%s = %s %s %s", s.Result, s.Left, s.Op, s.Right)
}

// Tokenize splits an expression into operands and operators. Whitespace is
// ignored.
func Tokenize(expr string) []string {
	expr = strings.Join(strings.Fields(expr), "")
	var tokens []string
	last := 0
	for _, loc := range delimiter.FindAllStringIndex(expr, -1) {
		if loc[0] > last {
			tokens = append(tokens, expr[last:loc[0]])
		}
		tokens = append(tokens, expr[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(expr) {
		tokens = append(tokens, expr[last:])
	}
	return tokens
}

// Evaluate computes expr over the variables of ds.
func Evaluate(expr string, ds *dataset.Dataset) (*dataset.Variable, error) {
	v, _, err := Trace(expr, ds)
	return v, err
}

// Trace is Evaluate that also returns the binary steps in the order applied.
// Intermediate results are named "#1", "#2", ...
func Trace(expr string, ds *dataset.Dataset) (*dataset.Variable, []Step, error) {
	tokens := Tokenize(expr)
	if len(tokens) == 0 {
		return nil, nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}

	values := make(map[string]*dataset.Variable)
	for _, tok := range tokens {
		if isOperator(tok) {
			continue
		}
		if delimiter.MatchString(tok) {
			return nil, nil, fmt.Errorf("%w: %q: unsupported operator %q", ErrSyntax, expr, tok)
		}
		if _, seen := values[tok]; seen {
			continue
		}
		v, err := operand(tok, ds)
		if err != nil {
			return nil, nil, err
		}
		values[tok] = v
	}

	var (
		steps []Step
		n     int
	)
	next := func() string {
		n++
		return "#" + strconv.Itoa(n)
	}

	if tokens[0] == "-" {
		if len(tokens) < 2 || isOperator(tokens[1]) {
			return nil, nil, fmt.Errorf("%w: %q: dangling minus", ErrSyntax, expr)
		}
		name := next()
		values[name] = negate(values[tokens[1]])
		steps = append(steps, Step{Result: name, Op: "-", Right: tokens[1]})
		tokens = append([]string{name}, tokens[2:]...)
	}

	for _, op := range Order {
		for {
			i := indexOf(tokens, op)
			if i < 0 {
				break
			}
			if i == 0 || i == len(tokens)-1 || isOperator(tokens[i-1]) || isOperator(tokens[i+1]) {
				return nil, nil, fmt.Errorf("%w: %q: operator %s needs two operands", ErrSyntax, expr, op)
			}
			left, right := tokens[i-1], tokens[i+1]
			res, err := apply(op, values[left], values[right])
			if err != nil {
				return nil, nil, fmt.Errorf("%s %s %s: %w", left, op, right, err)
			}
			name := next()
			values[name] = res
			steps = append(steps, Step{Result: name, Left: left, Op: op, Right: right})
			tokens = append(tokens[:i-1], append([]string{name}, tokens[i+2:]...)...)
		}
	}

	if len(tokens) != 1 {
		return nil, nil, fmt.Errorf("%w: %q: operands without operator in %v", ErrSyntax, expr, tokens)
	}
	out := values[tokens[0]].Clone()
	out.Name = strings.Join(strings.Fields(expr), "")
	if len(steps) > 0 {
		out.Attrs = dataset.Attrs{"formula": out.Name}
	}
	return out, steps, nil
}

// isOperator reports whether tok is one of the supported operators.
// Intermediate names like "#1" are operands.
func isOperator(tok string) bool {
	_, ok := ops[tok]
	return ok
}

func indexOf(tokens []string, op string) int {
	for i, t := range tokens {
		if t == op {
			return i
		}
	}
	return -1
}

// operand resolves a token as a numeric literal or a dataset variable.
// Literals become 0-dimensional variables.
func operand(tok string, ds *dataset.Dataset) (*dataset.Variable, error) {
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return scalar(tok, f), nil
	}
	if ds != nil {
		if v, ok := ds.Var(tok); ok {
			return v, nil
		}
		if c, ok := ds.Coord(tok); ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, tok)
}

func scalar(name string, f float64) *dataset.Variable {
	return &dataset.Variable{Name: name, Values: []float64{f}, Attrs: dataset.Attrs{}}
}

func negate(v *dataset.Variable) *dataset.Variable {
	out := v.Clone()
	for i := range out.Values {
		out.Values[i] = -out.Values[i]
	}
	return out
}

var ops = map[string]func(a, b float64) float64{
	"+": func(a, b float64) float64 { return a + b },
	"-": func(a, b float64) float64 { return a - b },
	"*": func(a, b float64) float64 { return a * b },
	"/": func(a, b float64) float64 { return a / b },
}

// apply combines two operands elementwise. 0-dimensional operands broadcast.
func apply(op string, a, b *dataset.Variable) (*dataset.Variable, error) {
	f := ops[op]
	switch {
	case len(a.Dims) == 0:
		out := b.Clone()
		for i, x := range b.Values {
			out.Values[i] = f(a.Values[0], x)
		}
		return out, nil
	case len(b.Dims) == 0:
		out := a.Clone()
		for i, x := range a.Values {
			out.Values[i] = f(x, b.Values[0])
		}
		return out, nil
	case !a.SameShape(b):
		return nil, fmt.Errorf("shape mismatch: %v%v vs %v%v", a.Dims, a.Shape, b.Dims, b.Shape)
	}
	out := a.Clone()
	for i := range a.Values {
		out.Values[i] = f(a.Values[i], b.Values[i])
	}
	return out, nil
}
