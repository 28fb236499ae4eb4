package smear

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/Shopify/go-lua"
)

// widthFunc is a user-supplied smearing width evaluated as a Lua expression
// of the current value x. Named parameters are available as globals, and
// "[name]" placeholders are substituted textually before compilation so
// numbered parameters ("[0]") work too.
type widthFunc struct {
	expr  string
	state *lua.State
}

const widthFuncGlobal = "__width"

// luaPrelude exposes the common math functions without the "math." prefix.
const luaPrelude = `
sqrt, exp, log, abs, sin, cos, tan, floor, ceil, min, max =
  math.sqrt, math.exp, math.log, math.abs, math.sin, math.cos, math.tan,
  math.floor, math.ceil, math.min, math.max
pow = function(a, b) return a ^ b end
`

var (
	placeholderRE = regexp.MustCompile(`\[([A-Za-z0-9_]+)\]`)
	identifierRE  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func newWidthFunc(expr string, params map[string]float64) (*widthFunc, error) {
	var missing []string
	src := placeholderRE.ReplaceAllStringFunc(expr, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return "(" + strconv.FormatFloat(v, 'g', -1, 64) + ")"
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("function %q: unknown parameter(s) %v", expr, missing)
	}

	l := lua.NewState()
	lua.OpenLibraries(l)
	if err := lua.DoString(l, luaPrelude); err != nil {
		return nil, fmt.Errorf("lua prelude: %w", err)
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !identifierRE.MatchString(name) {
			continue
		}
		l.PushNumber(params[name])
		l.SetGlobal(name)
	}

	if err := lua.LoadString(l, "return function(x) return "+src+" end"); err != nil {
		return nil, fmt.Errorf("function %q: %w", expr, err)
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("function %q: %w", expr, err)
	}
	l.SetGlobal(widthFuncGlobal)

	f := &widthFunc{expr: expr, state: l}
	if _, err := f.eval(1); err != nil {
		return nil, err
	}
	return f, nil
}

// eval returns f(x). Non-numeric and NaN results are errors.
func (f *widthFunc) eval(x float64) (float64, error) {
	l := f.state
	l.Global(widthFuncGlobal)
	l.PushNumber(x)
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		return 0, fmt.Errorf("function %q at x=%g: %w", f.expr, x, err)
	}
	v, ok := l.ToNumber(-1)
	l.Pop(1)
	if !ok || math.IsNaN(v) {
		return 0, fmt.Errorf("function %q at x=%g: result is not a number", f.expr, x)
	}
	return v, nil
}
