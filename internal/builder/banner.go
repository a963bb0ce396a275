package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/libforge/libforge/internal/manifest"
)

// banner evaluates the banner query of one output. An empty query yields
// an empty banner.
func banner(ctx context.Context, query, format string, pkg *manifest.Package) (string, error) {
	if query == "" {
		return "", nil
	}

	expr, err := ast.ParseExpr(query)
	if err != nil {
		return "", fmt.Errorf("invalid banner query: %w", err)
	}

	input := map[string]any{
		"format":  format,
		"package": map[string]any{},
	}
	if pkg != nil {
		input["package"] = map[string]any{"name": pkg.Name, "version": pkg.Version}
	}

	rs, err := rego.New(
		rego.ParsedQuery([]*ast.Expr{expr}),
		rego.Strict(true),
		rego.Runtime(runtimeInfo()),
		rego.Input(input),
	).Eval(ctx)
	if err != nil {
		return "", fmt.Errorf("banner query: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return "", errors.New("banner query: undefined")
	}
	return formatValue(rs[0].Expressions[0].Value), nil
}

func runtimeInfo() *ast.Term {
	environ := os.Environ()
	items := make([][2]*ast.Term, 0, len(environ))
	for _, e := range environ {
		key, val, _ := strings.Cut(e, "=")
		items = append(items, [2]*ast.Term{ast.StringTerm(key), ast.StringTerm(val)})
	}

	return ast.NewTerm(ast.NewObject(
		[2]*ast.Term{ast.StringTerm("env"), ast.NewTerm(ast.NewObject(items...))},
	))
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case ast.Number:
		if i, ok := val.Int(); ok {
			return strconv.Itoa(i)
		}
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
