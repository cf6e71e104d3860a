package filtergen

import (
	"context"
	"fmt"
	"strings"
)

const staticProvider = "static"

// StaticGenerator answers every request with the same expression. It backs
// demos and tests that must not reach a model provider.
type StaticGenerator struct {
	Expression  string
	Explanation string
}

func (g StaticGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	expression := strings.TrimSpace(g.Expression)
	if expression == "" {
		return Result{}, fmt.Errorf("static generator has no expression configured")
	}
	explanation := g.Explanation
	if explanation == "" {
		explanation = "configured expression"
	}
	return Result{
		Expression:  expression,
		Explanation: explanation,
		Provider:    staticProvider,
		Model:       staticProvider,
	}, nil
}
