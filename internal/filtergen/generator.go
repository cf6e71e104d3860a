package filtergen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/linkreach/linkreach/internal/dataset"
	"github.com/linkreach/linkreach/internal/predicate"
)

var (
	// ErrGenerationFailure covers every way a provider can fail to produce a
	// usable predicate: transport errors, malformed JSON and expressions that
	// do not parse or validate against the dataset columns.
	ErrGenerationFailure = errors.New("filter generation failed")
	ErrGenerationTimeout = errors.New("filter generation timed out")
)

type Request struct {
	Prompt     string
	Columns    []string
	SampleRows []dataset.Row
	// Feedback carries the reason a previous attempt was rejected.
	Feedback string
}

type Result struct {
	Expression  string `json:"expression"`
	Explanation string `json:"explanation"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`

	// Predicate is set once the expression has been parsed and validated.
	Predicate predicate.Expr `json:"-"`
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// Output is the structured answer requested from every model provider.
type Output struct {
	Expression  string `json:"expression" jsonschema_description:"Filter predicate written in the predicate language"`
	Explanation string `json:"explanation" jsonschema_description:"One sentence describing what the predicate selects"`
}

func stripMarkdown(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 && !strings.ContainsAny(trimmed[:newline], "{\"`") {
		trimmed = trimmed[newline+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// decodeOutput accepts the model text either as a bare JSON object or with
// surrounding prose or fences, in which case the outermost object is used.
func decodeOutput(text string) (Output, error) {
	s := stripMarkdown(text)
	if s == "" {
		return Output{}, io.ErrUnexpectedEOF
	}
	var out Output
	if err := json.Unmarshal([]byte(s), &out); err == nil {
		return out, nil
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start != -1 && end == -1 {
		return Output{}, io.ErrUnexpectedEOF
	}
	if start == -1 || end <= start {
		return Output{}, fmt.Errorf("model output is not a JSON object")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return Output{}, fmt.Errorf("decode model output: %w", err)
	}
	return out, nil
}
