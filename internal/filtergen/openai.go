package filtergen

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const openAIProvider = "openai"

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	// MaxRetries is passed to the client for transient HTTP failures.
	MaxRetries int
}

type responsesAPI interface {
	New(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error)
}

type OpenAIGenerator struct {
	responses   responsesAPI
	model       string
	temperature float64
}

func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	client := openai.NewClient(opts...)
	return &OpenAIGenerator{
		responses:   &client.Responses,
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	input, err := buildUserPrompt(req)
	if err != nil {
		return Result{}, err
	}
	params := responses.ResponseNewParams{
		Model:           g.model,
		MaxOutputTokens: openai.Int(512),
		Temperature:     openai.Float(g.temperature),
		Instructions:    openai.String(systemPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        "ConnectionFilter",
					Schema:      outputSchema,
					Strict:      openai.Bool(true),
					Description: openai.String("Predicate selecting connections"),
					Type:        "json_schema",
				},
			},
		},
	}

	resp, err := g.responses.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("request response: %w", err)
	}
	out, err := decodeOutput(resp.OutputText())
	if err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	return Result{
		Expression:  out.Expression,
		Explanation: out.Explanation,
		Provider:    openAIProvider,
		Model:       g.model,
	}, nil
}
