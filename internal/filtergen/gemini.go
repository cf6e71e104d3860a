package filtergen

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiProvider = "gemini"

type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
}

type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float64
}

func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash-latest"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, temperature: cfg.Temperature}, nil
}

func (g *GeminiGenerator) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	input, err := buildUserPrompt(req)
	if err != nil {
		return Result{}, err
	}
	model := g.client.GenerativeModel(g.model)
	configureGeminiModel(model, g.temperature)

	resp, err := model.GenerateContent(ctx, genai.Text(input))
	if err != nil {
		return Result{}, fmt.Errorf("gemini generate content: %w", err)
	}
	text, err := geminiResponseText(resp)
	if err != nil {
		return Result{}, err
	}
	out, err := decodeOutput(text)
	if err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	return Result{
		Expression:  out.Expression,
		Explanation: out.Explanation,
		Provider:    geminiProvider,
		Model:       g.model,
	}, nil
}

func configureGeminiModel(model *genai.GenerativeModel, temperature float64) {
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	temp := float32(temperature)
	maxTokens := int32(512)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temp,
		MaxOutputTokens:  &maxTokens,
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"expression":  {Type: genai.TypeString, Description: "Filter predicate written in the predicate language"},
				"explanation": {Type: genai.TypeString, Description: "One sentence describing what the predicate selects"},
			},
			Required: []string{"expression", "explanation"},
		},
	}
}

func geminiResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response was empty")
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("gemini response had no text parts")
	}
	return text.String(), nil
}
