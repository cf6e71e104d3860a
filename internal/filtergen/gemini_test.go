package filtergen

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestNewGeminiGeneratorRequiresAPIKey(t *testing.T) {
	if _, err := NewGeminiGenerator(context.Background(), GeminiConfig{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestConfigureGeminiModelRequestsJSON(t *testing.T) {
	model := &genai.GenerativeModel{}
	configureGeminiModel(model, 0.2)

	if model.SystemInstruction == nil || len(model.SystemInstruction.Parts) != 1 {
		t.Fatalf("SystemInstruction = %#v", model.SystemInstruction)
	}
	if model.ResponseMIMEType != "application/json" {
		t.Fatalf("ResponseMIMEType = %q", model.ResponseMIMEType)
	}
	if model.Temperature == nil || *model.Temperature != float32(0.2) {
		t.Fatalf("Temperature = %v", model.Temperature)
	}
	schema := model.ResponseSchema
	if schema == nil || schema.Type != genai.TypeObject || len(schema.Required) != 2 {
		t.Fatalf("ResponseSchema = %#v", schema)
	}
	if _, ok := schema.Properties["expression"]; !ok {
		t.Fatalf("missing expression property")
	}
}

func TestGeminiResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"expression":`), genai.Text(`"A == 1"}`)}},
		}},
	}
	text, err := geminiResponseText(resp)
	if err != nil {
		t.Fatalf("geminiResponseText() error = %v", err)
	}
	if text != `{"expression":"A == 1"}` {
		t.Fatalf("text = %q", text)
	}

	if _, err := geminiResponseText(&genai.GenerateContentResponse{}); err == nil {
		t.Fatal("expected error for empty response")
	}
	if _, err := geminiResponseText(nil); err == nil {
		t.Fatal("expected error for nil response")
	}
}
