// Package geminiclient calls the Gemini API with an API key. It is used in
// place of Vertex AI when GOOGLE_API_KEY is configured.
package geminiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/errs"
)

const jsonMIMEType = "application/json"

type Adapter struct {
	client *genai.Client
	model  string
}

func NewAdapter(ctx context.Context, apiKey, model string) (*Adapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Adapter{client: client, model: model}, nil
}

func (a *Adapter) GenerateContent(ctx context.Context, req dto.GenerateRequest) (dto.GenerateResponse, error) {
	out := dto.GenerateResponse{}

	model := req.Model
	if model == "" {
		model = a.model
	}
	if model == "" {
		return out, fmt.Errorf("gemini model is required")
	}

	contents := toContents(req)
	if len(contents) == 0 {
		return out, fmt.Errorf("gemini generate request has no content")
	}

	resp, err := a.client.Models.GenerateContent(ctx, model, contents, toConfig(req))
	if err != nil {
		return out, classify(err)
	}

	out.Raw = resp
	out.Text = resp.Text()
	return out, nil
}

func toContents(req dto.GenerateRequest) []*genai.Content {
	var parts []*genai.Part
	for _, blob := range req.InlineData {
		parts = append(parts, genai.NewPartFromBytes(blob.Data, blob.MIMEType))
	}
	if req.UserMessage != "" {
		parts = append(parts, genai.NewPartFromText(req.UserMessage))
	}
	if len(parts) == 0 {
		return nil
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func toConfig(req dto.GenerateRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: req.Temperature,
	}
	if req.MaxOutputTokens != nil {
		cfg.MaxOutputTokens = *req.MaxOutputTokens
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.ResponseSchema != nil {
		cfg.ResponseMIMEType = jsonMIMEType
		cfg.ResponseSchema = toSchema(req.ResponseSchema)
	}
	return cfg
}

func toSchema(s *dto.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        toType(s.Type),
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toSchema(v)
		}
	}
	return out
}

func toType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}

// classify treats throttling and server errors as retryable.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		transient := apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
		return errs.NewExternalServiceError("gemini", transient, apiErr.Message, err)
	}
	return errs.NewExternalServiceError("gemini", true, "", err)
}
