package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/email"
	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/queue"
	"github.com/GregMSThompson/finance-workers/pkg/logger"
)

const candidatesPrompt = "Analyze the following email and retrieve all the writers mentioned:\n\n"

var validate = validator.New()

// generator is satisfied by both the Vertex and the Gemini API adapters.
type generator interface {
	GenerateContent(ctx context.Context, req dto.GenerateRequest) (dto.GenerateResponse, error)
}

type smartInputService struct {
	ai          generator
	attachments *attachmentProcessor
}

func NewSmartInputService(ai generator, storage uploader) *smartInputService {
	return &smartInputService{
		ai:          ai,
		attachments: newAttachmentProcessor(storage, ai),
	}
}

// Process is the queue handler for smart-input jobs.
func (s *smartInputService) Process(ctx context.Context, job *queue.Job) (any, error) {
	var payload dto.SmartInputJob
	if err := job.Decode(&payload); err != nil {
		return nil, err
	}
	log, ctx := logger.With(ctx, "job_id", job.ID)

	merged, err := s.ProcessEmail(ctx, payload.EmailContent)
	if err != nil {
		log.Error("smart input processing failed", "error", err)
		return nil, err
	}
	return dto.SmartInputResult{Candidates: merged}, nil
}

// ProcessEmail extracts candidates from the email body and joins them with
// the attachments associated to them.
func (s *smartInputService) ProcessEmail(ctx context.Context, raw string) ([]dto.MergedCandidate, error) {
	log := logger.FromContext(ctx)

	if strings.TrimSpace(raw) == "" {
		return nil, errs.NewValidationError("emailContent is required to process smart input job")
	}

	msg, err := email.Parse(raw)
	if err != nil {
		return nil, err
	}
	body, err := msg.Body()
	if err != nil {
		return nil, err
	}
	log.Info("email parsed", "attachments", len(msg.Attachments), "body_length", len(body))

	candidates, err := s.extractCandidates(ctx, body)
	if err != nil {
		return nil, err
	}
	log.Info("candidates extracted", "candidates", len(candidates.Candidates))

	names := make([]string, 0, len(candidates.Candidates))
	for _, c := range candidates.Candidates {
		names = append(names, c.Name)
	}
	attachments, err := s.attachments.Process(ctx, msg.Subject, msg.Attachments, names)
	if err != nil {
		return nil, err
	}

	merged := mergeCandidates(candidates.Candidates, attachments)
	log.Info("smart input processed", "attachments_matched", len(attachments), "results", len(merged))
	return merged, nil
}

func (s *smartInputService) extractCandidates(ctx context.Context, body string) (dto.Candidates, error) {
	var out dto.Candidates

	resp, err := s.ai.GenerateContent(ctx, dto.GenerateRequest{
		UserMessage:    candidatesPrompt + body,
		ResponseSchema: candidatesSchema(),
	})
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal([]byte(resp.Text), &out); err != nil {
		return out, errs.NewSchemaError(fmt.Sprintf("invalid writer data format: %v", err), err)
	}
	if err := validate.Struct(out); err != nil {
		return out, errs.NewSchemaError(fmt.Sprintf("invalid writer data format: %v", err), err)
	}
	return out, nil
}

// mergeCandidates emits one row per (candidate, attachment) pair whose names
// match exactly. A candidate without attachments produces no row.
func mergeCandidates(candidates []dto.Candidate, attachments []dto.CandidateAttachment) []dto.MergedCandidate {
	out := []dto.MergedCandidate{}
	for _, c := range candidates {
		for _, a := range attachments {
			if c.Name == a.CandidateName {
				out = append(out, dto.MergedCandidate{Candidate: c, CandidateAttachment: a})
			}
		}
	}
	return out
}

func candidatesSchema() *dto.Schema {
	str := func(desc string) *dto.Schema { return &dto.Schema{Type: "string", Description: desc} }
	list := func(desc string) *dto.Schema {
		return &dto.Schema{Type: "array", Description: desc, Items: &dto.Schema{Type: "string"}}
	}

	return &dto.Schema{
		Type:     "object",
		Required: []string{"candidates"},
		Properties: map[string]*dto.Schema{
			"candidates": {
				Type: "array",
				Items: &dto.Schema{
					Type:     "object",
					Required: []string{"name"},
					Properties: map[string]*dto.Schema{
						"name":          str("Full name of the writer"),
						"bio":           str("Short biography"),
						"credits":       list("Produced or published work"),
						"organizations": list("Agencies, studios or publications"),
						"associates":    list("People the writer has worked with"),
						"links":         list("Absolute URLs to portfolios or profiles"),
						"representatives": {
							Type: "array",
							Items: &dto.Schema{
								Type: "object",
								Properties: map[string]*dto.Schema{
									"name":    str("Representative name"),
									"company": str("Agency or management company"),
									"email":   str("Contact email"),
								},
							},
						},
					},
				},
			},
		},
	}
}
