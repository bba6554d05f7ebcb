package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/GregMSThompson/finance-workers/internal/csvimport"
	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/email"
	"github.com/GregMSThompson/finance-workers/pkg/logger"
)

const (
	attachmentKeyPrefix   = "smart-input"
	attachmentConcurrency = 3
	// minimum similarity for a misspelt name token to still count
	nameTokenThreshold = 80
	summaryPrompt      = "Summarize this writing sample in two or three sentences. Mention its genre and format when they are clear."
)

type uploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type attachmentProcessor struct {
	storage   uploader
	ai        generator
	pageCount func(data []byte) (int, error)
}

func newAttachmentProcessor(storage uploader, ai generator) *attachmentProcessor {
	return &attachmentProcessor{storage: storage, ai: ai, pageCount: pdfPageCount}
}

// Process associates each attachment with a candidate and returns one result
// per associated attachment, in attachment order. Attachments that match no
// candidate are dropped.
func (p *attachmentProcessor) Process(ctx context.Context, subject string, attachments []email.Attachment, names []string) ([]dto.CandidateAttachment, error) {
	log := logger.FromContext(ctx)

	results := make([]*dto.CandidateAttachment, len(attachments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(attachmentConcurrency)

	for i, att := range attachments {
		name := matchCandidate(att.Filename, subject, names)
		if name == "" {
			log.Info("attachment matched no candidate", "filename", att.Filename)
			continue
		}
		g.Go(func() error {
			res, err := p.processOne(gctx, att, name)
			if err != nil {
				return err
			}
			results[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]dto.CandidateAttachment, 0, len(attachments))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (p *attachmentProcessor) processOne(ctx context.Context, att email.Attachment, candidate string) (dto.CandidateAttachment, error) {
	log, ctx := logger.With(ctx, "filename", att.Filename, "candidate", candidate)

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key, err := p.storage.Upload(ctx, attachmentKey(att), contentType, att.Data)
	if err != nil {
		return dto.CandidateAttachment{}, fmt.Errorf("upload attachment %q: %w", att.Filename, err)
	}

	res := dto.CandidateAttachment{
		CandidateName: candidate,
		StorageKey:    key,
		Title:         attachmentTitle(att.Filename),
	}

	if isPDF(att) {
		n, err := p.pageCount(att.Data)
		if err != nil {
			log.Warn("failed to count pdf pages", "error", err)
		} else {
			res.PageCount = n
		}
	}

	if summarizable(contentType) {
		resp, err := p.ai.GenerateContent(ctx, dto.GenerateRequest{
			UserMessage: summaryPrompt,
			InlineData:  []dto.Blob{{MIMEType: contentType, Data: att.Data}},
		})
		if err != nil {
			return dto.CandidateAttachment{}, fmt.Errorf("summarize attachment %q: %w", att.Filename, err)
		}
		res.Summary = strings.TrimSpace(resp.Text)
	}

	log.Info("attachment processed", "storage_key", key, "page_count", res.PageCount)
	return res, nil
}

// matchCandidate picks the candidate whose name tokens all appear in the
// filename. The subject is only consulted when it names exactly one candidate.
func matchCandidate(filename, subject string, names []string) string {
	fileTokens := nameTokens(strings.TrimSuffix(filename, path.Ext(filename)))
	for _, name := range names {
		if tokensPresent(nameTokens(name), fileTokens) {
			return name
		}
	}

	subjectTokens := nameTokens(subject)
	var match string
	for _, name := range names {
		if tokensPresent(nameTokens(name), subjectTokens) {
			if match != "" {
				return ""
			}
			match = name
		}
	}
	return match
}

func tokensPresent(want, have []string) bool {
	if len(want) == 0 {
		return false
	}
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.Contains(h, w) || (len(h) >= 4 && csvimport.Similarity(w, h) >= nameTokenThreshold) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// nameTokens splits on anything that is not a letter or digit and drops
// single characters such as initials.
func nameTokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func attachmentKey(att email.Attachment) string {
	// same bytes and name always land on the same key, so retries overwrite
	id := uuid.NewSHA1(uuid.NameSpaceOID, append([]byte(att.Filename+"/"), att.Data...))
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, path.Base(att.Filename))
	return fmt.Sprintf("%s/%s/%s", attachmentKeyPrefix, id, name)
}

func attachmentTitle(filename string) string {
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

func isPDF(att email.Attachment) bool {
	return att.ContentType == "application/pdf" || strings.EqualFold(path.Ext(att.Filename), ".pdf")
}

func summarizable(contentType string) bool {
	return contentType == "application/pdf" ||
		strings.HasPrefix(contentType, "text/") ||
		strings.HasPrefix(contentType, "image/")
}

func pdfPageCount(data []byte) (int, error) {
	return api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
}
