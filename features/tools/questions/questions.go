// Package questions implements the due-diligence question generation tool.
// The engine supplies a handful of company-specific questions; the tool merges
// them with a configured template bank, streams one question-generated event
// per question plus monotone tool-progress updates, renders a memo artifact to
// the blob store and returns both question sets with the artifact descriptor.
package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/korefocus/diligence/runtime/chat/blob"
	"github.com/korefocus/diligence/runtime/chat/model"
	"github.com/korefocus/diligence/runtime/chat/stream"
	"github.com/korefocus/diligence/runtime/chat/tools"
)

const (
	// ToolName identifies the tool in engine tool definitions.
	ToolName tools.Ident = "generateQuestions"

	// QuestionMax bounds each question.
	QuestionMax = 80

	contentType = "text/markdown"
)

type (
	// Category groups template questions under a label shared with the client.
	Category struct {
		Label     string
		Templates []string
	}

	// Config holds the active category set and template question bank. The
	// categories and their banks are deployment data rather than code, so they
	// are injected at construction time.
	Config struct {
		Categories []Category

		// GeneratedLabel is the category tag attached to engine-generated
		// questions. Defaults to "Generated".
		GeneratedLabel string

		// GeneratedCount is the number of questions the engine must supply.
		// Defaults to 3.
		GeneratedCount int
	}

	// Input is the engine-supplied tool payload.
	Input struct {
		Title              string   `json:"title"`
		GeneratedQuestions []string `json:"generatedQuestions"`
	}

	// Artifact describes the uploaded memo document.
	Artifact struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}

	// Result is returned to the engine.
	Result struct {
		QuestionsFromTemplate []string `json:"questionsFromTemplate"`
		GeneratedQuestions    []string `json:"generatedQuestions"`
		Artifact              Artifact `json:"artifact"`
	}

	// Tool implements tools.Tool.
	Tool struct {
		blobs blob.Store
		cfg   Config
	}
)

var _ tools.Tool = (*Tool)(nil)

// DefaultConfig returns the stock category set and template bank.
func DefaultConfig() Config {
	return Config{
		Categories: []Category{
			{
				Label: "Business Model",
				Templates: []string{
					"What are the primary sources of revenue, and how stable and diversified are they?",
				},
			},
			{
				Label: "Market Opportunity",
				Templates: []string{
					"What differentiates your company from competitors, and how sustainable is this advantage?",
				},
			},
			{
				Label: "Risks & Challenges",
				Templates: []string{
					"What are the biggest operational or strategic risks the company faces, and how are they being mitigated?",
				},
			},
		},
	}
}

// New returns a question generation tool using the given blob store and
// configuration. A zero-value Config yields no template questions.
func New(blobs blob.Store, cfg Config) (*Tool, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if cfg.GeneratedLabel == "" {
		cfg.GeneratedLabel = "Generated"
	}
	if cfg.GeneratedCount <= 0 {
		cfg.GeneratedCount = 3
	}
	for _, c := range cfg.Categories {
		if c.Label == "" {
			return nil, errors.New("category label is required")
		}
	}
	return &Tool{blobs: blobs, cfg: cfg}, nil
}

// Name implements tools.Tool.
func (t *Tool) Name() tools.Ident { return ToolName }

// Definition implements tools.Tool.
func (t *Tool) Definition() *model.ToolDefinition {
	total := t.templateCount() + t.cfg.GeneratedCount
	return &model.ToolDefinition{
		Name: string(ToolName),
		Description: fmt.Sprintf("Use this tool when the user asks for some due diligence questions. "+
			"Only use the %d questions in output for your response.", total),
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{"type": "string"},
				"generatedQuestions": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string", "maxLength": QuestionMax},
					"minItems":    t.cfg.GeneratedCount,
					"maxItems":    t.cfg.GeneratedCount,
					"description": fmt.Sprintf("%d Questions related to the company", t.cfg.GeneratedCount),
				},
			},
			"required": []string{"title", "generatedQuestions"},
		},
	}
}

// Invoke implements tools.Tool. Question indexes form a gap-free permutation
// of [0, total); progress values are non-decreasing and end at 100.
func (t *Tool) Invoke(ctx context.Context, payload json.RawMessage, em *stream.Emitter) (any, error) {
	var in Input
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decode questions input: %w", err)
	}
	generated, err := t.validate(in)
	if err != nil {
		return nil, err
	}
	runID, chatID := em.RunID(), em.ChatID()
	id := uuid.NewString()
	if err := em.Emit(ctx, stream.NewArtifactID(runID, chatID, id)); err != nil {
		return nil, err
	}
	if err := em.Emit(ctx, stream.NewArtifactTitle(runID, chatID, in.Title)); err != nil {
		return nil, err
	}
	if err := em.Emit(ctx, stream.NewClear(runID, chatID)); err != nil {
		return nil, err
	}

	total := t.templateCount() + len(generated)
	if err := em.Emit(ctx, stream.NewQuestionsMeta(runID, chatID, total)); err != nil {
		return nil, err
	}

	index := 0
	emitted := 0
	emit := func(q stream.Question, questionType string) error {
		if err := em.Emit(ctx, stream.NewQuestionGenerated(runID, chatID, q, index, questionType)); err != nil {
			return err
		}
		index++
		emitted++
		progress := emitted * 100 / total
		content := fmt.Sprintf("Generated %d of %d questions", emitted, total)
		return em.Emit(ctx, stream.NewToolProgress(runID, chatID, string(ToolName), content, progress))
	}
	var templateTexts []string
	for _, c := range t.cfg.Categories {
		for _, q := range c.Templates {
			templateTexts = append(templateTexts, q)
			if err := emit(stream.Question{Question: q, Category: c.Label}, "template"); err != nil {
				return nil, err
			}
		}
	}
	for _, q := range generated {
		if err := emit(stream.Question{Question: q, Category: t.cfg.GeneratedLabel}, "custom"); err != nil {
			return nil, err
		}
	}

	url, err := t.blobs.Put(ctx, &blob.Object{
		ID:          id,
		Name:        fmt.Sprintf("due-diligence-questions-%s.md", id),
		ContentType: contentType,
		Data:        []byte(t.renderMemo(in.Title, generated)),
	})
	if err != nil {
		return nil, fmt.Errorf("upload question memo: %w", err)
	}
	if err := em.Emit(ctx, stream.NewFinish(runID, chatID)); err != nil {
		return nil, err
	}
	return Result{
		QuestionsFromTemplate: templateTexts,
		GeneratedQuestions:    generated,
		Artifact:              Artifact{ID: id, Title: in.Title, URL: url},
	}, nil
}

func (t *Tool) validate(in Input) ([]string, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, errors.New("questions: title is required")
	}
	if len(in.GeneratedQuestions) != t.cfg.GeneratedCount {
		return nil, fmt.Errorf("questions: expected %d generated questions, got %d",
			t.cfg.GeneratedCount, len(in.GeneratedQuestions))
	}
	out := make([]string, len(in.GeneratedQuestions))
	for i, q := range in.GeneratedQuestions {
		q = strings.Join(strings.Fields(q), " ")
		if q == "" {
			return nil, fmt.Errorf("questions: generated question %d is empty", i)
		}
		if len(q) > QuestionMax {
			return nil, fmt.Errorf("questions: generated question %d exceeds %d characters", i, QuestionMax)
		}
		out[i] = q
	}
	return out, nil
}

func (t *Tool) templateCount() int {
	n := 0
	for _, c := range t.cfg.Categories {
		n += len(c.Templates)
	}
	return n
}

func (t *Tool) renderMemo(title string, generated []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", strings.TrimSpace(title))
	n := 1
	for _, c := range t.cfg.Categories {
		if len(c.Templates) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n", c.Label)
		for _, q := range c.Templates {
			fmt.Fprintf(&b, "%d. %s\n", n, q)
			n++
		}
	}
	if len(generated) > 0 {
		fmt.Fprintf(&b, "\n## %s\n", t.cfg.GeneratedLabel)
		for _, q := range generated {
			fmt.Fprintf(&b, "%d. %s\n", n, q)
			n++
		}
	}
	return b.String()
}
