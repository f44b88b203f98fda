// Package swot implements the SWOT deck export tool. It validates the four
// quadrant lists, renders a deck document, uploads it to the blob store and
// streams the id/title/clear/finish bookkeeping events the client uses to
// drive its artifact panel.
package swot

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
	ToolName tools.Ident = "createSwot"

	// EntryMax bounds each quadrant entry.
	EntryMax = 70

	// QuadrantSize is the required number of entries per quadrant.
	QuadrantSize = 3

	contentType = "text/markdown"
)

// Input is the engine-supplied tool payload.
type Input struct {
	Title         string   `json:"title"`
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

// Result is returned to the engine and rendered by the client as a download
// affordance.
type Result struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Tool implements tools.Tool.
type Tool struct {
	blobs blob.Store
}

var _ tools.Tool = (*Tool)(nil)

// New returns a SWOT export tool backed by the given blob store.
func New(blobs blob.Store) (*Tool, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	return &Tool{blobs: blobs}, nil
}

// Name implements tools.Tool.
func (t *Tool) Name() tools.Ident { return ToolName }

// Definition implements tools.Tool.
func (t *Tool) Definition() *model.ToolDefinition {
	entry := map[string]any{"type": "string", "maxLength": EntryMax}
	quadrant := func(desc string) map[string]any {
		return map[string]any{
			"type":        "array",
			"items":       entry,
			"minItems":    QuadrantSize,
			"maxItems":    QuadrantSize,
			"description": desc,
		}
	}
	return &model.ToolDefinition{
		Name: string(ToolName),
		Description: "Use this tool only when the user has confirmed he wants to export " +
			"the SWOT you generated. The tool result will appear in a component, " +
			"no need to explicit the link",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":         map[string]any{"type": "string"},
				"strengths":     quadrant("A list of 3 strengths you identified"),
				"weaknesses":    quadrant("A list of 3 weaknesses you identified"),
				"opportunities": quadrant("A list of 3 opportunities you identified"),
				"threats":       quadrant("A list of 3 threats you identified"),
			},
			"required": []string{"title", "strengths", "weaknesses", "opportunities", "threats"},
		},
	}
}

// Invoke implements tools.Tool.
func (t *Tool) Invoke(ctx context.Context, payload json.RawMessage, em *stream.Emitter) (any, error) {
	var in Input
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decode swot input: %w", err)
	}
	if err := in.validate(); err != nil {
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
	url, err := t.blobs.Put(ctx, &blob.Object{
		ID:          id,
		Name:        fmt.Sprintf("swot-%s.md", id),
		ContentType: contentType,
		Data:        []byte(Render(in)),
	})
	if err != nil {
		return nil, fmt.Errorf("upload swot deck: %w", err)
	}
	if err := em.Emit(ctx, stream.NewFinish(runID, chatID)); err != nil {
		return nil, err
	}
	return Result{ID: id, Title: in.Title, URL: url}, nil
}

func (in Input) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return errors.New("swot: title is required")
	}
	quadrants := []struct {
		name    string
		entries []string
	}{
		{"strengths", in.Strengths},
		{"weaknesses", in.Weaknesses},
		{"opportunities", in.Opportunities},
		{"threats", in.Threats},
	}
	for _, q := range quadrants {
		if len(q.entries) != QuadrantSize {
			return fmt.Errorf("swot: %s must contain exactly %d entries, got %d", q.name, QuadrantSize, len(q.entries))
		}
		for i, e := range q.entries {
			e = strings.TrimSpace(e)
			if e == "" {
				return fmt.Errorf("swot: %s entry %d is empty", q.name, i)
			}
			if len(e) > EntryMax {
				return fmt.Errorf("swot: %s entry %d exceeds %d characters", q.name, i, EntryMax)
			}
		}
	}
	return nil
}

// Render produces the deck document as markdown: a title header followed by
// the four quadrants in reading order.
func Render(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", strings.TrimSpace(in.Title))
	section := func(label string, items []string) {
		fmt.Fprintf(&b, "\n## %s\n", label)
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(item))
		}
	}
	section("Strengths", in.Strengths)
	section("Weaknesses", in.Weaknesses)
	section("Opportunities", in.Opportunities)
	section("Threats", in.Threats)
	return b.String()
}
