// Package memo implements the initial due-diligence request formatter. It is
// a pure templating tool: the engine supplies three questions per section and
// receives the rendered markdown back as its result. No artifact is created
// and no stream events are emitted.
package memo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/korefocus/diligence/runtime/chat/model"
	"github.com/korefocus/diligence/runtime/chat/stream"
	"github.com/korefocus/diligence/runtime/chat/tools"
)

const (
	// ToolName identifies the tool in engine tool definitions.
	ToolName tools.Ident = "formatMemo"

	// QuestionMax bounds each question.
	QuestionMax = 80

	// SectionSize is the required number of questions per section.
	SectionSize = 3
)

// Input is the engine-supplied tool payload: three questions per memo section.
type Input struct {
	BusinessModel      []string `json:"businessModel"`
	MarketOpportunity  []string `json:"marketOpportunity"`
	FinancialHealth    []string `json:"financialHealth"`
	LeadershipTeam     []string `json:"leadershipTeam"`
	RisksAndChallenges []string `json:"risksAndChallenges"`
}

// Tool implements tools.Tool.
type Tool struct{}

var _ tools.Tool = Tool{}

// New returns the memo formatting tool.
func New() Tool { return Tool{} }

// Name implements tools.Tool.
func (Tool) Name() tools.Ident { return ToolName }

// Definition implements tools.Tool.
func (Tool) Definition() *model.ToolDefinition {
	section := func(label string) map[string]any {
		return map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string", "maxLength": QuestionMax},
			"minItems":    SectionSize,
			"maxItems":    SectionSize,
			"description": fmt.Sprintf("%d Questions related to %s", SectionSize, label),
		}
	}
	return &model.ToolDefinition{
		Name: string(ToolName),
		Description: "Use this tool when the user asks to write an initial due-diligence " +
			"request to get the desired output format. ONLY output this in your final " +
			"answer, do not add \"Thank you for this information\" or anything similar",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"businessModel":      section("Business Model"),
				"marketOpportunity":  section("Market Opportunity"),
				"financialHealth":    section("Financial Health"),
				"leadershipTeam":     section("Leadership Team"),
				"risksAndChallenges": section("Risks & Challenges"),
			},
			"required": []string{
				"businessModel", "marketOpportunity", "financialHealth",
				"leadershipTeam", "risksAndChallenges",
			},
		},
	}
}

// Invoke implements tools.Tool.
func (Tool) Invoke(_ context.Context, payload json.RawMessage, _ *stream.Emitter) (any, error) {
	var in Input
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decode memo input: %w", err)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	return Render(in), nil
}

func (in Input) validate() error {
	for _, s := range in.sections() {
		if len(s.questions) != SectionSize {
			return fmt.Errorf("memo: %s must contain exactly %d questions, got %d",
				s.heading, SectionSize, len(s.questions))
		}
		for i, q := range s.questions {
			q = clean(q)
			if q == "" {
				return fmt.Errorf("memo: %s question %d is empty", s.heading, i)
			}
			if len(q) > QuestionMax {
				return fmt.Errorf("memo: %s question %d exceeds %d characters", s.heading, i, QuestionMax)
			}
		}
	}
	return nil
}

// Render inserts the questions into the memo template, one numbered list per
// lettered section.
func Render(in Input) string {
	var b strings.Builder
	b.WriteString("## Initial due-diligence request\n")
	for _, s := range in.sections() {
		fmt.Fprintf(&b, "\n### %s\n", s.heading)
		for i, q := range s.questions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, clean(q))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

type section struct {
	heading   string
	questions []string
}

func (in Input) sections() []section {
	return []section{
		{"A. Business Model", in.BusinessModel},
		{"B. Market Opportunity", in.MarketOpportunity},
		{"C. Financial Health", in.FinancialHealth},
		{"D. Leadership Team", in.LeadershipTeam},
		{"E. Risks & Challenges", in.RisksAndChallenges},
	}
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
