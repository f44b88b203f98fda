package memo

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func validInput() Input {
	return Input{
		BusinessModel:      []string{"Q1", "Q2", "Q3"},
		MarketOpportunity:  []string{"Q4", "Q5", "Q6"},
		FinancialHealth:    []string{"Q7", "Q8", "Q9"},
		LeadershipTeam:     []string{"Q10", "Q11", "Q12"},
		RisksAndChallenges: []string{"Q13", "Q14", "Q15"},
	}
}

func TestInvokeReturnsRenderedMemo(t *testing.T) {
	payload, err := json.Marshal(validInput())
	require.NoError(t, err)

	out, err := New().Invoke(context.Background(), payload, nil)
	require.NoError(t, err)
	require.Equal(t, Render(validInput()), out)
}

func TestRender(t *testing.T) {
	got := Render(validInput())
	want := "## Initial due-diligence request\n" +
		"\n### A. Business Model\n1. Q1\n2. Q2\n3. Q3\n" +
		"\n### B. Market Opportunity\n1. Q4\n2. Q5\n3. Q6\n" +
		"\n### C. Financial Health\n1. Q7\n2. Q8\n3. Q9\n" +
		"\n### D. Leadership Team\n1. Q10\n2. Q11\n3. Q12\n" +
		"\n### E. Risks & Challenges\n1. Q13\n2. Q14\n3. Q15"
	require.Equal(t, want, got)
}

func TestRenderCollapsesWhitespace(t *testing.T) {
	in := validInput()
	in.BusinessModel[0] = "  What   drives\trevenue? "
	require.Contains(t, Render(in), "1. What drives revenue?\n")
}

func TestInvokeValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Input)
		wantErr string
	}{
		{"short section", func(in *Input) { in.FinancialHealth = in.FinancialHealth[:1] }, "C. Financial Health must contain exactly 3 questions, got 1"},
		{"empty question", func(in *Input) { in.LeadershipTeam[2] = " \t " }, "D. Leadership Team question 2 is empty"},
		{"oversized question", func(in *Input) { in.RisksAndChallenges[0] = strings.Repeat("x", QuestionMax+1) }, "E. Risks & Challenges question 0 exceeds 80 characters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			payload, err := json.Marshal(in)
			require.NoError(t, err)
			_, err = New().Invoke(context.Background(), payload, nil)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}
