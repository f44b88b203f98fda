package questions

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/korefocus/diligence/runtime/chat/blob"
	"github.com/korefocus/diligence/runtime/chat/stream"
)

type fakeBlobs struct {
	objects []*blob.Object
}

func (f *fakeBlobs) Put(_ context.Context, obj *blob.Object) (string, error) {
	f.objects = append(f.objects, obj)
	return "/files/" + obj.ID, nil
}

func (f *fakeBlobs) Get(context.Context, string) (*blob.Object, error) {
	return nil, blob.ErrNotFound
}

type captureSink struct {
	events []stream.Event
}

func (s *captureSink) Send(_ context.Context, event stream.Event) error {
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close(context.Context) error { return nil }

func validInput() Input {
	return Input{
		Title: "Acme due-diligence questions",
		GeneratedQuestions: []string{
			"How concentrated is revenue among the top five customers?",
			"What is the current runway at the present burn rate?",
			"Which key hires are planned for the next twelve months?",
		},
	}
}

func invoke(t *testing.T, cfg Config, in Input) (any, *fakeBlobs, *captureSink, error) {
	t.Helper()
	blobs := &fakeBlobs{}
	tool, err := New(blobs, cfg)
	require.NoError(t, err)
	sink := &captureSink{}
	em := stream.NewEmitter("r1", "c1")
	require.NoError(t, em.Subscribe(sink))
	payload, err := json.Marshal(in)
	require.NoError(t, err)
	out, err := tool.Invoke(context.Background(), payload, em)
	return out, blobs, sink, err
}

func TestInvokeStreamsQuestionsAndUploadsMemo(t *testing.T) {
	out, blobs, sink, err := invoke(t, DefaultConfig(), validInput())
	require.NoError(t, err)

	result, ok := out.(Result)
	require.True(t, ok)
	require.Len(t, result.QuestionsFromTemplate, 3)
	require.Len(t, result.GeneratedQuestions, 3)
	require.NotEmpty(t, result.Artifact.ID)
	require.Equal(t, "Acme due-diligence questions", result.Artifact.Title)
	require.Equal(t, "/files/"+result.Artifact.ID, result.Artifact.URL)

	// Bookkeeping frames precede the question stream.
	require.Equal(t, stream.EventArtifactID, sink.events[0].Type())
	require.Equal(t, stream.EventArtifactTitle, sink.events[1].Type())
	require.Equal(t, stream.EventClear, sink.events[2].Type())

	meta, ok := sink.events[3].(*stream.QuestionsMeta)
	require.True(t, ok)
	require.Equal(t, 6, meta.Data.Content)

	// The remaining frames alternate question-generated and tool-progress,
	// then close with finish.
	require.Equal(t, stream.EventFinish, sink.events[len(sink.events)-1].Type())
	var questions []*stream.QuestionGenerated
	var progresses []*stream.ToolProgress
	for _, e := range sink.events[4 : len(sink.events)-1] {
		switch ev := e.(type) {
		case *stream.QuestionGenerated:
			questions = append(questions, ev)
			require.Len(t, progresses, len(questions)-1)
		case *stream.ToolProgress:
			progresses = append(progresses, ev)
			require.Len(t, questions, len(progresses))
		default:
			t.Fatalf("unexpected event %s", e.Type())
		}
	}
	require.Len(t, questions, 6)
	require.Len(t, progresses, 6)

	// Indexes form a gap-free permutation of [0, total).
	seen := make(map[int]bool)
	for _, q := range questions {
		require.GreaterOrEqual(t, q.Data.QuestionIndex, 0)
		require.Less(t, q.Data.QuestionIndex, 6)
		require.False(t, seen[q.Data.QuestionIndex])
		seen[q.Data.QuestionIndex] = true
	}

	// Template questions stream first with their category labels, then the
	// generated set.
	require.Equal(t, "template", questions[0].Data.QuestionType)
	first, ok := questions[0].Data.Content.(stream.Question)
	require.True(t, ok)
	require.Equal(t, "Business Model", first.Category)
	require.Equal(t, "template", questions[2].Data.QuestionType)
	for _, q := range questions[3:] {
		require.Equal(t, "custom", q.Data.QuestionType)
		content := q.Data.Content.(stream.Question)
		require.Equal(t, "Generated", content.Category)
	}

	// Progress is non-decreasing and ends at 100.
	prev := 0
	for _, p := range progresses {
		require.GreaterOrEqual(t, p.Data.Progress, prev)
		require.Equal(t, "generateQuestions", p.Data.ToolName)
		prev = p.Data.Progress
	}
	require.Equal(t, 100, prev)

	// The memo lands in the blob store with every question numbered.
	require.Len(t, blobs.objects, 1)
	obj := blobs.objects[0]
	require.Equal(t, "due-diligence-questions-"+result.Artifact.ID+".md", obj.Name)
	require.Equal(t, "text/markdown", obj.ContentType)
	memo := string(obj.Data)
	require.Contains(t, memo, "# Acme due-diligence questions")
	require.Contains(t, memo, "## Risks & Challenges")
	require.Contains(t, memo, "6. Which key hires are planned for the next twelve months?")
}

func TestInvokeCollapsesWhitespace(t *testing.T) {
	in := validInput()
	in.GeneratedQuestions[0] = "  How   concentrated is\trevenue? "
	out, _, _, err := invoke(t, DefaultConfig(), in)
	require.NoError(t, err)
	require.Equal(t, "How concentrated is revenue?", out.(Result).GeneratedQuestions[0])
}

func TestInvokeValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Input)
		wantErr string
	}{
		{"missing title", func(in *Input) { in.Title = " " }, "title is required"},
		{"wrong count", func(in *Input) { in.GeneratedQuestions = in.GeneratedQuestions[:2] }, "expected 3 generated questions, got 2"},
		{"empty question", func(in *Input) { in.GeneratedQuestions[1] = "   " }, "generated question 1 is empty"},
		{"oversized question", func(in *Input) { in.GeneratedQuestions[2] = strings.Repeat("x", QuestionMax+1) }, "generated question 2 exceeds 80 characters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, blobs, sink, err := invoke(t, DefaultConfig(), in)
			require.ErrorContains(t, err, tc.wantErr)
			require.Empty(t, blobs.objects)
			require.Empty(t, sink.events)
		})
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(&fakeBlobs{}, Config{Categories: []Category{{Templates: []string{"q"}}}})
	require.ErrorContains(t, err, "category label is required")

	_, err = New(nil, DefaultConfig())
	require.ErrorContains(t, err, "blob store is required")
}

func TestDefinitionCountsQuestions(t *testing.T) {
	tool, err := New(&fakeBlobs{}, DefaultConfig())
	require.NoError(t, err)
	def := tool.Definition()
	require.Equal(t, "generateQuestions", def.Name)
	require.Contains(t, def.Description, "Only use the 6 questions")
}
