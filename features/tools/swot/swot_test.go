package swot

import (
	"context"
	"encoding/json"
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
		Title:         "Acme Corp SWOT",
		Strengths:     []string{"Recurring revenue", "Low churn", "Strong brand"},
		Weaknesses:    []string{"Single supplier", "Thin margins", "Key-person risk"},
		Opportunities: []string{"EU expansion", "Upsell motion", "Partnerships"},
		Threats:       []string{"New entrants", "Pricing pressure", "Regulation"},
	}
}

func invoke(t *testing.T, in Input) (any, *fakeBlobs, *captureSink, error) {
	t.Helper()
	blobs := &fakeBlobs{}
	tool, err := New(blobs)
	require.NoError(t, err)
	sink := &captureSink{}
	em := stream.NewEmitter("r1", "c1")
	require.NoError(t, em.Subscribe(sink))
	payload, err := json.Marshal(in)
	require.NoError(t, err)
	out, err := tool.Invoke(context.Background(), payload, em)
	return out, blobs, sink, err
}

func TestInvokeExportsDeck(t *testing.T) {
	out, blobs, sink, err := invoke(t, validInput())
	require.NoError(t, err)

	result, ok := out.(Result)
	require.True(t, ok)
	require.NotEmpty(t, result.ID)
	require.Equal(t, "Acme Corp SWOT", result.Title)
	require.Equal(t, "/files/"+result.ID, result.URL)

	require.Len(t, blobs.objects, 1)
	obj := blobs.objects[0]
	require.Equal(t, result.ID, obj.ID)
	require.Equal(t, "swot-"+result.ID+".md", obj.Name)
	require.Equal(t, "text/markdown", obj.ContentType)
	require.Contains(t, string(obj.Data), "# Acme Corp SWOT")
	require.Contains(t, string(obj.Data), "- Recurring revenue")

	types := make([]stream.EventType, len(sink.events))
	for i, e := range sink.events {
		types[i] = e.Type()
	}
	require.Equal(t, []stream.EventType{
		stream.EventArtifactID,
		stream.EventArtifactTitle,
		stream.EventClear,
		stream.EventFinish,
	}, types)
	require.Equal(t, result.ID, sink.events[0].(*stream.ArtifactID).Data.Content)
	require.Equal(t, "Acme Corp SWOT", sink.events[1].(*stream.ArtifactTitle).Data.Content)
}

func TestInvokeValidation(t *testing.T) {
	long := make([]byte, EntryMax+1)
	for i := range long {
		long[i] = 'x'
	}

	cases := []struct {
		name    string
		mutate  func(*Input)
		wantErr string
	}{
		{"missing title", func(in *Input) { in.Title = "  " }, "title is required"},
		{"short quadrant", func(in *Input) { in.Strengths = in.Strengths[:2] }, "strengths must contain exactly 3 entries, got 2"},
		{"extra entry", func(in *Input) { in.Threats = append(in.Threats, "one more") }, "threats must contain exactly 3 entries, got 4"},
		{"empty entry", func(in *Input) { in.Weaknesses[1] = "   " }, "weaknesses entry 1 is empty"},
		{"oversized entry", func(in *Input) { in.Opportunities[0] = string(long) }, "opportunities entry 0 exceeds 70 characters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, blobs, sink, err := invoke(t, in)
			require.ErrorContains(t, err, tc.wantErr)
			require.Empty(t, blobs.objects)
			require.Empty(t, sink.events)
		})
	}
}

func TestRender(t *testing.T) {
	got := Render(validInput())
	want := "# Acme Corp SWOT\n" +
		"\n## Strengths\n- Recurring revenue\n- Low churn\n- Strong brand\n" +
		"\n## Weaknesses\n- Single supplier\n- Thin margins\n- Key-person risk\n" +
		"\n## Opportunities\n- EU expansion\n- Upsell motion\n- Partnerships\n" +
		"\n## Threats\n- New entrants\n- Pricing pressure\n- Regulation\n"
	require.Equal(t, want, got)
}
