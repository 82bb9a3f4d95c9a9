package agent

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/m4xw311/foundrychat/errors"
	"github.com/m4xw311/foundrychat/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReducer() (*Reducer, *bytes.Buffer, *bytes.Buffer) {
	var out, diag bytes.Buffer
	return &Reducer{Label: "helper", Out: &out, Diag: &diag}, &out, &diag
}

func TestReduceHello(t *testing.T) {
	r, out, diag := newTestReducer()
	stream := llm.NewSliceStream([]llm.StreamEvent{
		{Kind: llm.EventCreated},
		{Kind: llm.EventTextDelta, Delta: "Hel"},
		{Kind: llm.EventTextDelta, Delta: "lo"},
		{Kind: llm.EventTextDone, Text: "Hello"},
		{Kind: llm.EventCompleted, Response: &llm.Response{ID: "resp_1", Text: "Hello"}},
	}, nil)

	resp, err := r.Reduce(stream)
	require.NoError(t, err)

	assert.Equal(t, "Hello", out.String())
	assert.Equal(t, "Hello", resp.Text)
	assert.Equal(t, "resp_1", resp.ID)
	assert.Equal(t, "[helper]: \n", diag.String())
	assert.True(t, stream.Closed())
}

func TestReduceLabelOnCreated(t *testing.T) {
	r, out, diag := newTestReducer()
	r.LabelOnCreated = true
	stream := llm.NewSliceStream([]llm.StreamEvent{
		{Kind: llm.EventCreated},
		{Kind: llm.EventTextDelta, Delta: "Hi"},
		{Kind: llm.EventTextDelta, Delta: "!"},
		{Kind: llm.EventCompleted, Response: &llm.Response{ID: "resp_1", Text: "Hi!"}},
	}, nil)

	_, err := r.Reduce(stream)
	require.NoError(t, err)
	assert.Equal(t, "Hi!", out.String())
	assert.Equal(t, "[helper]: \n", diag.String())
}

func TestReduceNoTextWritesNoLabel(t *testing.T) {
	r, out, diag := newTestReducer()
	stream := llm.NewSliceStream([]llm.StreamEvent{
		{Kind: llm.EventCreated},
		{Kind: llm.EventOther},
		{Kind: llm.EventCompleted, Response: &llm.Response{ID: "resp_1"}},
	}, nil)

	resp, err := r.Reduce(stream)
	require.NoError(t, err)
	assert.Equal(t, "resp_1", resp.ID)
	assert.Empty(t, out.String())
	assert.Empty(t, diag.String())
}

func TestReducePrematureEnd(t *testing.T) {
	r, out, _ := newTestReducer()
	stream := llm.NewSliceStream([]llm.StreamEvent{
		{Kind: llm.EventCreated},
		{Kind: llm.EventTextDelta, Delta: "Hel"},
	}, nil)

	resp, err := r.Reduce(stream)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, errors.ErrProtocol))
	assert.Equal(t, "Hel", out.String())
	assert.True(t, stream.Closed())
}

func TestReduceStreamError(t *testing.T) {
	r, _, _ := newTestReducer()
	cause := stderrors.New("connection reset")
	stream := llm.NewSliceStream([]llm.StreamEvent{{Kind: llm.EventCreated}}, cause)

	_, err := r.Reduce(stream)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, errors.ErrProtocol))
}

func TestReduceFailedEvent(t *testing.T) {
	r, _, _ := newTestReducer()
	stream := llm.NewSliceStream([]llm.StreamEvent{
		{Kind: llm.EventCreated},
		{Kind: llm.EventFailed, Err: "agent crashed"},
		{Kind: llm.EventCompleted, Response: &llm.Response{ID: "resp_1"}},
	}, nil)

	_, err := r.Reduce(stream)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
	assert.Contains(t, err.Error(), "agent crashed")
}

func TestReduceStopsAtCompleted(t *testing.T) {
	r, out, _ := newTestReducer()
	stream := llm.NewSliceStream([]llm.StreamEvent{
		{Kind: llm.EventTextDelta, Delta: "a"},
		{Kind: llm.EventCompleted, Response: &llm.Response{ID: "resp_1"}},
		{Kind: llm.EventTextDelta, Delta: "b"},
	}, nil)

	resp, err := r.Reduce(stream)
	require.NoError(t, err)
	assert.Equal(t, "resp_1", resp.ID)
	assert.Equal(t, "a", out.String())
}
