package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/m4xw311/foundrychat/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloResponse = `{
  "id": "resp_1",
  "object": "response",
  "status": "completed",
  "output": [
    {"type": "message", "id": "msg_1", "role": "assistant", "status": "completed",
     "content": [{"type": "output_text", "text": "Hello", "annotations": []}]},
    {"type": "mcp_approval_request", "id": "mcpr_1", "server_label": "github", "name": "create_issue", "arguments": "{}"},
    {"type": "mcp_list_tools", "id": "mcpl_1", "server_label": "github", "tools": []}
  ]
}`

// fakeService records request bodies and replays canned payloads.
type fakeService struct {
	mu     sync.Mutex
	bodies []map[string]any
	paths  []string
	stream []string
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /openai/responses", func(w http.ResponseWriter, r *http.Request) {
		body := f.record(t, r)
		if body["stream"] == true {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, ev := range f.stream {
				fmt.Fprintf(w, "data: %s\n\n", ev)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, helloResponse)
	})
	mux.HandleFunc("POST /openai/conversations", func(w http.ResponseWriter, r *http.Request) {
		f.record(t, r)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"conv_new","object":"conversation"}`)
	})
	mux.HandleFunc("GET /openai/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(t, r)
		if r.PathValue("id") != "conv_old" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"message":"not found","type":"invalid_request_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"conv_old","object":"conversation"}`)
	})
	mux.HandleFunc("GET /agents/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.record(t, r)
		w.Header().Set("Content-Type", "application/json")
		if r.PathValue("name") != "helper" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"message":"agent not found","code":"not_found"}}`)
			return
		}
		io.WriteString(w, `{"id":"helper:3","object":"agent","name":"helper"}`)
	})
	return mux
}

func (f *fakeService) record(t *testing.T, r *http.Request) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.Path+"?"+r.URL.RawQuery)
	body := map[string]any{}
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &body))
	}
	f.bodies = append(f.bodies, body)
	return body
}

func newTestClient(t *testing.T, f *fakeService) *ResponsesClient {
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)
	client, err := NewResponsesClient(ResponsesOptions{
		Endpoint:   server.URL,
		APIKey:     "test-key",
		APIVersion: "2025-11-15-preview",
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return client
}

func TestSendFirstTurnUsesConversation(t *testing.T) {
	f := &fakeService{}
	client := newTestClient(t, f)

	resp, err := client.Send(context.Background(), TurnRequest{
		Continuation: ContinuationRef{ConversationID: "conv_1"},
		Input:        Input{Text: "hi"},
		Agent:        "helper",
	})
	require.NoError(t, err)

	body := f.bodies[0]
	assert.Equal(t, "conv_1", body["conversation"])
	assert.NotContains(t, body, "previous_response_id")
	assert.Equal(t, "hi", body["input"])
	assert.Equal(t, map[string]any{"name": "helper", "type": "agent_reference"}, body["agent"])
	assert.Equal(t, "/openai/responses?api-version=2025-11-15-preview", f.paths[0])

	assert.Equal(t, "resp_1", resp.ID)
	assert.Equal(t, "Hello", resp.Text)
	require.Len(t, resp.Output, 3)
	assert.Equal(t, OutputMessage, resp.Output[0].Kind)
	assert.Equal(t, "Hello", resp.Output[0].Text)
	assert.Equal(t, OutputItem{
		Kind:        OutputApprovalRequest,
		Type:        "mcp_approval_request",
		ID:          "mcpr_1",
		ServerLabel: "github",
		Name:        "create_issue",
		Arguments:   "{}",
	}, resp.Output[1])
	assert.Equal(t, OutputOther, resp.Output[2].Kind)
	assert.Equal(t, "mcp_list_tools", resp.Output[2].Type)
}

func TestSendLaterTurnUsesPreviousResponse(t *testing.T) {
	f := &fakeService{}
	client := newTestClient(t, f)

	_, err := client.Send(context.Background(), TurnRequest{
		Continuation: ContinuationRef{PreviousResponseID: "resp_0"},
		Input: Input{Decisions: []ApprovalDecision{
			{RequestID: "mcpr_1", Approve: true},
			{RequestID: "mcpr_2", Approve: true},
		}},
		Agent: "helper",
	})
	require.NoError(t, err)

	body := f.bodies[0]
	assert.Equal(t, "resp_0", body["previous_response_id"])
	assert.NotContains(t, body, "conversation")

	items, ok := body["input"].([]any)
	require.True(t, ok, "input should be an item list")
	require.Len(t, items, 2)
	for i, id := range []string{"mcpr_1", "mcpr_2"} {
		item := items[i].(map[string]any)
		assert.Equal(t, "mcp_approval_response", item["type"])
		assert.Equal(t, id, item["approval_request_id"])
		assert.Equal(t, true, item["approve"])
	}
}

func TestSendServerErrorIsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad token","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	client, err := NewResponsesClient(ResponsesOptions{Endpoint: server.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = client.Send(context.Background(), TurnRequest{Input: Input{Text: "hi"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
}

func TestSendStreamEvents(t *testing.T) {
	f := &fakeService{stream: []string{
		`{"type":"response.created","sequence_number":0,"response":{"id":"resp_1","object":"response","status":"in_progress","output":[]}}`,
		`{"type":"response.output_text.delta","sequence_number":1,"item_id":"msg_1","output_index":0,"content_index":0,"delta":"Hel"}`,
		`{"type":"response.output_text.delta","sequence_number":2,"item_id":"msg_1","output_index":0,"content_index":0,"delta":"lo"}`,
		`{"type":"response.output_text.done","sequence_number":3,"item_id":"msg_1","output_index":0,"content_index":0,"text":"Hello"}`,
		`{"type":"response.in_progress","sequence_number":4,"response":{"id":"resp_1","object":"response","status":"in_progress","output":[]}}`,
		`{"type":"response.completed","sequence_number":5,"response":` + helloResponse + `}`,
	}}
	client := newTestClient(t, f)

	stream, err := client.SendStream(context.Background(), TurnRequest{
		Continuation: ContinuationRef{ConversationID: "conv_1"},
		Input:        Input{Text: "hi"},
	})
	require.NoError(t, err)
	defer stream.Close()

	var kinds []EventKind
	var deltas string
	var final *Response
	for stream.Next() {
		ev := stream.Current()
		kinds = append(kinds, ev.Kind)
		deltas += ev.Delta
		if ev.Kind == EventCompleted {
			final = ev.Response
		}
	}
	require.NoError(t, stream.Err())

	assert.Equal(t, []EventKind{EventCreated, EventTextDelta, EventTextDelta, EventTextDone, EventOther, EventCompleted}, kinds)
	assert.Equal(t, "Hello", deltas)
	require.NotNil(t, final)
	assert.Equal(t, "resp_1", final.ID)
	assert.Equal(t, "Hello", final.Text)
	assert.Equal(t, true, f.bodies[0]["stream"])
}

func TestSendStreamFailedEvent(t *testing.T) {
	f := &fakeService{stream: []string{
		`{"type":"response.failed","sequence_number":0,"response":{"id":"resp_1","object":"response","status":"failed","output":[],"error":{"code":"server_error","message":"agent crashed"}}}`,
	}}
	client := newTestClient(t, f)

	stream, err := client.SendStream(context.Background(), TurnRequest{Input: Input{Text: "hi"}})
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Next())
	ev := stream.Current()
	assert.Equal(t, EventFailed, ev.Kind)
	assert.Equal(t, "agent crashed", ev.Err)
}

func TestConversations(t *testing.T) {
	f := &fakeService{}
	client := newTestClient(t, f)
	ctx := context.Background()

	id, err := OpenConversation(ctx, client, "")
	require.NoError(t, err)
	assert.Equal(t, "conv_new", id)

	id, err = OpenConversation(ctx, client, "conv_old")
	require.NoError(t, err)
	assert.Equal(t, "conv_old", id)

	_, err = OpenConversation(ctx, client, "conv_missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
}

func TestGetAgent(t *testing.T) {
	f := &fakeService{}
	client := newTestClient(t, f)

	name, err := client.GetAgent(context.Background(), "helper")
	require.NoError(t, err)
	assert.Equal(t, "helper", name)
	assert.Equal(t, "/agents/helper?api-version=2025-11-15-preview", f.paths[0])

	_, err = client.GetAgent(context.Background(), "nobody")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
}

func TestNewResponsesClientRequiresEndpoint(t *testing.T) {
	_, err := NewResponsesClient(ResponsesOptions{})
	assert.Error(t, err)
}
