package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/m4xw311/foundrychat/errors"
)

// Client is the transport that runs one turn against the remote agent.
type Client interface {
	// Send runs a turn and returns the complete response.
	Send(ctx context.Context, req TurnRequest) (*Response, error)
	// SendStream runs a turn and returns its events as they arrive.
	SendStream(ctx context.Context, req TurnRequest) (EventStream, error)
}

// Conversations creates and looks up server-side conversations.
type Conversations interface {
	CreateConversation(ctx context.Context) (string, error)
	RetrieveConversation(ctx context.Context, id string) (string, error)
}

// Agents looks up agents hosted by the service.
type Agents interface {
	// GetAgent returns the service's name for the agent, failing when the
	// agent does not exist.
	GetAgent(ctx context.Context, name string) (string, error)
}

// OpenConversation resumes the conversation with the given id, or creates a
// new one when id is empty.
func OpenConversation(ctx context.Context, svc Conversations, id string) (string, error) {
	if id != "" {
		got, err := svc.RetrieveConversation(ctx, id)
		if err != nil {
			return "", errors.Wrapf(err, "could not retrieve conversation '%s'", id)
		}
		return got, nil
	}
	got, err := svc.CreateConversation(ctx)
	if err != nil {
		return "", errors.Wrapf(err, "could not create conversation")
	}
	return got, nil
}

// MockClient is an offline transport. Queued responses and event sequences are
// handed out in order; once a queue is empty it echoes the user's text.
type MockClient struct {
	mu        sync.Mutex
	responses []*Response
	streams   [][]StreamEvent
	errs      []error
	requests  []TurnRequest
	convs     map[string]bool
	agents    map[string]bool
}

// NewMockClient returns an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{convs: make(map[string]bool), agents: make(map[string]bool)}
}

// QueueResponse adds a response for a future Send call.
func (m *MockClient) QueueResponse(resp *Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// QueueStream adds an event sequence for a future SendStream call.
func (m *MockClient) QueueStream(events ...StreamEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = append(m.streams, events)
}

// QueueError makes the next Send or SendStream call fail with err.
func (m *MockClient) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
}

// Requests returns the requests seen so far.
func (m *MockClient) Requests() []TurnRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TurnRequest(nil), m.requests...)
}

func (m *MockClient) Send(ctx context.Context, req TurnRequest) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, req); err != nil {
		return nil, err
	}
	if len(m.responses) > 0 {
		resp := m.responses[0]
		m.responses = m.responses[1:]
		return resp, nil
	}
	return echo(req), nil
}

func (m *MockClient) SendStream(ctx context.Context, req TurnRequest) (EventStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, req); err != nil {
		return nil, err
	}
	if len(m.streams) > 0 {
		events := m.streams[0]
		m.streams = m.streams[1:]
		return NewSliceStream(events, nil), nil
	}

	resp := echo(req)
	return NewSliceStream([]StreamEvent{
		{Kind: EventCreated},
		{Kind: EventTextDelta, Delta: resp.Text},
		{Kind: EventTextDone, Text: resp.Text},
		{Kind: EventCompleted, Response: resp},
	}, nil), nil
}

func (m *MockClient) record(ctx context.Context, req TurnRequest) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapKind(errors.ErrTransport, err, "mock request cancelled")
	}
	m.requests = append(m.requests, req)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return errors.WrapKind(errors.ErrTransport, err, "mock request failed")
	}
	return nil
}

func (m *MockClient) CreateConversation(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := "conv_" + uuid.NewString()
	m.convs[id] = true
	return id, nil
}

func (m *MockClient) RetrieveConversation(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.convs[id] {
		return "", errors.NewKind(errors.ErrTransport, "conversation '%s' not found", id)
	}
	return id, nil
}

// AddConversation registers an existing conversation id.
func (m *MockClient) AddConversation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[id] = true
}

func (m *MockClient) GetAgent(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.agents[name] {
		return "", errors.NewKind(errors.ErrTransport, "agent '%s' not found", name)
	}
	return name, nil
}

// AddAgent registers an agent name.
func (m *MockClient) AddAgent(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[name] = true
}

func echo(req TurnRequest) *Response {
	var text string
	if req.Input.IsApproval() {
		approved := 0
		for _, d := range req.Input.Decisions {
			if d.Approve {
				approved++
			}
		}
		text = fmt.Sprintf("I am a mock agent. You approved %d of %d tool calls.", approved, len(req.Input.Decisions))
	} else {
		text = fmt.Sprintf("I am a mock agent. You said: '%s'.", req.Input.Text)
	}
	return &Response{
		ID:     "resp_" + uuid.NewString(),
		Status: "completed",
		Text:   text,
		Output: []OutputItem{{Kind: OutputMessage, Type: "message", ID: "msg_" + uuid.NewString(), Text: text}},
	}
}
