package llm

import (
	"context"
	"net/url"
	"strings"

	"github.com/m4xw311/foundrychat/errors"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/ssestream"
	"github.com/openai/openai-go/v2/responses"
	"github.com/rs/zerolog"
)

// ResponsesOptions configures a ResponsesClient.
type ResponsesOptions struct {
	// Endpoint is the project endpoint. Requests go to <Endpoint>/openai/.
	Endpoint   string
	APIKey     string
	APIVersion string
	Logger     zerolog.Logger
}

// ResponsesClient is a client for the OpenAI Responses and Conversations APIs
// as served by an agent project.
type ResponsesClient struct {
	client *openai.Client
	// projectURL is the endpoint root, where agents are looked up.
	projectURL string
	logger     zerolog.Logger
}

// NewResponsesClient creates a new ResponsesClient. Transport failures are
// never retried.
func NewResponsesClient(opts ResponsesOptions) (*ResponsesClient, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("no endpoint configured")
	}
	if _, err := url.Parse(opts.Endpoint); err != nil {
		return nil, errors.Wrapf(err, "invalid endpoint '%s'", opts.Endpoint)
	}

	projectURL := strings.TrimSuffix(opts.Endpoint, "/") + "/"
	options := []option.RequestOption{
		option.WithBaseURL(projectURL + "openai/"),
		option.WithMaxRetries(0),
	}
	if opts.APIKey != "" {
		options = append(options, option.WithAPIKey(opts.APIKey))
	}
	if opts.APIVersion != "" {
		options = append(options, option.WithQuery("api-version", opts.APIVersion))
	}

	// The v2 SDK returns the client by value.
	c := openai.NewClient(options...)
	return &ResponsesClient{client: &c, projectURL: projectURL, logger: opts.Logger}, nil
}

// Send runs a non-streaming turn.
func (r *ResponsesClient) Send(ctx context.Context, req TurnRequest) (*Response, error) {
	params, opts := buildResponseParams(req)
	resp, err := r.client.Responses.New(ctx, params, opts...)
	if err != nil {
		return nil, errors.WrapKind(errors.ErrTransport, err, "failed to create response")
	}
	r.logger.Debug().Str("response_id", resp.ID).Str("status", string(resp.Status)).Msg("response received")
	return convertResponse(resp), nil
}

// SendStream runs a streaming turn. Failures to connect surface from the
// returned stream's Err.
func (r *ResponsesClient) SendStream(ctx context.Context, req TurnRequest) (EventStream, error) {
	params, opts := buildResponseParams(req)
	stream := r.client.Responses.NewStreaming(ctx, params, opts...)
	return &responseStream{stream: stream, logger: r.logger}, nil
}

type conversationObject struct {
	ID string `json:"id"`
}

func (r *ResponsesClient) CreateConversation(ctx context.Context) (string, error) {
	var conv conversationObject
	if err := r.client.Post(ctx, "conversations", map[string]any{}, &conv); err != nil {
		return "", errors.WrapKind(errors.ErrTransport, err, "failed to create conversation")
	}
	if conv.ID == "" {
		return "", errors.NewKind(errors.ErrTransport, "conversation created without an id")
	}
	return conv.ID, nil
}

func (r *ResponsesClient) RetrieveConversation(ctx context.Context, id string) (string, error) {
	var conv conversationObject
	if err := r.client.Get(ctx, "conversations/"+url.PathEscape(id), nil, &conv); err != nil {
		return "", errors.WrapKind(errors.ErrTransport, err, "failed to retrieve conversation")
	}
	if conv.ID == "" {
		return "", errors.NewKind(errors.ErrTransport, "conversation '%s' returned without an id", id)
	}
	return conv.ID, nil
}

type agentObject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GetAgent looks up an agent by name on the project and returns the name the
// service knows it by.
func (r *ResponsesClient) GetAgent(ctx context.Context, name string) (string, error) {
	var agent agentObject
	err := r.client.Get(ctx, "agents/"+url.PathEscape(name), nil, &agent, option.WithBaseURL(r.projectURL))
	if err != nil {
		return "", errors.WrapKind(errors.ErrTransport, err, "failed to get agent")
	}
	if agent.Name == "" {
		return "", errors.NewKind(errors.ErrTransport, "agent '%s' returned without a name", name)
	}
	r.logger.Debug().Str("agent", agent.Name).Str("agent_id", agent.ID).Msg("agent resolved")
	return agent.Name, nil
}

// buildResponseParams converts a turn into request parameters. The
// conversation and agent fields are not part of the public Responses schema,
// so they are set on the raw body.
func buildResponseParams(req TurnRequest) (responses.ResponseNewParams, []option.RequestOption) {
	var params responses.ResponseNewParams
	if req.Input.IsApproval() {
		items := make(responses.ResponseInputParam, 0, len(req.Input.Decisions))
		for _, d := range req.Input.Decisions {
			items = append(items, responses.ResponseInputItemUnionParam{
				OfMcpApprovalResponse: &responses.ResponseInputItemMcpApprovalResponseParam{
					ApprovalRequestID: d.RequestID,
					Approve:           d.Approve,
				},
			})
		}
		params.Input = responses.ResponseNewParamsInputUnion{OfInputItemList: items}
	} else {
		params.Input = responses.ResponseNewParamsInputUnion{OfString: openai.String(req.Input.Text)}
	}

	// Routing to a named agent picks the model on the server side.
	opts := []option.RequestOption{option.WithJSONDel("model")}
	if req.Continuation.PreviousResponseID != "" {
		params.PreviousResponseID = openai.String(req.Continuation.PreviousResponseID)
	} else if req.Continuation.ConversationID != "" {
		opts = append(opts, option.WithJSONSet("conversation", req.Continuation.ConversationID))
	}
	if req.Agent != "" {
		opts = append(opts, option.WithJSONSet("agent", map[string]string{
			"name": req.Agent,
			"type": "agent_reference",
		}))
	}
	return params, opts
}

// convertResponse converts an API response into our Response.
func convertResponse(resp *responses.Response) *Response {
	out := &Response{
		ID:     resp.ID,
		Status: string(resp.Status),
		Text:   resp.OutputText(),
	}
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			msg := item.AsMessage()
			var text strings.Builder
			for _, c := range msg.Content {
				if c.Type == "output_text" {
					text.WriteString(c.Text)
				}
			}
			out.Output = append(out.Output, OutputItem{
				Kind: OutputMessage,
				Type: item.Type,
				ID:   msg.ID,
				Text: text.String(),
			})
		case "mcp_approval_request":
			approval := item.AsMcpApprovalRequest()
			out.Output = append(out.Output, OutputItem{
				Kind:        OutputApprovalRequest,
				Type:        item.Type,
				ID:          approval.ID,
				ServerLabel: approval.ServerLabel,
				Name:        approval.Name,
				Arguments:   approval.Arguments,
			})
		default:
			out.Output = append(out.Output, OutputItem{
				Kind: OutputOther,
				Type: item.Type,
				ID:   item.ID,
			})
		}
	}
	return out
}

// convertEvent maps a wire event onto a StreamEvent.
func convertEvent(ev responses.ResponseStreamEventUnion) StreamEvent {
	switch ev.Type {
	case "response.created":
		return StreamEvent{Kind: EventCreated}
	case "response.output_text.delta":
		return StreamEvent{Kind: EventTextDelta, Delta: ev.AsResponseOutputTextDelta().Delta}
	case "response.output_text.done":
		return StreamEvent{Kind: EventTextDone, Text: ev.AsResponseOutputTextDone().Text}
	case "response.completed":
		completed := ev.AsResponseCompleted()
		return StreamEvent{Kind: EventCompleted, Response: convertResponse(&completed.Response)}
	case "response.failed":
		failed := ev.AsResponseFailed()
		msg := failed.Response.Error.Message
		if msg == "" {
			msg = "response failed"
		}
		return StreamEvent{Kind: EventFailed, Err: msg}
	case "error":
		return StreamEvent{Kind: EventFailed, Err: ev.AsError().Message}
	}
	return StreamEvent{Kind: EventOther}
}

type responseStream struct {
	stream *ssestream.Stream[responses.ResponseStreamEventUnion]
	logger zerolog.Logger
}

func (s *responseStream) Next() bool {
	return s.stream.Next()
}

func (s *responseStream) Current() StreamEvent {
	ev := s.stream.Current()
	s.logger.Trace().Str("type", ev.Type).Msg("stream event")
	return convertEvent(ev)
}

func (s *responseStream) Err() error {
	return errors.WrapKind(errors.ErrTransport, s.stream.Err(), "stream failed")
}

func (s *responseStream) Close() error {
	return s.stream.Close()
}
