package llm

// ContinuationRef links a turn to earlier conversation state. Exactly one of
// the fields is set: the conversation id for the first turn of a session,
// the previous response id for every turn after that.
type ContinuationRef struct {
	ConversationID     string
	PreviousResponseID string
}

// ApprovalDecision answers one tool approval request.
type ApprovalDecision struct {
	RequestID string
	Approve   bool
}

// Input is a turn's input: either freeform text or a batch of approval
// decisions, never both.
type Input struct {
	Text      string
	Decisions []ApprovalDecision
}

// IsApproval reports whether the input is an approval batch.
func (in Input) IsApproval() bool {
	return len(in.Decisions) > 0
}

// TurnRequest is everything the transport needs to run one turn.
type TurnRequest struct {
	Continuation ContinuationRef
	Input        Input
	// Agent routes the request to a named agent on the service.
	Agent string
}

type OutputKind int

const (
	OutputOther OutputKind = iota
	OutputMessage
	OutputApprovalRequest
)

func (k OutputKind) String() string {
	switch k {
	case OutputMessage:
		return "message"
	case OutputApprovalRequest:
		return "approval_request"
	case OutputOther:
		return "other"
	}
	return "unknown"
}

// OutputItem is one entry of a response's output. ServerLabel, Name and
// Arguments are only set for approval requests, Text only for messages.
type OutputItem struct {
	Kind OutputKind
	// Type is the wire type, kept for items of kind OutputOther.
	Type        string
	ID          string
	ServerLabel string
	Name        string
	Arguments   string
	Text        string
}

// Response is the result of a turn.
type Response struct {
	ID     string
	Status string
	Text   string
	Output []OutputItem
}

type EventKind int

const (
	// EventOther covers wire events the client has no use for.
	EventOther EventKind = iota
	EventCreated
	EventTextDelta
	EventTextDone
	EventCompleted
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventTextDelta:
		return "text_delta"
	case EventTextDone:
		return "text_done"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventOther:
		return "other"
	}
	return "unknown"
}

// StreamEvent is one increment of a streamed response. Delta is set for
// EventTextDelta, Text for EventTextDone, Response for EventCompleted and Err
// for EventFailed.
type StreamEvent struct {
	Kind     EventKind
	Delta    string
	Text     string
	Response *Response
	Err      string
}

// EventStream is the live event sequence of one streamed turn.
type EventStream interface {
	// Next advances to the next event. It returns false when the stream is
	// exhausted or failed; check Err to tell the two apart.
	Next() bool
	Current() StreamEvent
	Err() error
	Close() error
}

// SliceStream replays a fixed list of events.
type SliceStream struct {
	events []StreamEvent
	pos    int
	err    error
	closed bool
}

// NewSliceStream returns a stream over events. If err is non-nil it is
// reported once the events are used up.
func NewSliceStream(events []StreamEvent, err error) *SliceStream {
	return &SliceStream{events: events, pos: -1, err: err}
}

func (s *SliceStream) Next() bool {
	if s.closed || s.pos+1 >= len(s.events) {
		return false
	}
	s.pos++
	return true
}

func (s *SliceStream) Current() StreamEvent {
	if s.pos < 0 || s.pos >= len(s.events) {
		return StreamEvent{}
	}
	return s.events[s.pos]
}

func (s *SliceStream) Err() error {
	if s.pos+1 >= len(s.events) {
		return s.err
	}
	return nil
}

func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *SliceStream) Closed() bool {
	return s.closed
}
