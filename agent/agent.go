package agent

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/m4xw311/foundrychat/config"
	"github.com/m4xw311/foundrychat/errors"
	"github.com/m4xw311/foundrychat/llm"
	"github.com/m4xw311/foundrychat/session"
	"github.com/rs/zerolog"
)

const userPrompt = "[You]: "

// Prompter reads one line of user input. It returns errors.ErrInterrupted
// when the user interrupts or input ends.
type Prompter interface {
	Prompt(ctx context.Context, prompt string) (string, error)
}

// Asker is implemented by prompters that keep input history. Ask reads an
// answer to a one-off question that should stay out of that history.
type Asker interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// Options holds everything needed to build an Agent.
type Options struct {
	Config   *config.Config
	Client   llm.Client
	Prompter Prompter
	// Approver defaults to the policy described by Config.
	Approver Approver
	// Out receives assistant text, Diag everything else.
	Out    io.Writer
	Diag   io.Writer
	Logger zerolog.Logger
}

// Agent drives a conversation turn by turn. Turns are strictly serial.
type Agent struct {
	Name     string
	Stream   bool
	client   llm.Client
	prompter Prompter
	approver Approver
	reducer  *Reducer
	out      io.Writer
	diag     io.Writer
	logger   zerolog.Logger
}

func New(opts Options) (*Agent, error) {
	if opts.Config == nil {
		return nil, errors.New("agent needs a configuration")
	}
	if opts.Client == nil {
		return nil, errors.New("agent needs a transport client")
	}
	if opts.Prompter == nil {
		return nil, errors.New("agent needs a prompter")
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Diag == nil {
		opts.Diag = io.Discard
	}
	if opts.Approver == nil {
		opts.Approver = NewApprover(opts.Config, opts.Prompter, opts.Diag)
	}

	return &Agent{
		Name:     opts.Config.AgentName,
		Stream:   opts.Config.Stream,
		client:   opts.Client,
		prompter: opts.Prompter,
		approver: opts.Approver,
		reducer: &Reducer{
			Label:          opts.Config.AgentName,
			Out:            opts.Out,
			Diag:           opts.Diag,
			LabelOnCreated: opts.Config.LabelOnCreated,
		},
		out:    opts.Out,
		diag:   opts.Diag,
		logger: opts.Logger,
	}, nil
}

// Run drives the conversation until the user interrupts or a turn fails. An
// interrupt ends the session without an error. A non-empty initialPrompt is
// sent as the first message instead of prompting for one.
func (a *Agent) Run(ctx context.Context, state session.State, initialPrompt string) error {
	fmt.Fprintln(a.diag, "You can start chatting with the agent now.")

	if strings.TrimSpace(initialPrompt) != "" && !state.HasPending() {
		next, err := a.turn(ctx, state, llm.Input{Text: initialPrompt})
		if err != nil {
			return a.finish(ctx, err)
		}
		state = next
	}

	for {
		next, err := a.Step(ctx, state)
		if err != nil {
			return a.finish(ctx, err)
		}
		state = next
	}
}

func (a *Agent) finish(ctx context.Context, err error) error {
	if errors.Is(err, errors.ErrInterrupted) || ctx.Err() != nil {
		a.logger.Debug().Err(err).Msg("session ended by user")
		return nil
	}
	return err
}

// Step runs one iteration of the loop. Pending approvals, if any, decide the
// input; otherwise the user is prompted and blank input skips the turn. On
// error the given state is returned unchanged.
func (a *Agent) Step(ctx context.Context, state session.State) (session.State, error) {
	input, ok, err := a.nextInput(ctx, state)
	if err != nil || !ok {
		return state, err
	}
	return a.turn(ctx, state, input)
}

func (a *Agent) nextInput(ctx context.Context, state session.State) (llm.Input, bool, error) {
	if state.HasPending() {
		a.announce(state.Pending)
		approve, err := a.approver.Decide(ctx, state.Pending)
		if err != nil {
			return llm.Input{}, false, err
		}
		a.logger.Debug().Bool("approve", approve).Int("count", len(state.Pending)).Msg("approval decided")
		return llm.Input{Decisions: EncodeDecisions(state.Pending, approve)}, true, nil
	}

	fmt.Fprintln(a.diag)
	text, err := a.prompter.Prompt(ctx, userPrompt)
	if err != nil {
		return llm.Input{}, false, err
	}
	text = strings.TrimSpace(text)
	switch text {
	case "":
		return llm.Input{}, false, nil
	case "/quit", "/exit":
		return llm.Input{}, false, errors.NewKind(errors.ErrInterrupted, "user quit")
	}
	return llm.Input{Text: text}, true, nil
}

func (a *Agent) announce(pending []session.PendingApproval) {
	fmt.Fprintln(a.diag, "The agent is requesting approval for the following tools:")
	for _, p := range pending {
		fmt.Fprintf(a.diag, "  - Server: %s\n", p.ServerLabel)
		fmt.Fprintf(a.diag, "    Tool: %s\n", p.ToolName)
	}
}

// turn dispatches one request and derives the next state from its response.
func (a *Agent) turn(ctx context.Context, state session.State, input llm.Input) (session.State, error) {
	req := llm.TurnRequest{
		Continuation: state.Continuation(),
		Input:        input,
		Agent:        a.Name,
	}
	a.logger.Debug().
		Str("conversation", req.Continuation.ConversationID).
		Str("previous_response", req.Continuation.PreviousResponseID).
		Bool("approval", input.IsApproval()).
		Bool("stream", a.Stream).
		Msg("dispatching turn")

	resp, err := a.dispatch(ctx, req)
	if err != nil {
		return state, err
	}

	if !a.Stream {
		fmt.Fprintf(a.out, "[%s]: %s\n", a.Name, resp.Text)
	}
	pending := ExtractPending(resp)
	a.logger.Debug().Str("response_id", resp.ID).Int("pending", len(pending)).Msg("turn completed")
	return state.Advance(resp.ID, pending), nil
}

func (a *Agent) dispatch(ctx context.Context, req llm.TurnRequest) (*llm.Response, error) {
	if !a.Stream {
		resp, err := a.client.Send(ctx, req)
		if err != nil {
			return nil, errors.Wrapf(err, "turn failed")
		}
		return resp, nil
	}

	stream, err := a.client.SendStream(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "turn failed")
	}
	resp, err := a.reducer.Reduce(stream)
	if err != nil {
		return nil, errors.Wrapf(err, "turn failed")
	}
	return resp, nil
}
