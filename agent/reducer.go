package agent

import (
	"fmt"
	"io"

	"github.com/m4xw311/foundrychat/errors"
	"github.com/m4xw311/foundrychat/llm"
)

// Reducer turns the event stream of one turn into terminal output and the
// final response. Text fragments go to Out as they arrive; the agent label
// goes to Diag so Out carries nothing but assistant text.
type Reducer struct {
	Label string
	Out   io.Writer
	Diag  io.Writer
	// LabelOnCreated writes the label as soon as the turn is acknowledged
	// instead of before the first text fragment.
	LabelOnCreated bool
}

// Reduce consumes stream until its completed event and returns the embedded
// response. A stream that ends without one is a protocol violation. The
// stream is always closed.
func (r *Reducer) Reduce(stream llm.EventStream) (resp *llm.Response, err error) {
	defer func() {
		if cerr := stream.Close(); cerr != nil && err == nil {
			err = errors.WrapKind(errors.ErrTransport, cerr, "failed to close stream")
		}
	}()

	labeled := false
	writeLabel := func() {
		if !labeled {
			fmt.Fprintf(r.Diag, "[%s]: ", r.Label)
			labeled = true
		}
	}

	for stream.Next() {
		ev := stream.Current()
		switch ev.Kind {
		case llm.EventCreated:
			if r.LabelOnCreated {
				writeLabel()
			}
		case llm.EventTextDelta:
			writeLabel()
			if _, err := io.WriteString(r.Out, ev.Delta); err != nil {
				return nil, errors.Wrapf(err, "failed to write reply")
			}
		case llm.EventTextDone:
		case llm.EventOther:
		case llm.EventFailed:
			return nil, errors.NewKind(errors.ErrTransport, "agent reported an error: %s", ev.Err)
		case llm.EventCompleted:
			if labeled {
				fmt.Fprintln(r.Diag)
			}
			if ev.Response == nil {
				return nil, errors.NewKind(errors.ErrProtocol, "completed event without a response")
			}
			return ev.Response, nil
		}
	}
	if err := stream.Err(); err != nil {
		if errors.Is(err, errors.ErrTransport) {
			return nil, err
		}
		return nil, errors.WrapKind(errors.ErrTransport, err, "stream failed")
	}
	return nil, errors.NewKind(errors.ErrProtocol, "stream ended without a completed event")
}
