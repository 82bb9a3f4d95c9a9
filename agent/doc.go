// Package agent drives a conversation with a remote agent.
//
// The package has three parts that work together on every turn:
//
//   - Agent, the turn controller. It owns the session state, decides where a
//     turn's input comes from and dispatches the turn to the transport.
//   - Reducer, which turns the events of a streamed turn into terminal output
//     and the final response.
//   - The approval gate (ExtractPending, Approver, EncodeDecisions), which
//     turns tool approval requests in a response into the next turn's input.
//
// # Usage
//
//	a, err := agent.New(agent.Options{
//	    Config:   cfg,
//	    Client:   client,
//	    Prompter: prompter,
//	    Out:      os.Stdout,
//	    Diag:     os.Stderr,
//	})
//	if err != nil {
//	    // handle error
//	}
//	err = a.Run(ctx, session.New(conversationID), "")
//
// # Approvals
//
// When a response contains approval requests, the next turn answers all of
// them with a single decision. The decision comes from the Approver:
//
//   - AutoApprover: always approve, never prompt
//   - PromptApprover: ask the user once per batch ("", "y" and "yes" approve)
//   - AllowlistApprover: approve without asking when every tool matches a
//     configured pattern, otherwise defer to another Approver
//
// # Output
//
// Assistant text goes to Out. Labels, prompts, announcements and logs go to
// Diag, so the two can be redirected independently.
package agent
