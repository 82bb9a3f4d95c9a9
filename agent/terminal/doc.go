// Package terminal implements the line-based terminal input for the chat
// client.
//
// Two prompters are provided, both satisfying agent.Prompter:
//
//   - Readline: line editing and optional history for interactive terminals.
//     Ctrl+C and Ctrl+D end the session.
//   - LineReader: plain line reading for piped or redirected input. The end
//     of input ends the session.
//
// Both stop waiting for input when the context is cancelled. NewPrompter
// picks the right one for the given input. Prompts are drawn on
// the diagnostic stream so that stdout only carries the agent's replies.
//
// # Usage
//
//	prompter, err := terminal.NewPrompter(os.Stdin, os.Stderr, historyFile)
//	if err != nil {
//	    // handle error
//	}
//	defer prompter.Close()
//
//	a, err := agent.New(agent.Options{Prompter: prompter, ...})
package terminal
