// Package session holds the state carried from one turn to the next.
//
// State is a value. Every turn receives the current State and returns a new
// one, so a failed turn leaves the previous State untouched.
package session

import "github.com/m4xw311/foundrychat/llm"

// PendingApproval is a tool approval request awaiting the user's decision.
type PendingApproval struct {
	RequestID   string
	ServerLabel string
	ToolName    string
	Arguments   string
}

// State is the session state between turns.
type State struct {
	ConversationID     string
	PreviousResponseID string
	Pending            []PendingApproval
}

// New creates the state for a session on the given conversation.
func New(conversationID string) State {
	return State{ConversationID: conversationID}
}

// Continuation returns the reference for the next turn: the conversation for
// the first turn, the previous response afterwards.
func (s State) Continuation() llm.ContinuationRef {
	if s.PreviousResponseID != "" {
		return llm.ContinuationRef{PreviousResponseID: s.PreviousResponseID}
	}
	return llm.ContinuationRef{ConversationID: s.ConversationID}
}

// HasPending reports whether approval requests are waiting.
func (s State) HasPending() bool {
	return len(s.Pending) > 0
}

// Advance returns the state after a successful turn. The pending set is
// replaced by pending, which may be empty.
func (s State) Advance(responseID string, pending []PendingApproval) State {
	return State{
		ConversationID:     s.ConversationID,
		PreviousResponseID: responseID,
		Pending:            append([]PendingApproval(nil), pending...),
	}
}
