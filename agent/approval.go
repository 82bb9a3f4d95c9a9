package agent

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/foundrychat/config"
	"github.com/m4xw311/foundrychat/llm"
	"github.com/m4xw311/foundrychat/session"
)

const approvalQuestion = "Do you approve the use of these tools? [Y/n]: "

// ExtractPending returns every approval request in resp, in output order.
func ExtractPending(resp *llm.Response) []session.PendingApproval {
	if resp == nil {
		return nil
	}
	var pending []session.PendingApproval
	for _, item := range resp.Output {
		switch item.Kind {
		case llm.OutputApprovalRequest:
			pending = append(pending, session.PendingApproval{
				RequestID:   item.ID,
				ServerLabel: item.ServerLabel,
				ToolName:    item.Name,
				Arguments:   item.Arguments,
			})
		case llm.OutputMessage, llm.OutputOther:
		}
	}
	return pending
}

// ParseDecision reads a yes/no answer. Blank, "y" and "yes" approve.
func ParseDecision(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return true
	}
	return false
}

// EncodeDecisions answers every pending request with the same decision. The
// protocol has no partial approval within one turn.
func EncodeDecisions(pending []session.PendingApproval, approve bool) []llm.ApprovalDecision {
	decisions := make([]llm.ApprovalDecision, 0, len(pending))
	for _, p := range pending {
		decisions = append(decisions, llm.ApprovalDecision{RequestID: p.RequestID, Approve: approve})
	}
	return decisions
}

// Approver decides a whole batch of pending approvals at once.
type Approver interface {
	Decide(ctx context.Context, pending []session.PendingApproval) (bool, error)
}

// ApproverFunc is a function adapter for Approver.
type ApproverFunc func(ctx context.Context, pending []session.PendingApproval) (bool, error)

// Decide implements Approver.
func (f ApproverFunc) Decide(ctx context.Context, pending []session.PendingApproval) (bool, error) {
	return f(ctx, pending)
}

// AutoApprover approves everything without asking.
type AutoApprover struct {
	Diag io.Writer
}

func (a AutoApprover) Decide(ctx context.Context, pending []session.PendingApproval) (bool, error) {
	if a.Diag != nil {
		fmt.Fprintln(a.Diag, "  Auto-approving tools as per configuration.")
	}
	return true, nil
}

// PromptApprover asks the user once per batch. Prompters that implement
// Asker are asked through Ask.
type PromptApprover struct {
	Prompter Prompter
	Diag     io.Writer
}

func (a PromptApprover) Decide(ctx context.Context, pending []session.PendingApproval) (bool, error) {
	if a.Diag != nil {
		fmt.Fprintln(a.Diag)
	}
	ask := a.Prompter.Prompt
	if asker, ok := a.Prompter.(Asker); ok {
		ask = asker.Ask
	}
	answer, err := ask(ctx, "  "+approvalQuestion)
	if err != nil {
		return false, err
	}
	return ParseDecision(answer), nil
}

// AllowlistApprover approves without asking when every pending tool matches
// one of Patterns. Patterns are doublestar globs over "<server>/<tool>".
// Anything else goes to Fallback.
type AllowlistApprover struct {
	Patterns []string
	Fallback Approver
	Diag     io.Writer
}

func (a AllowlistApprover) Decide(ctx context.Context, pending []session.PendingApproval) (bool, error) {
	if a.allowed(pending) {
		if a.Diag != nil {
			fmt.Fprintln(a.Diag, "  Auto-approving allow-listed tools.")
		}
		return true, nil
	}
	return a.Fallback.Decide(ctx, pending)
}

func (a AllowlistApprover) allowed(pending []session.PendingApproval) bool {
	if len(pending) == 0 {
		return false
	}
	for _, p := range pending {
		if !matchesAny(p.ServerLabel+"/"+p.ToolName, a.Patterns) {
			return false
		}
	}
	return true
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		// Patterns are validated with the config, so errors mean no match.
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// NewApprover builds the approval policy described by cfg.
func NewApprover(cfg *config.Config, prompter Prompter, diag io.Writer) Approver {
	if cfg.AutoApprove {
		return AutoApprover{Diag: diag}
	}
	var approver Approver = PromptApprover{Prompter: prompter, Diag: diag}
	if len(cfg.AutoApproveTools) > 0 {
		approver = AllowlistApprover{Patterns: cfg.AutoApproveTools, Fallback: approver, Diag: diag}
	}
	return approver
}
