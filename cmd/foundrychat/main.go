package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/m4xw311/foundrychat/agent"
	"github.com/m4xw311/foundrychat/agent/terminal"
	"github.com/m4xw311/foundrychat/config"
	"github.com/m4xw311/foundrychat/errors"
	"github.com/m4xw311/foundrychat/llm"
	"github.com/m4xw311/foundrychat/logging"
	"github.com/m4xw311/foundrychat/session"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type flags struct {
	endpoint         string
	conversation     string
	agentName        string
	stream           bool
	autoApprove      bool
	autoApproveTools []string
	labelOnCreated   bool
	transport        string
	logLevel         string
	envFile          string
	historyFile      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "foundrychat [prompt...]",
		Short: "Chat with a hosted agent from the terminal",
		Long: "foundrychat opens a conversation with a hosted agent and relays each turn.\n" +
			"Tool calls that need consent are announced and answered before the next prompt.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd, f, strings.Join(args, " "))
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "An error occurred: %+v\n", err)
			}
			return err
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.endpoint, "endpoint", "", "Project endpoint (PROJECT_ENDPOINT)")
	fl.StringVarP(&f.conversation, "conversation", "c", "", "Resume this conversation instead of creating one (CONVERSATION_ID)")
	fl.StringVarP(&f.agentName, "agent", "a", "", "Name of the agent to talk to (AGENT_NAME)")
	fl.BoolVarP(&f.stream, "stream", "s", false, "Stream replies as they are generated (ENABLE_STREAM_RESPONSE)")
	fl.BoolVar(&f.autoApprove, "auto-approve", false, "Approve every tool call without asking (ENABLE_MCPTOOL_AUTO_APPROVAL)")
	fl.StringSliceVar(&f.autoApproveTools, "auto-approve-tool", nil, "Approve tool calls matching <server>/<tool> glob without asking; repeatable")
	fl.BoolVar(&f.labelOnCreated, "label-on-created", false, "Print the agent label as soon as a streamed reply starts")
	fl.StringVar(&f.transport, "transport", "", "Transport: 'responses' or 'mock'")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level: trace, debug, info, warn or error")
	fl.StringVar(&f.envFile, "env-file", ".env", "Environment file to load")
	fl.StringVar(&f.historyFile, "history-file", "", "File to keep prompt history in")
	return cmd
}

// applyFlags overrides configuration with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("endpoint") {
		cfg.Endpoint = f.endpoint
	}
	if changed("conversation") {
		cfg.ConversationID = f.conversation
	}
	if changed("agent") {
		cfg.AgentName = f.agentName
	}
	if changed("stream") {
		cfg.Stream = f.stream
	}
	if changed("auto-approve") {
		cfg.AutoApprove = f.autoApprove
	}
	if changed("auto-approve-tool") {
		cfg.AutoApproveTools = f.autoApproveTools
	}
	if changed("label-on-created") {
		cfg.LabelOnCreated = f.labelOnCreated
	}
	if changed("transport") {
		cfg.Transport = f.transport
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("history-file") {
		cfg.HistoryFile = f.historyFile
	}
}

func run(cmd *cobra.Command, f *flags, initialPrompt string) error {
	cfg, err := config.LoadConfig(f.envFile)
	if err != nil {
		return errors.Wrapf(err, "error loading configuration")
	}
	applyFlags(cmd, f, cfg)
	if err := cfg.Validate(); err != nil {
		return errors.Wrapf(err, "invalid configuration")
	}

	out, diag := cmd.OutOrStdout(), cmd.ErrOrStderr()
	logger := logging.New(cfg.LogLevel, diag)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	t, err := newTransport(cfg, logger)
	if err != nil {
		return err
	}
	// The service's name for the agent labels the replies.
	agentName, err := t.GetAgent(ctx, cfg.AgentName)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrapf(err, "could not find agent '%s'", cfg.AgentName)
	}
	cfg.AgentName = agentName

	conversationID, err := llm.OpenConversation(ctx, t, cfg.ConversationID)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	logger.Debug().Str("conversation", conversationID).Str("agent", cfg.AgentName).Msg("conversation ready")

	prompter, err := terminal.NewPrompter(cmd.InOrStdin(), diag, cfg.HistoryFile)
	if err != nil {
		return err
	}
	defer prompter.Close()

	a, err := agent.New(agent.Options{
		Config:   cfg,
		Client:   t,
		Prompter: prompter,
		Out:      out,
		Diag:     diag,
		Logger:   logger,
	})
	if err != nil {
		return errors.Wrapf(err, "error initializing agent")
	}
	return a.Run(ctx, session.New(conversationID), initialPrompt)
}

type transport interface {
	llm.Client
	llm.Conversations
	llm.Agents
}

func newTransport(cfg *config.Config, logger zerolog.Logger) (transport, error) {
	switch cfg.Transport {
	case config.TransportMock:
		mock := llm.NewMockClient()
		mock.AddAgent(cfg.AgentName)
		if cfg.ConversationID != "" {
			mock.AddConversation(cfg.ConversationID)
		}
		return mock, nil
	default:
		client, err := llm.NewResponsesClient(llm.ResponsesOptions{
			Endpoint:   cfg.Endpoint,
			APIKey:     cfg.APIKey,
			APIVersion: cfg.APIVersion,
			Logger:     logger,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "error initializing transport")
		}
		return client, nil
	}
}
