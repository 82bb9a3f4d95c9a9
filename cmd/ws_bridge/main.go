package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/m4xw311/foundrychat/errors"
	"github.com/m4xw311/foundrychat/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Frame types sent to the client. Every message the client sends is written
// to the chat process as one line of input.
const (
	frameStdout = "stdout"
	frameStderr = "stderr"
	frameExit   = "exit"
)

type frame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr, logLevel string
	cmd := &cobra.Command{
		Use:   "ws_bridge [flags] [-- command args...]",
		Short: "Serve a terminal chat session over a WebSocket",
		Long: "ws_bridge starts one chat process per WebSocket connection and relays its\n" +
			"stdout and stderr as JSON frames. The command defaults to foundrychat.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"foundrychat"}
			}
			logger := logging.New(logLevel, cmd.ErrOrStderr())
			mux := http.NewServeMux()
			mux.Handle("/ws", newBridge(args, logger))

			fmt.Fprintf(cmd.OutOrStdout(), "WebSocket server running on ws://%s/ws\n", addr)
			return errors.Wrapf(http.ListenAndServe(addr, mux), "server stopped")
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "Address to listen on")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn or error")
	return cmd
}

type bridge struct {
	command  []string
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func newBridge(command []string, logger zerolog.Logger) *bridge {
	return &bridge{
		command: command,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (b *bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	logger := b.logger.With().Str("remote", r.RemoteAddr).Logger()
	logger.Info().Strs("command", b.command).Msg("session started")
	code, err := b.serve(conn, logger)
	if err != nil {
		logger.Error().Err(err).Msg("session failed")
		return
	}
	logger.Info().Int("exit_code", code).Msg("session ended")
}

// serve runs one chat process for conn and returns its exit code. The process
// is killed when the client goes away.
func (b *bridge) serve(conn *websocket.Conn, logger zerolog.Logger) (int, error) {
	cmd := exec.Command(b.command[0], b.command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return 0, errors.Wrapf(err, "error getting stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, errors.Wrapf(err, "error getting stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, errors.Wrapf(err, "error getting stderr")
	}
	if err := cmd.Start(); err != nil {
		return 0, errors.Wrapf(err, "error starting %s", b.command[0])
	}

	out := &frameWriter{conn: conn}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pump(out, frameStdout, stdout)
	}()
	go func() {
		defer wg.Done()
		pump(out, frameStderr, stderr)
	}()

	go func() {
		defer stdin.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Debug().Err(err).Msg("client gone")
				_ = cmd.Process.Kill()
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				logger.Debug().Err(err).Msg("stdin closed")
				return
			}
		}
	}()

	// All reads from the pipes must finish before Wait.
	wg.Wait()
	waitErr := cmd.Wait()
	code := cmd.ProcessState.ExitCode()
	_ = out.send(frameExit, strconv.Itoa(code))
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return code, errors.Wrapf(waitErr, "error waiting for %s", b.command[0])
	}
	return code, nil
}

// frameWriter serializes writes from the output pumps onto one connection.
type frameWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (f *frameWriter) send(kind, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn.WriteJSON(frame{Type: kind, Data: data})
}

// pump forwards r to the client as it arrives. Prompts and streamed replies
// are not newline terminated, so output is not split into lines. After a
// failed write the rest of r is drained so the process never blocks.
func pump(out *frameWriter, kind string, r io.Reader) {
	buf := make([]byte, 4096)
	var pending []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			var chunk []byte
			chunk, pending = splitRunes(append(pending, buf[:n]...))
			if len(chunk) > 0 {
				if werr := out.send(kind, string(chunk)); werr != nil {
					_, _ = io.Copy(io.Discard, r)
					return
				}
			}
		}
		if err != nil {
			if len(pending) > 0 {
				_ = out.send(kind, string(pending))
			}
			return
		}
	}
}

// splitRunes holds back a trailing partial UTF-8 sequence.
func splitRunes(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i], append([]byte(nil), b[i:]...)
			}
			break
		}
	}
	return b, nil
}
