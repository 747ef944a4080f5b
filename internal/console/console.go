package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Session is the slice of session behavior the console drives.
type Session interface {
	StartRecording(ctx context.Context) error
	StopRecording() error
	Transcript() string
	IsConnected() bool
	IsRecording() bool
}

// Console is a line-oriented command loop for driving a dictation session
// from a terminal.
type Console struct {
	session  Session
	log      *slog.Logger
	in       io.Reader
	out      io.Writer
	shutdown func()
}

// New builds a console reading commands from in and writing responses to out.
// shutdown is invoked when the user quits; it may be nil.
func New(session Session, in io.Reader, out io.Writer, shutdown func(), log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{
		session:  session,
		log:      log.With("component", "console"),
		in:       in,
		out:      out,
		shutdown: shutdown,
	}
}

// Run processes commands until quit, EOF or context cancellation.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, "livescribe ready. Commands: start, stop, show, status, quit")

	scanner := bufio.NewScanner(c.in)
	c.prompt()
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.prompt()
			continue
		}

		if quit := c.dispatch(ctx, line); quit {
			return nil
		}
		c.prompt()
	}
	return scanner.Err()
}

func (c *Console) dispatch(ctx context.Context, command string) (quit bool) {
	switch command {
	case "start":
		if err := c.session.StartRecording(ctx); err != nil {
			fmt.Fprintf(c.out, "cannot start: %v\n", err)
			return false
		}
		fmt.Fprintln(c.out, "recording")

	case "stop":
		if err := c.session.StopRecording(); err != nil {
			fmt.Fprintf(c.out, "cannot stop: %v\n", err)
			return false
		}
		fmt.Fprintln(c.out, "stopped")

	case "show":
		transcript := c.session.Transcript()
		if transcript == "" {
			fmt.Fprintln(c.out, "(transcript is empty)")
			return false
		}
		fmt.Fprintln(c.out, transcript)

	case "status":
		fmt.Fprintf(c.out, "connected=%t recording=%t\n",
			c.session.IsConnected(), c.session.IsRecording())

	case "help":
		fmt.Fprintln(c.out, "start  begin recording")
		fmt.Fprintln(c.out, "stop   end recording")
		fmt.Fprintln(c.out, "show   print the transcript")
		fmt.Fprintln(c.out, "status connection and recording state")
		fmt.Fprintln(c.out, "quit   exit")

	case "quit", "exit":
		fmt.Fprintln(c.out, "bye")
		if c.shutdown != nil {
			c.shutdown()
		}
		return true

	default:
		fmt.Fprintf(c.out, "unknown command %q (try help)\n", command)
	}
	return false
}

func (c *Console) prompt() {
	fmt.Fprint(c.out, "> ")
}
