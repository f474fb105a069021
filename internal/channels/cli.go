// Package channels provides runtime.Listener implementations for each supported input channel (terminal and Telegram).
package channels

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/compas-coach/compas/internal/runtime"
	"golang.org/x/term"
)

const (
	defaultReplPrompt    = "you> "
	defaultDispatchQueue = 20
	// CLISessionID keys the terminal conversation history.
	CLISessionID = "cli"
	// Allow queued input to finish when stdin closes before shutting down the dispatcher.
	dispatchDrainTimeout = 5 * time.Second
)

var _ runtime.Listener = (*CLIListener)(nil)

// CLIWriter writes coach responses to terminal output.
type CLIWriter struct {
	out io.Writer
}

// NewCLIWriter creates a CLIWriter over out.
func NewCLIWriter(out io.Writer) *CLIWriter {
	return &CLIWriter{out: out}
}

// WriteMessage writes one coach message.
func (w *CLIWriter) WriteMessage(_ context.Context, text string) error {
	_, err := fmt.Fprintf(w.out, "compas> %s\n\n", text)
	return err
}

// WriteReply writes the reply followed by the ids to rate its suggestions with.
func (w *CLIWriter) WriteReply(ctx context.Context, reply runtime.Reply) error {
	if err := w.WriteMessage(ctx, reply.Text); err != nil {
		return err
	}
	if len(reply.Suggestions) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("  rate later with /feedback <id> success|neutral|fail\n")
	for _, suggestion := range reply.Suggestions {
		_, _ = fmt.Fprintf(&b, "  [%d] %s\n", suggestion.ID, suggestion.Text)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w.out, b.String())
	return err
}

// CLIListener listens for interactive terminal input and dispatches messages.
type CLIListener struct {
	in  io.Reader
	out io.Writer

	rl       *readline.Instance
	fallback *bufio.Reader
}

// NewCLI creates a new CLI listener over stdin/stdout style streams.
func NewCLI(in io.Reader, out io.Writer) *CLIListener {
	return &CLIListener{in: in, out: out}
}

// Listen runs the interactive loop until EOF, /quit, /exit, or fatal read error.
func (c *CLIListener) Listen(ctx context.Context, handler runtime.Handler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	c.ensureInputReady()
	if c.rl != nil {
		defer c.rl.Close()
	}

	if _, err := fmt.Fprintln(c.out, "Compás is listening. Type /help for commands, /quit to stop."); err != nil {
		return err
	}

	writer := NewCLIWriter(c.out)
	dispatchCtx, cancelDispatch := context.WithCancel(ctx)

	dispatcher := runtime.NewDispatcher(handler, defaultDispatchQueue)
	if err := dispatcher.Start(dispatchCtx); err != nil {
		cancelDispatch()
		return err
	}
	defer func() {
		cancelDispatch()
		dispatcher.Wait()
	}()

	inputCh := make(chan inputEvent)
	go c.readInputLoop(ctx, inputCh)

	for {
		select {
		case <-ctx.Done():
			dispatcher.Stop()
			return nil
		case event, ok := <-inputCh:
			if !ok {
				c.drainDispatcher(dispatcher)
				return nil
			}
			if event.err != nil {
				if errors.Is(event.err, io.EOF) {
					c.drainDispatcher(dispatcher)
					return nil
				}
				if errors.Is(event.err, context.Canceled) {
					dispatcher.Stop()
					return nil
				}
				return event.err
			}

			line := strings.TrimSpace(event.line)
			if line == "" {
				continue
			}

			switch strings.ToLower(line) {
			case "/stop", "stop":
				dispatcher.Stop()
				writer.WriteMessage(ctx, "Stopped.")
				continue
			case "/quit", "quit", "/exit", "exit":
				dispatcher.Stop()
				writer.WriteMessage(ctx, "Take care.")
				return nil
			}

			msg := &runtime.Message{Text: line, SessionID: CLISessionID, Channel: "cli"}
			if err := dispatcher.Enqueue(ctx, msg, writer); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}

func (c *CLIListener) drainDispatcher(dispatcher *runtime.Dispatcher) {
	drainCtx, cancel := context.WithTimeout(context.Background(), dispatchDrainTimeout)
	defer cancel()
	if err := dispatcher.WaitUntilIdle(drainCtx); err != nil {
		dispatcher.Stop()
	}
}

func (c *CLIListener) ensureInputReady() {
	if c.rl != nil || c.fallback != nil {
		return
	}
	if rl, err := newReadline(c.in, c.out); err == nil {
		c.rl = rl
		return
	}
	c.fallback = bufio.NewReader(c.in)
}

func (c *CLIListener) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if c.rl != nil {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return "", io.EOF
			}
			return "", err
		}
		return line, nil
	}

	if _, err := fmt.Fprint(c.out, defaultReplPrompt); err != nil {
		return "", err
	}
	line, err := c.fallback.ReadString('\n')
	if err != nil {
		if len(line) > 0 {
			return line, nil
		}
		return "", err
	}
	return line, nil
}

func (c *CLIListener) readInputLoop(ctx context.Context, out chan<- inputEvent) {
	defer close(out)
	for {
		line, err := c.readLine(ctx)
		select {
		case out <- inputEvent{line: line, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

type inputEvent struct {
	line string
	err  error
}

func newReadline(in io.Reader, out io.Writer) (*readline.Instance, error) {
	stdin, ok := in.(io.ReadCloser)
	if !ok {
		return nil, fmt.Errorf("stdin is not read-closer")
	}
	inFile, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(inFile.Fd())) {
		return nil, fmt.Errorf("stdin is not terminal")
	}
	outFile, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(outFile.Fd())) {
		return nil, fmt.Errorf("stdout is not terminal")
	}

	return readline.NewEx(&readline.Config{
		Prompt:          defaultReplPrompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".compas_history"),
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           stdin,
		Stdout:          out,
		Stderr:          out,
	})
}
