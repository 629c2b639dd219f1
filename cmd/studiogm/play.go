package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/dotsetgreg/studiogm/pkg/bus"
	"github.com/dotsetgreg/studiogm/pkg/commands"
	"github.com/dotsetgreg/studiogm/pkg/gamestate"
	"github.com/dotsetgreg/studiogm/pkg/gm"
)

var errQuit = errors.New("quit")

type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

type readlineReader struct{ rl *readline.Instance }

func (r readlineReader) ReadLine() (string, error) {
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return "", errQuit
	}
	return line, err
}

func (r readlineReader) Close() error { return r.rl.Close() }

type simpleReader struct {
	out    io.Writer
	prompt string
	br     *bufio.Reader
}

func (r simpleReader) ReadLine() (string, error) {
	fmt.Fprint(r.out, r.prompt)
	line, err := r.br.ReadString('\n')
	if errors.Is(err, io.EOF) {
		if strings.TrimSpace(line) != "" {
			return line, nil
		}
		return "", errQuit
	}
	return line, err
}

func (r simpleReader) Close() error { return nil }

func newLineReader(out io.Writer, company string) lineReader {
	prompt := fmt.Sprintf("%s > ", company)
	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(home, ".studiogm", "history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(out, "Error initializing readline: %v\n", err)
		fmt.Fprintln(out, "Falling back to simple input mode...")
		return simpleReader{out: out, prompt: prompt, br: bufio.NewReader(os.Stdin)}
	}
	return readlineReader{rl: rl}
}

// session is one interactive game. options are the choices offered by the
// last committed turn, selectable by number.
type session struct {
	out     io.Writer
	eng     *gm.Engine
	persist func(context.Context, *gamestate.GameState) error
	options []string
	showRaw bool
	events  *bus.EventBus
}

func newSession(out io.Writer, eng *gm.Engine, persist func(context.Context, *gamestate.GameState) error) *session {
	s := &session{out: out, eng: eng, persist: persist}
	if gs := eng.State(); len(gs.History) > 0 {
		s.options = gs.History[len(gs.History)-1].ActionOptions
	}
	return s
}

type inputKind int

const (
	inputSkip inputKind = iota
	inputAction
	inputStatus
	inputHelp
	inputQuit
)

// resolve maps a typed line to an action. A bare number picks one of the
// offered options.
func (s *session) resolve(line string) (inputKind, string) {
	input := strings.TrimSpace(line)
	switch strings.ToLower(input) {
	case "":
		return inputSkip, ""
	case "exit", "quit", "/quit":
		return inputQuit, ""
	case "/status":
		return inputStatus, ""
	case "/help", "?":
		return inputHelp, ""
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(s.options) {
		return inputAction, s.options[n-1]
	}
	return inputAction, input
}

func (s *session) run(ctx context.Context, in lineReader) error {
	defer in.Close()
	s.printOptions()
	for {
		line, err := in.ReadLine()
		if errors.Is(err, errQuit) {
			fmt.Fprintln(s.out, "\nGoodbye!")
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "Error reading input: %v\n", err)
			continue
		}
		kind, action := s.resolve(line)
		switch kind {
		case inputSkip:
			continue
		case inputQuit:
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		case inputStatus:
			fmt.Fprintln(s.out, s.eng.Prompts().StateSummary(s.eng.State()))
			continue
		case inputHelp:
			fmt.Fprintln(s.out, "Type an action, or a number to pick an option. /status shows the company, exit quits. Ctrl+C cancels a running turn.")
			continue
		}
		if action != strings.TrimSpace(line) {
			fmt.Fprintf(s.out, "> %s\n", action)
		}
		s.turn(ctx, func(turnCtx context.Context, opts gm.TurnOptions) gm.TurnResult {
			return s.eng.ProcessPlayerAction(turnCtx, action, opts)
		})
	}
}

// turn runs one engine call with Ctrl+C bound to cancellation and saves the
// committed state.
func (s *session) turn(ctx context.Context, call func(context.Context, gm.TurnOptions) gm.TurnResult) gm.TurnResult {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	opts := gm.TurnOptions{}
	var res gm.TurnResult
	switch {
	case s.showRaw:
		opts.OnChunk = func(chunk string) { fmt.Fprint(s.out, chunk) }
		res = call(turnCtx, opts)
	case s.events != nil:
		watchCtx, stopWatch := context.WithCancel(turnCtx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.watch(watchCtx)
		}()
		res = call(turnCtx, opts)
		stopWatch()
		<-done
		s.events.Drain()
	default:
		fmt.Fprintln(s.out, "...")
		res = call(turnCtx, opts)
	}
	if s.showRaw {
		fmt.Fprintln(s.out)
	}
	if !res.OK {
		if errors.Is(res.Err, gm.ErrCancelled) {
			fmt.Fprintln(s.out, "Turn cancelled. Nothing was changed.")
		} else {
			fmt.Fprintf(s.out, "Turn failed: %s\n", res.Error)
		}
		return res
	}

	printResult(s.out, res)
	s.options = res.Response.ActionOptions
	s.printOptions()
	if err := s.persist(ctx, s.eng.State()); err != nil {
		fmt.Fprintf(s.out, "Warning: could not save game: %v\n", err)
	}
	return res
}

// watch prints phase progress until the turn ends or ctx is done.
func (s *session) watch(ctx context.Context) {
	for {
		ev, ok := s.events.Consume(ctx)
		if !ok || ev.Terminal() {
			return
		}
		fmt.Fprintf(s.out, "  %s...\n", ev.Phase)
	}
}

func (s *session) printOptions() {
	if len(s.options) == 0 {
		return
	}
	fmt.Fprintln(s.out)
	for i, opt := range s.options {
		fmt.Fprintf(s.out, "  %d. %s\n", i+1, opt)
	}
	fmt.Fprintln(s.out)
}

func printResult(w io.Writer, res gm.TurnResult) {
	fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(res.Response.Text))
	if res.Degraded {
		fmt.Fprintln(w, "(the game master's reply could not be read as structured data; no state changes were applied)")
	}
	if res.Changes.Len() > 0 {
		fmt.Fprintln(w)
		for _, c := range res.Changes.Changes {
			fmt.Fprintf(w, "  * %s\n", commands.FormatChange(c))
		}
	}
	for _, sk := range res.Changes.Skipped {
		fmt.Fprintf(w, "  ! skipped %s %s: %s\n", sk.Action, sk.Key, sk.Reason)
	}
	if res.Summary.Triggered {
		fmt.Fprintf(w, "  (condensed %d memories)\n", res.Summary.ConsumedCount)
	}
}
