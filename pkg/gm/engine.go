// StudioGM - AI narrated game studio simulation
// License: MIT
//
// Copyright (c) 2026 StudioGM contributors

// Package gm runs game master turns: it assembles prompts from the live
// save, calls the text generator, and commits the parsed response to the
// game state and memory.
package gm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/dotsetgreg/studiogm/pkg/bus"
	"github.com/dotsetgreg/studiogm/pkg/commands"
	"github.com/dotsetgreg/studiogm/pkg/config"
	"github.com/dotsetgreg/studiogm/pkg/gamestate"
	"github.com/dotsetgreg/studiogm/pkg/logger"
	"github.com/dotsetgreg/studiogm/pkg/memory"
	"github.com/dotsetgreg/studiogm/pkg/providers"
	"github.com/dotsetgreg/studiogm/pkg/response"
)

var (
	ErrBusy       = errors.New("a turn is already in progress")
	ErrCancelled  = errors.New("turn cancelled")
	ErrEmptyInput = errors.New("player input is empty")
	ErrNoState    = errors.New("no game loaded")
)

const (
	openingMidTerm     = "Company founded, day one"
	recentEventsWindow = 3
)

var openingOptions = []string{
	"view the office",
	"plan the first game",
	"recruit staff",
	"research the market",
	"free input",
}

// Phase is where the engine is within a turn.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseBuilding
	PhaseGenerating
	PhaseParsing
	PhaseApplying
	PhaseCommitting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseBuilding:
		return "building"
	case PhaseGenerating:
		return "generating"
	case PhaseParsing:
		return "parsing"
	case PhaseApplying:
		return "applying"
	case PhaseCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

// Settings tune generation and prompt assembly.
type Settings struct {
	Model              string
	MaxTokens          int
	Temperature        *float64
	Stream             bool
	Timeout            time.Duration
	HistoryWindow      int
	StateHistoryWindow int
	ShortTermCapacity  int
	ExtraSystemPrompt  string
}

func DefaultSettings() Settings {
	return Settings{
		HistoryWindow:      5,
		StateHistoryWindow: 3,
		ShortTermCapacity:  memory.DefaultShortTermCapacity,
		Timeout:            2 * time.Minute,
	}
}

// SettingsFromConfig maps the gm and memory config sections.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	if cfg == nil {
		return s
	}
	s.Model = strings.TrimSpace(cfg.GM.Model)
	s.MaxTokens = cfg.GM.MaxTokens
	if cfg.GM.Temperature > 0 {
		s.Temperature = providers.Float64(cfg.GM.Temperature)
	}
	s.Stream = cfg.GM.Streaming
	if cfg.GM.TimeoutSeconds > 0 {
		s.Timeout = time.Duration(cfg.GM.TimeoutSeconds) * time.Second
	}
	if cfg.GM.HistoryWindow > 0 {
		s.HistoryWindow = cfg.GM.HistoryWindow
	}
	if cfg.GM.StateHistoryWindow > 0 {
		s.StateHistoryWindow = cfg.GM.StateHistoryWindow
	}
	if cfg.Memory.ShortTermCapacity > 0 {
		s.ShortTermCapacity = cfg.Memory.ShortTermCapacity
	}
	s.ExtraSystemPrompt = cfg.GM.ExtraSystemPrompt
	return s
}

// TurnOptions override settings for a single turn.
type TurnOptions struct {
	Stream            *bool
	OnChunk           func(string)
	ExtraSystemPrompt string
}

// TurnResult is the outcome of one turn. When OK is false, Error is a
// single human readable reason and nothing was committed.
type TurnResult struct {
	OK       bool
	TurnID   string
	Response response.Response
	Changes  commands.ChangeLog
	Raw      string
	Degraded bool
	Summary  memory.SummaryResult
	Error    string
	Err      error
}

func failed(id string, err error) TurnResult {
	msg := err.Error()
	var genErr *providers.GenerationError
	if errors.As(err, &genErr) {
		msg = genErr.UserMessage()
	}
	return TurnResult{TurnID: id, Error: msg, Err: err}
}

type Option func(*Engine)

// WithIndex enables retrieval and automatic indexing.
func WithIndex(x *memory.Index) Option {
	return func(e *Engine) { e.index = x }
}

func WithInterpreter(in *commands.Interpreter) Option {
	return func(e *Engine) {
		if in != nil {
			e.interp = in
		}
	}
}

func WithPrompts(lib Library) Option {
	return func(e *Engine) { e.prompts = lib }
}

func WithSettings(s Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// WithEvents publishes phase changes and turn outcomes to b.
func WithEvents(b *bus.EventBus) Option {
	return func(e *Engine) { e.events = b }
}

// WithClock sets the time source for turn logging.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine owns one loaded save and runs at most one turn at a time. A second
// turn started while one is in flight is rejected with ErrBusy, not queued.
type Engine struct {
	gen      providers.TextGenerator
	index    *memory.Index
	interp   *commands.Interpreter
	prompts  Library
	settings Settings
	now      func() time.Time
	sem      *semaphore.Weighted
	events   *bus.EventBus

	mu    sync.Mutex
	state *gamestate.GameState
	phase Phase
	turn  *turn
}

type turn struct {
	id      string
	ctx     context.Context
	release func()
}

func New(gen providers.TextGenerator, state *gamestate.GameState, opts ...Option) (*Engine, error) {
	if gen == nil {
		return nil, errors.New("gm: text generator is required")
	}
	if state == nil {
		return nil, ErrNoState
	}
	e := &Engine{
		gen:      gen,
		interp:   commands.NewInterpreter(),
		prompts:  DefaultLibrary(),
		settings: DefaultSettings(),
		now:      time.Now,
		sem:      semaphore.NewWeighted(1),
		state:    state.Clone(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// State returns a copy of the live game state.
func (e *Engine) State() *gamestate.GameState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Busy reports whether a turn is in flight.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turn != nil
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) Prompts() Library { return e.prompts }

// Cancel aborts the in-flight turn and frees the engine for a new one. A turn
// that already reached commit is not cancelled. It reports whether a turn
// was cancelled.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	t := e.turn
	if t == nil || e.phase == PhaseCommitting {
		e.mu.Unlock()
		return false
	}
	e.turn = nil
	e.phase = PhaseIdle
	e.mu.Unlock()

	t.release()
	logger.InfoCF("gm", "Turn cancelled", map[string]interface{}{"turn_id": t.id})
	return true
}

// begin takes the single-flight guard and snapshots the state.
func (e *Engine) begin(parent context.Context) (*turn, *gamestate.GameState, error) {
	if !e.sem.TryAcquire(1) {
		return nil, nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(parent)
	t := &turn{id: uuid.NewString(), ctx: ctx}
	t.release = sync.OnceFunc(func() {
		cancel()
		e.sem.Release(1)
	})

	e.mu.Lock()
	e.turn = t
	e.phase = PhaseBuilding
	snapshot := e.state.Clone()
	e.mu.Unlock()
	return t, snapshot, nil
}

func (e *Engine) finish(t *turn) {
	e.mu.Lock()
	if e.turn == t {
		e.turn = nil
		e.phase = PhaseIdle
	}
	e.mu.Unlock()
	t.release()
}

func (e *Engine) setPhase(t *turn, p Phase) {
	e.mu.Lock()
	current := e.turn == t
	if current {
		e.phase = p
	}
	e.mu.Unlock()
	if current {
		e.emit(bus.Event{TurnID: t.id, Kind: bus.KindPhase, Phase: p.String()})
	}
}

func (e *Engine) emit(ev bus.Event) {
	if e.events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	e.events.Publish(ev)
}

// emitResult publishes the outcome of a turn that got past the single-flight
// guard.
func (e *Engine) emitResult(res TurnResult) TurnResult {
	if res.TurnID == "" {
		return res
	}
	ev := bus.Event{TurnID: res.TurnID, Kind: bus.KindCommitted}
	switch {
	case errors.Is(res.Err, ErrCancelled):
		ev.Kind = bus.KindCancelled
	case !res.OK:
		ev.Kind = bus.KindFailed
		ev.Error = res.Error
	}
	e.emit(ev)
	return res
}

// commit publishes next unless the turn was cancelled first.
func (e *Engine) commit(t *turn, next *gamestate.GameState) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.turn != t || t.ctx.Err() != nil {
		return false
	}
	e.phase = PhaseCommitting
	e.state = next
	return true
}

func (e *Engine) generate(t *turn, msgs []providers.Message, opts TurnOptions) (string, error) {
	stream := e.settings.Stream
	if opts.Stream != nil {
		stream = *opts.Stream
	}
	return e.gen.Generate(t.ctx, msgs, providers.GenerateOptions{
		Model:       e.settings.Model,
		MaxTokens:   e.settings.MaxTokens,
		Temperature: e.settings.Temperature,
		Stream:      stream,
		OnChunk:     opts.OnChunk,
		Timeout:     e.settings.Timeout,
	})
}

// cancelled maps a generation error seen after Cancel or caller
// cancellation onto ErrCancelled.
func (e *Engine) cancelled(t *turn, err error) error {
	if t.ctx.Err() != nil && errors.Is(t.ctx.Err(), context.Canceled) {
		return ErrCancelled
	}
	if errors.Is(err, providers.ErrCancelled) {
		return ErrCancelled
	}
	return err
}

// ProcessPlayerAction runs one player turn.
func (e *Engine) ProcessPlayerAction(ctx context.Context, input string, opts TurnOptions) TurnResult {
	return e.emitResult(e.playerTurn(ctx, input, opts))
}

func (e *Engine) playerTurn(ctx context.Context, input string, opts TurnOptions) TurnResult {
	input = strings.TrimSpace(input)
	if input == "" {
		return failed("", ErrEmptyInput)
	}
	t, snapshot, err := e.begin(ctx)
	if err != nil {
		logger.WarnC("gm", "Rejected turn: another turn is in progress")
		return failed("", err)
	}
	defer e.finish(t)

	started := e.now()
	retrieval := e.retrieve(t.ctx, snapshot, input)
	msgs := e.turnMessages(snapshot, input, retrieval, opts.ExtraSystemPrompt)

	e.setPhase(t, PhaseGenerating)
	raw, err := e.generate(t, msgs, opts)
	if err != nil {
		err = e.cancelled(t, err)
		if errors.Is(err, ErrCancelled) {
			return failed(t.id, err)
		}
		logger.ErrorCF("gm", "Generation failed", map[string]interface{}{
			"turn_id": t.id,
			"error":   err.Error(),
			"kind":    string(providers.KindOf(err)),
		})
		return failed(t.id, err)
	}

	e.setPhase(t, PhaseParsing)
	resp, degraded := parseOrFallback(raw, "", nil)

	e.setPhase(t, PhaseApplying)
	next, changes, err := snapshot.Apply(e.interp, resp.Commands)
	if err != nil {
		return failed(t.id, err)
	}
	label := next.TimeLabel()
	next.History = append(next.History,
		gamestate.NewPlayerMessage(input, label),
		gamestate.NewGMMessage(resp.Text, label, resp.ActionOptions, changes, input),
	)
	midTerm := strings.TrimSpace(resp.MidTermMemory)
	if midTerm != "" {
		next.Memory.Append(midTerm, label, e.settings.ShortTermCapacity)
	}

	if !e.commit(t, next) {
		return failed(t.id, ErrCancelled)
	}

	// Memory writes after commit never fail the turn and are not cut short by
	// the caller's cancellation.
	bg := context.WithoutCancel(t.ctx)
	if midTerm != "" {
		e.remember(bg, midTerm, memory.ImportancePlayerAction)
	}
	summary := e.summarize(bg, next)

	logger.InfoCF("gm", "Turn committed", map[string]interface{}{
		"turn_id":     t.id,
		"changes":     changes.Len(),
		"skipped":     len(changes.Skipped),
		"degraded":    degraded,
		"summarized":  summary.Triggered,
		"duration_ms": e.now().Sub(started).Milliseconds(),
	})
	return TurnResult{
		OK:       true,
		TurnID:   t.id,
		Response: resp,
		Changes:  changes,
		Raw:      raw,
		Degraded: degraded,
		Summary:  summary,
	}
}

// GenerateOpening narrates the first day of a new company. It records no
// player message and does not trigger summarization.
func (e *Engine) GenerateOpening(ctx context.Context, opts TurnOptions) TurnResult {
	return e.emitResult(e.opening(ctx, opts))
}

func (e *Engine) opening(ctx context.Context, opts TurnOptions) TurnResult {
	t, snapshot, err := e.begin(ctx)
	if err != nil {
		return failed("", err)
	}
	defer e.finish(t)

	msgs := e.openingMessages(snapshot, opts.ExtraSystemPrompt)

	e.setPhase(t, PhaseGenerating)
	raw, err := e.generate(t, msgs, opts)
	if err != nil {
		err = e.cancelled(t, err)
		if !errors.Is(err, ErrCancelled) {
			logger.ErrorCF("gm", "Opening generation failed", map[string]interface{}{
				"turn_id": t.id,
				"error":   err.Error(),
			})
		}
		return failed(t.id, err)
	}

	e.setPhase(t, PhaseParsing)
	resp, degraded := parseOrFallback(raw, openingMidTerm, openingOptions)

	e.setPhase(t, PhaseApplying)
	next, changes, err := snapshot.Apply(e.interp, resp.Commands)
	if err != nil {
		return failed(t.id, err)
	}
	label := next.TimeLabel()
	next.History = append(next.History,
		gamestate.NewGMMessage(resp.Text, label, resp.ActionOptions, changes, ""))
	midTerm := strings.TrimSpace(resp.MidTermMemory)
	if midTerm != "" {
		next.Memory.Append(midTerm, label, e.settings.ShortTermCapacity)
	}

	if !e.commit(t, next) {
		return failed(t.id, ErrCancelled)
	}
	if midTerm != "" {
		e.remember(context.WithoutCancel(t.ctx), midTerm, memory.ImportanceOpening)
	}

	logger.InfoCF("gm", "Opening committed", map[string]interface{}{
		"turn_id":  t.id,
		"changes":  changes.Len(),
		"degraded": degraded,
	})
	return TurnResult{
		OK:       true,
		TurnID:   t.id,
		Response: resp,
		Changes:  changes,
		Raw:      raw,
		Degraded: degraded,
	}
}

func parseOrFallback(raw, midTerm string, options []string) (response.Response, bool) {
	resp, err := response.Parse(raw)
	if err == nil {
		return resp, false
	}
	logger.WarnCF("gm", "Response parse failed, using raw text", map[string]interface{}{
		"error": err.Error(),
		"size":  len(raw),
	})
	return response.Fallback(raw, midTerm, options), true
}

// retrieve searches the vector index with the input and the latest
// short-term events. Failures only disable retrieval for this turn.
func (e *Engine) retrieve(ctx context.Context, gs *gamestate.GameState, input string) string {
	if e.index == nil || !e.index.Enabled() {
		return ""
	}
	recent := gs.Memory.ShortTerm
	if len(recent) > recentEventsWindow {
		recent = recent[len(recent)-recentEventsWindow:]
	}
	results, err := e.index.Search(ctx, input, &memory.SearchContext{RecentEvents: recent})
	if err != nil {
		logger.WarnCF("gm", "Memory retrieval failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	return memory.FormatForPrompt(results, e.prompts.RetrievalHeader)
}

func (e *Engine) remember(ctx context.Context, content string, importance int) {
	if e.index == nil || !e.index.CanAutoIndex() {
		return
	}
	if _, err := e.index.AddMemory(ctx, content, importance); err != nil {
		logger.WarnCF("gm", "Failed to index memory", map[string]interface{}{"error": err.Error()})
	}
}

// summarize runs the mid-term check on the committed state and promotes the
// result into the live tiers.
func (e *Engine) summarize(ctx context.Context, committed *gamestate.GameState) memory.SummaryResult {
	if e.index == nil {
		return memory.SummaryResult{}
	}
	midTerm := append([]string(nil), committed.Memory.MidTerm...)
	res := e.index.CheckAndSummarize(ctx, midTerm)
	if !res.Triggered {
		return res
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != committed {
		logger.WarnC("gm", "State replaced during summarization, dropping promotion")
		return memory.SummaryResult{}
	}
	next := e.state.Clone()
	next.Memory.Promote(res.ConsumedCount, res.Summaries)
	e.state = next
	return res
}
