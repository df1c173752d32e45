// ABOUTME: Streaming turn processor: appends the user message, pulls events and applies them to the store
// ABOUTME: Hands the workflow range of the stream to a workflow engine and settles every turn exactly once

package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/turnstream/internal/event"
	"github.com/2389/turnstream/internal/messaging"
	"github.com/2389/turnstream/internal/metrics"
	"github.com/2389/turnstream/internal/mock"
	"github.com/2389/turnstream/internal/workflow"
)

// recordTimeout bounds each recorder call. Recording uses its own context so
// a cancelled turn still records how it ended.
const recordTimeout = 5 * time.Second

// WorkflowEngine folds the workflow range of a stream into snapshots.
// A new engine is created for every start_of_workflow.
type WorkflowEngine interface {
	Start(ev event.Event) (messaging.WorkflowSnapshot, error)
	Run(ctx context.Context, stream event.Stream) iter.Seq2[messaging.WorkflowSnapshot, error]
	// FinalState returns the messages reported when the workflow ended,
	// or nil if it did not report any.
	FinalState() []messaging.ChatMessage
}

// Params are the per-turn settings.
type Params struct {
	DeepThinkingMode     bool
	SearchBeforePlanning bool
	SessionID            string
}

// Service runs turns against a Store.
type Service struct {
	store      *Store
	source     event.Source
	mockSource event.Source
	mockMode   bool
	newEngine  func() WorkflowEngine
	recorder   Recorder
	metrics    *metrics.Collectors
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Nil keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSource sets the live event source.
func WithSource(src event.Source) Option {
	return func(s *Service) { s.source = src }
}

// WithMockSource sets the source used when mock mode is requested.
func WithMockSource(src event.Source) Option {
	return func(s *Service) { s.mockSource = src }
}

// WithMockMode routes every turn to the mock source.
func WithMockMode(on bool) Option {
	return func(s *Service) { s.mockMode = on }
}

// WithWorkflowEngine replaces the workflow engine factory.
func WithWorkflowEngine(factory func() WorkflowEngine) Option {
	return func(s *Service) { s.newEngine = factory }
}

// WithRecorder records every turn and event.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithMetrics records turn and event metrics.
func WithMetrics(c *metrics.Collectors) Option {
	return func(s *Service) { s.metrics = c }
}

// New creates a Service over store.
func New(store *Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "conversation")
	if s.newEngine == nil {
		logger := s.logger
		s.newEngine = func() WorkflowEngine { return NewWorkflowEngine(logger) }
	}
	return s
}

// Store returns the store the service writes to.
func (s *Service) Store() *Store {
	return s.store
}

// AddMessage appends msg outside of a turn.
func (s *Service) AddMessage(msg messaging.Message) (messaging.Message, error) {
	return s.store.AppendMessage(msg)
}

// UpdateMessage replaces the message with patch.ID; false if it is absent.
func (s *Service) UpdateMessage(patch messaging.Patch) bool {
	return s.store.ReplaceMessageByID(patch)
}

// ClearMessages removes every message.
func (s *Service) ClearMessages() {
	s.store.ClearMessages()
}

// SetResponding overrides the responding flag.
func (s *Service) SetResponding(responding bool) {
	s.store.SetResponding(responding)
}

// SendMessage runs one turn for msg. It returns the message when the turn
// completes, (nil, nil) when ctx was cancelled mid-turn, and the source or
// engine error unchanged when the turn failed.
func (s *Service) SendMessage(ctx context.Context, msg messaging.Message, p Params) (*messaging.Message, error) {
	res := s.RunTurn(ctx, msg, p)
	switch res.Outcome {
	case Completed:
		return res.Message, nil
	case Cancelled:
		return nil, nil
	case Failed:
		return nil, res.Err
	default:
		return nil, fmt.Errorf("turn settled with unknown outcome %d", res.Outcome)
	}
}

// RunTurn runs one turn for msg and reports how it settled.
//
// The turn fails before any side effect if p.SessionID is empty or another
// turn is running. Otherwise responding is raised, msg is appended, and
// events are applied one at a time until the stream ends, errors or ctx is
// cancelled. Responding is cleared on every exit path.
func (s *Service) RunTurn(ctx context.Context, msg messaging.Message, p Params) Result {
	if p.SessionID == "" {
		return Result{Outcome: Failed, Err: ErrMissingSession}
	}
	if !s.store.BeginTurn() {
		return Result{Outcome: Failed, Err: ErrTurnInProgress}
	}
	defer s.store.EndTurn()

	turn := TurnInfo{
		ID:          uuid.New().String(),
		SessionID:   p.SessionID,
		UserMessage: textOf(msg),
		StartedAt:   time.Now(),
	}
	logger := s.logger.With("turn_id", turn.ID, "session_id", p.SessionID)
	s.record(logger, func(ctx context.Context) error { return s.recorder.BeginTurn(ctx, turn) })

	err := s.process(ctx, logger, turn.ID, msg, p)
	outcome := classify(err)

	s.record(logger, func(ctx context.Context) error {
		return s.recorder.EndTurn(ctx, turn.ID, outcome, err)
	})
	s.metrics.ObserveTurn(outcome.String(), time.Since(turn.StartedAt))

	switch outcome {
	case Completed:
		logger.Debug("turn completed", "duration", time.Since(turn.StartedAt))
		out := msg
		return Result{Outcome: Completed, Message: &out}
	case Cancelled:
		logger.Info("turn cancelled")
		return Result{Outcome: Cancelled}
	default:
		logger.Warn("turn failed", "error", err)
		return Result{Outcome: Failed, Err: err}
	}
}

// process appends msg, opens the source and applies events until the end of
// the stream.
func (s *Service) process(ctx context.Context, logger *slog.Logger, turnID string, msg messaging.Message, p Params) error {
	if _, err := s.store.AppendMessage(msg); err != nil {
		return err
	}

	src, err := s.selectSource(ctx)
	if err != nil {
		return err
	}

	req := event.Request{
		Message: msg.Clone(),
		History: messaging.CloneChatMessages(s.store.Get().State.Messages),
		Options: event.Options{
			DeepThinkingMode:     p.DeepThinkingMode,
			SearchBeforePlanning: p.SearchBeforePlanning,
			ConversationID:       p.SessionID,
		},
	}
	stream, err := src.Open(ctx, req)
	if err != nil {
		return err
	}

	cur := event.NewCursor(&observedStream{
		Stream:  stream,
		service: s,
		logger:  logger,
		turnID:  turnID,
	})
	defer func() {
		if cerr := cur.Close(); cerr != nil {
			logger.Debug("closing stream", "error", cerr)
		}
	}()

	t := &turnState{service: s, logger: logger, cursor: cur}
	for {
		ev, err := cur.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := t.dispatch(ctx, ev); err != nil {
			return err
		}
	}
}

func (s *Service) selectSource(ctx context.Context) (event.Source, error) {
	if s.mockMode || mock.Requested(ctx) {
		if s.mockSource == nil {
			return nil, fmt.Errorf("%w: mock mode requested", ErrNoSource)
		}
		return s.mockSource, nil
	}
	if s.source == nil {
		return nil, ErrNoSource
	}
	return s.source, nil
}

// record calls fn with a bounded context detached from the turn. Failures
// are logged only.
func (s *Service) record(logger *slog.Logger, fn func(ctx context.Context) error) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Error("failed to record turn", "error", err)
	}
}

// turnState is the processor state of one turn.
type turnState struct {
	service *Service
	logger  *slog.Logger
	cursor  *event.Cursor

	// active is the text message receiving message deltas, if any.
	active *activeText
}

type activeText struct {
	id   string
	body string
}

func (t *turnState) dispatch(ctx context.Context, ev event.Event) error {
	switch ev.Type {
	case event.TypeStartOfAgent:
		return t.startAgent(ev)
	case event.TypeMessage:
		return t.appendDelta(ev)
	case event.TypeEndOfAgent:
		t.active = nil
		return nil
	case event.TypeStartOfWorkflow:
		return t.runWorkflow(ctx, ev)
	default:
		t.drop(ev, "unhandled_type")
		return nil
	}
}

func (t *turnState) startAgent(ev event.Event) error {
	p, err := event.Decode[event.AgentStart](ev)
	if err != nil {
		return err
	}
	// A rejected start still ends the previous agent: its deltas must not
	// land in the earlier message.
	if p.AgentID == "" {
		t.active = nil
		t.drop(ev, "missing_agent_id")
		return nil
	}
	msg := messaging.NewTextMessage(p.AgentID, messaging.RoleAssistant, "")
	if _, err := t.service.store.AppendMessage(msg); err != nil {
		if errors.Is(err, ErrDuplicateMessage) {
			t.active = nil
			t.drop(ev, "duplicate_agent")
			return nil
		}
		return err
	}
	t.active = &activeText{id: p.AgentID}
	return nil
}

func (t *turnState) appendDelta(ev event.Event) error {
	if t.active == nil {
		t.drop(ev, "no_active_message")
		return nil
	}
	p, err := event.Decode[event.MessageDelta](ev)
	if err != nil {
		return err
	}
	t.active.body += p.Delta.Content
	t.service.store.ReplaceMessageByID(messaging.Patch{
		ID:      t.active.id,
		Content: messaging.TextContent{Body: t.active.body},
	})
	return nil
}

// runWorkflow lends the cursor to a fresh engine for the rest of the
// workflow range and mirrors every snapshot into the store.
func (t *turnState) runWorkflow(ctx context.Context, ev event.Event) error {
	engine := t.service.newEngine()
	snapshot, err := engine.Start(ev)
	if err != nil {
		return err
	}
	start, err := event.Decode[event.WorkflowStart](ev)
	if err != nil {
		return err
	}
	if _, err := t.service.store.AppendMessage(messaging.NewWorkflowMessage(start.WorkflowID, snapshot)); err != nil {
		return err
	}

	loan, err := t.cursor.Lend()
	if err != nil {
		return err
	}
	defer loan.Return()

	for snap, err := range engine.Run(ctx, loan) {
		if err != nil {
			return err
		}
		t.service.store.ReplaceMessageByID(messaging.Patch{
			ID:      start.WorkflowID,
			Content: messaging.WorkflowContent{Workflow: snap},
		})
		t.service.metrics.ObserveSnapshot()
	}

	final := engine.FinalState()
	if final == nil {
		final = []messaging.ChatMessage{}
	}
	t.service.store.SetConversationState(State{Messages: final})
	t.logger.Debug("workflow finished", "workflow_id", start.WorkflowID, "final_messages", len(final))
	return nil
}

func (t *turnState) drop(ev event.Event, reason string) {
	t.logger.Debug("event ignored", "type", ev.Type, "reason", reason)
	t.service.metrics.ObserveDrop(reason)
}

// observedStream counts and records every event pulled by either the
// processor or the workflow engine.
type observedStream struct {
	event.Stream
	service *Service
	logger  *slog.Logger
	turnID  string
	seq     int
}

func (o *observedStream) Next(ctx context.Context) (event.Event, error) {
	ev, err := o.Stream.Next(ctx)
	if err != nil {
		return ev, err
	}
	o.seq++
	o.service.metrics.ObserveEvent(string(ev.Type))
	seq := o.seq
	o.service.record(o.logger, func(ctx context.Context) error {
		return o.service.recorder.RecordEvent(ctx, o.turnID, seq, ev)
	})
	return ev, nil
}

func textOf(m messaging.Message) string {
	body, _ := m.Text()
	return body
}

// workflowAdapter exposes workflow.Engine through the WorkflowEngine interface.
type workflowAdapter struct {
	engine *workflow.Engine
}

// NewWorkflowEngine returns the default workflow engine.
func NewWorkflowEngine(logger *slog.Logger) WorkflowEngine {
	return &workflowAdapter{engine: workflow.NewEngine(logger)}
}

func (a *workflowAdapter) Start(ev event.Event) (messaging.WorkflowSnapshot, error) {
	wf, err := a.engine.Start(ev)
	if err != nil {
		return nil, err
	}
	return wf, nil
}

func (a *workflowAdapter) Run(ctx context.Context, stream event.Stream) iter.Seq2[messaging.WorkflowSnapshot, error] {
	return func(yield func(messaging.WorkflowSnapshot, error) bool) {
		for wf, err := range a.engine.Run(ctx, stream) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(wf, nil) {
				return
			}
		}
	}
}

func (a *workflowAdapter) FinalState() []messaging.ChatMessage {
	fs := a.engine.FinalState()
	if fs == nil {
		return nil
	}
	return fs.Messages
}
