package orchestrator

import (
	"context"
	"strings"
	"sync"

	"silo-be/internal/pkg/logger"
	"silo-be/pkg/animation"
	"silo-be/pkg/clock"
	"silo-be/pkg/gemini"

	"go.opentelemetry.io/otel/trace"
)

const module = "Orchestrator"

// Generator is the slice of the generation backend the orchestrator drives.
type Generator interface {
	GenerateGrounded(ctx context.Context, model, prompt string) (*gemini.WebResult, error)
	GenerateCreative(ctx context.Context, model, prompt string) (*gemini.WebResult, error)
	GenerateStructured(ctx context.Context, model, prompt string, image *gemini.Image) (*gemini.ImageResult, error)
	CreateChatSession(ctx context.Context, model string, history []gemini.Turn, options ...gemini.Option) (gemini.Conversation, error)
}

type Config struct {
	FlashModel string
	ProModel   string
	// AutoAdvance completes animation views on the server once their plan has run.
	AutoAdvance bool
}

type Option func(*Orchestrator)

func WithSelector(s Selector) Option {
	return func(o *Orchestrator) {
		o.selector = s
	}
}

// WithObserver registers a callback that receives every committed state change.
func WithObserver(f func(Snapshot)) Option {
	return func(o *Orchestrator) {
		o.observer = f
	}
}

func WithLogger(l logger.ILogger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// Orchestrator owns one session's view state and mediates every request to the
// generation backend. Each request carries a token; completions whose token is no
// longer current are discarded.
type Orchestrator struct {
	mu sync.Mutex

	gen      Generator
	cfg      Config
	selector Selector
	observer func(Snapshot)
	logger   logger.ILogger
	clock    clock.Clock

	ctx    context.Context
	cancel context.CancelFunc

	view        View
	query       string
	image       *gemini.Image
	agentMode   AgentMode
	model       string
	result      *Result
	chatHistory []gemini.Turn
	chat        gemini.Conversation
	loading     bool
	errMsg      string
	anim        *AnimationState
	schedule    *animation.Schedule

	requestID     uint64
	version       uint64
	pending       bool
	cancelRequest context.CancelFunc
	closed        bool
}

func New(gen Generator, cfg Config, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		gen:         gen,
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		view:        ViewHome,
		agentMode:   AgentAuto,
		chatHistory: []gemini.Turn{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.selector == nil {
		o.selector = ConstantSelector(cfg.FlashModel)
	}
	if o.logger == nil {
		o.logger = logger.NewNopLogger()
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}
	return o
}

type requestKind int

const (
	kindWeb requestKind = iota
	kindCreative
	kindImage
)

// Submit starts a search. An empty query without an image is ignored and returns a nil
// channel. Otherwise the returned channel closes once the backend call has been applied
// or discarded.
func (o *Orchestrator) Submit(ctx context.Context, query string, image *gemini.Image, mode AgentMode) (<-chan struct{}, error) {
	query = strings.TrimSpace(query)
	if image != nil && len(image.Data) == 0 {
		image = nil
	}
	if query == "" && image == nil {
		return nil, nil
	}

	switch mode {
	case "":
		mode = AgentAuto
	case AgentAuto, AgentDeepResearch, AgentCreative:
	default:
		return nil, ErrInvalidMode
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}

	o.resetLocked()
	o.query = query
	o.image = image
	o.agentMode = mode
	o.loading = true

	kind := kindWeb
	switch {
	case image != nil:
		kind = kindImage
		o.view = ViewImageAnalysis
	case mode == AgentCreative:
		kind = kindCreative
		o.view = ViewCreative
	default:
		o.view = ViewDeepResearch
	}

	token, reqCtx := o.beginLocked(ctx)
	snap := o.commitLocked()
	o.mu.Unlock()
	o.emit(snap)

	o.logger.Info(module, "Search submitted", map[string]interface{}{
		"request_id": token,
		"mode":       mode,
		"has_image":  image != nil,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.run(reqCtx, token, kind, query, image, mode)
	}()
	return done, nil
}

func (o *Orchestrator) run(ctx context.Context, token uint64, kind requestKind, query string, image *gemini.Image, mode AgentMode) {
	model, err := o.selectModel(ctx, query, image != nil, mode)
	if err != nil {
		o.applySearch(token, kind, nil, nil, err)
		return
	}

	o.mu.Lock()
	if token == o.requestID {
		o.model = model
	}
	o.mu.Unlock()

	switch kind {
	case kindImage:
		res, err := o.gen.GenerateStructured(ctx, model, gemini.ImageAnalysisPrompt(query), image)
		o.applySearch(token, kind, nil, res, err)
	case kindCreative:
		res, err := o.gen.GenerateCreative(ctx, model, query)
		o.applySearch(token, kind, res, nil, err)
	default:
		res, err := o.gen.GenerateGrounded(ctx, model, query)
		o.applySearch(token, kind, res, nil, err)
	}
}

func (o *Orchestrator) applySearch(token uint64, kind requestKind, web *gemini.WebResult, img *gemini.ImageResult, err error) {
	o.mu.Lock()
	if token != o.requestID || o.closed {
		o.mu.Unlock()
		o.logger.Debug(module, "Discarding stale response", map[string]interface{}{"request_id": token})
		return
	}
	o.endLocked()

	if err != nil {
		o.result = nil
		o.errMsg = SearchErrorMessage
		o.loading = false
		if !o.view.isAnimation() {
			o.view = ViewHome
		}
		snap := o.commitLocked()
		o.mu.Unlock()

		o.logger.Error(module, "Search failed", map[string]interface{}{
			"request_id": token,
			"error":      err.Error(),
		})
		o.emit(snap)
		return
	}

	switch kind {
	case kindImage:
		o.result = &Result{Image: img}
		o.loading = false
		o.startAnimationLocked(token, animation.ImageAnalysis(len(img.Keywords)))
	case kindCreative:
		o.result = &Result{Web: web}
		o.loading = false
		o.startAnimationLocked(token, animation.Creative())
	default:
		// loading stays on until the research animation completes
		o.result = &Result{Web: web}
		o.startAnimationLocked(token, animation.DeepResearch(len(web.Sources)))
	}
	snap := o.commitLocked()
	o.mu.Unlock()
	o.emit(snap)
}

func (o *Orchestrator) startAnimationLocked(token uint64, plan animation.Plan) {
	o.schedule.Cancel()
	o.schedule = nil
	o.anim = &AnimationState{Plan: plan}
	if !o.cfg.AutoAdvance {
		return
	}
	o.schedule = animation.Start(o.clock, plan, func(step animation.Step) {
		o.advanceAnimation(token, step)
	})
}

func (o *Orchestrator) advanceAnimation(token uint64, step animation.Step) {
	o.mu.Lock()
	if token != o.requestID || o.anim == nil {
		o.mu.Unlock()
		return
	}
	o.anim.Step = step.Name
	if step.Name == animation.StepComplete {
		o.completeLocked()
	}
	snap := o.commitLocked()
	o.mu.Unlock()
	o.emit(snap)
}

// CompleteAnimation is the animation view's signal that it has finished. It moves a
// finished request on to its results view.
func (o *Orchestrator) CompleteAnimation(requestID uint64) error {
	o.mu.Lock()
	if requestID != o.requestID {
		o.mu.Unlock()
		return ErrStaleRequest
	}
	if !o.completeLocked() {
		o.mu.Unlock()
		return nil
	}
	snap := o.commitLocked()
	o.mu.Unlock()
	o.emit(snap)
	return nil
}

func (o *Orchestrator) completeLocked() bool {
	if o.result == nil {
		return false
	}
	switch o.view {
	case ViewBrowsing, ViewDeepResearch, ViewCreative:
		if o.result.Web == nil {
			return false
		}
		o.view = ViewResults
	case ViewImageAnalysis:
		if o.result.Image == nil {
			return false
		}
		o.view = ViewImageResults
	default:
		return false
	}
	o.loading = false
	o.schedule.Cancel()
	o.schedule = nil
	return true
}

// NewSearch returns to an empty home view. Calling it repeatedly has no further effect.
func (o *Orchestrator) NewSearch() {
	o.mu.Lock()
	o.resetLocked()
	o.view = ViewHome
	snap := o.commitLocked()
	o.mu.Unlock()
	o.emit(snap)
}

// Stop abandons the request in flight and resets the session.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	token := o.requestID
	wasLoading := o.loading
	o.resetLocked()
	o.view = ViewHome
	snap := o.commitLocked()
	o.mu.Unlock()

	if wasLoading {
		o.logger.Info(module, "Request stopped", map[string]interface{}{"request_id": token})
	}
	o.emit(snap)
}

// Regenerate re-issues the last submitted search.
func (o *Orchestrator) Regenerate(ctx context.Context) (<-chan struct{}, error) {
	o.mu.Lock()
	query, image, mode := o.query, o.image, o.agentMode
	o.mu.Unlock()

	if mode == AgentLive {
		mode = AgentAuto
	}
	return o.Submit(ctx, query, image, mode)
}

// StartChat turns the current web result into a conversation seeded with the
// original query and answer.
func (o *Orchestrator) StartChat(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.loading {
		o.mu.Unlock()
		return ErrBusy
	}
	if o.result == nil || o.result.Web == nil {
		o.mu.Unlock()
		return ErrNoResult
	}
	history := []gemini.Turn{
		{Role: gemini.RoleUser, Content: o.query},
		{Role: gemini.RoleModel, Content: o.result.Web.Text},
	}
	model := o.chatModel(o.agentMode)
	token, reqCtx := o.beginLocked(ctx)
	o.mu.Unlock()

	chat, err := o.gen.CreateChatSession(reqCtx, model, history)

	o.mu.Lock()
	if token != o.requestID || o.closed {
		o.mu.Unlock()
		return ErrStaleRequest
	}
	o.endLocked()
	if err != nil {
		o.mu.Unlock()
		o.logger.Error(module, "Failed to create chat session", map[string]interface{}{"error": err.Error()})
		return err
	}
	o.chat = chat
	o.chatHistory = append([]gemini.Turn{}, history...)
	o.model = model
	o.view = ViewChat
	o.errMsg = ""
	snap := o.commitLocked()
	o.mu.Unlock()
	o.emit(snap)
	return nil
}

// SendChatMessage appends the user's turn right away and the model's reply, or an
// apology, when the backend answers. Empty text is ignored.
func (o *Orchestrator) SendChatMessage(ctx context.Context, text string) (<-chan struct{}, error) {
	text = strings.TrimSpace(text)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if o.chat == nil {
		o.mu.Unlock()
		return nil, ErrNoChat
	}
	if text == "" {
		o.mu.Unlock()
		return nil, nil
	}
	if o.loading {
		o.mu.Unlock()
		return nil, ErrBusy
	}

	o.chatHistory = append(o.chatHistory, gemini.Turn{Role: gemini.RoleUser, Content: text})
	o.loading = true
	chat := o.chat
	token, reqCtx := o.beginLocked(ctx)
	snap := o.commitLocked()
	o.mu.Unlock()
	o.emit(snap)

	done := make(chan struct{})
	go func() {
		defer close(done)
		reply, err := chat.Send(reqCtx, text)

		o.mu.Lock()
		if token != o.requestID || o.closed {
			o.mu.Unlock()
			return
		}
		o.endLocked()
		if err != nil {
			reply = ChatErrorMessage
		}
		o.chatHistory = append(o.chatHistory, gemini.Turn{Role: gemini.RoleModel, Content: reply})
		o.loading = false
		snap := o.commitLocked()
		o.mu.Unlock()

		if err != nil {
			o.logger.Error(module, "Chat message failed", map[string]interface{}{"error": err.Error()})
		}
		o.emit(snap)
	}()
	return done, nil
}

// SelectAgent changes the agent for the next request. The live agent opens the call view.
func (o *Orchestrator) SelectAgent(mode AgentMode) error {
	if _, err := ParseAgentMode(string(mode)); err != nil {
		return err
	}

	o.mu.Lock()
	if o.loading {
		o.mu.Unlock()
		return ErrBusy
	}
	o.agentMode = mode
	if mode == AgentLive {
		o.view = ViewLive
	}
	snap := o.commitLocked()
	o.mu.Unlock()
	o.emit(snap)
	return nil
}

// EndLive leaves the call view.
func (o *Orchestrator) EndLive() {
	o.mu.Lock()
	if o.view != ViewLive {
		o.mu.Unlock()
		return
	}
	o.view = ViewHome
	o.agentMode = AgentAuto
	snap := o.commitLocked()
	o.mu.Unlock()
	o.emit(snap)
}

func (o *Orchestrator) OpenDocs() error {
	return o.moveView(ViewHome, ViewDocs)
}

func (o *Orchestrator) CloseDocs() error {
	return o.moveView(ViewDocs, ViewHome)
}

func (o *Orchestrator) moveView(from, to View) error {
	o.mu.Lock()
	if o.view != from {
		o.mu.Unlock()
		return ErrInvalidTransition
	}
	o.view = to
	snap := o.commitLocked()
	o.mu.Unlock()
	o.emit(snap)
	return nil
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Close cancels in-flight work and pending timers. The orchestrator rejects further requests.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.requestID++
	o.schedule.Cancel()
	o.schedule = nil
	o.cancel()
}

// beginLocked issues a new request token with a context that reset and Close cancel.
// The caller's span is carried over so backend spans join the request trace.
func (o *Orchestrator) beginLocked(ctx context.Context) (uint64, context.Context) {
	o.requestID++
	parent := trace.ContextWithSpan(o.ctx, trace.SpanFromContext(ctx))
	reqCtx, cancel := context.WithCancel(parent)
	o.cancelRequest = cancel
	o.pending = true
	return o.requestID, reqCtx
}

func (o *Orchestrator) endLocked() {
	o.pending = false
	if o.cancelRequest != nil {
		o.cancelRequest()
		o.cancelRequest = nil
	}
}

// resetLocked clears everything a search produces. The token only moves when there is
// something to invalidate, so repeated resets leave identical state.
func (o *Orchestrator) resetLocked() {
	if o.pending || o.schedule != nil {
		o.requestID++
	}
	o.endLocked()
	o.schedule.Cancel()
	o.schedule = nil

	o.query = ""
	o.image = nil
	o.model = ""
	o.result = nil
	o.errMsg = ""
	o.chatHistory = []gemini.Turn{}
	o.chat = nil
	o.loading = false
	o.anim = nil
	if o.agentMode == AgentLive {
		o.agentMode = AgentAuto
	}
}

func (o *Orchestrator) commitLocked() Snapshot {
	o.version++
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:     o.version,
		RequestID:   o.requestID,
		View:        o.view,
		Query:       o.query,
		HasImage:    o.image != nil,
		AgentMode:   o.agentMode,
		Model:       o.model,
		Result:      copyResult(o.result),
		ChatHistory: append([]gemini.Turn{}, o.chatHistory...),
		HasChat:     o.chat != nil,
		IsLoading:   o.loading,
		Error:       o.errMsg,
	}
	if o.image != nil {
		snap.ImageMimeType = o.image.MimeType
	}
	if o.anim != nil {
		anim := *o.anim
		snap.Animation = &anim
	}
	return snap
}

func (o *Orchestrator) emit(snap Snapshot) {
	if o.observer != nil {
		o.observer(snap)
	}
}
