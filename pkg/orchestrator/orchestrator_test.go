package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"silo-be/pkg/animation"
	"silo-be/pkg/clock"
	"silo-be/pkg/gemini"
	"silo-be/pkg/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	flash = "gemini-2.5-flash"
	pro   = "gemini-2.5-pro"
)

type call struct {
	Op     string
	Model  string
	Prompt string
}

type fakeConversation struct {
	mu    sync.Mutex
	sent  []string
	reply string
	err   error
	// gate holds the reply until closed
	gate chan struct{}
}

func (c *fakeConversation) Send(_ context.Context, text string) (string, error) {
	c.mu.Lock()
	c.sent = append(c.sent, text)
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reply, c.err
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   []call
	history []gemini.Turn

	web   *gemini.WebResult
	image *gemini.ImageResult
	err   error
	// gate blocks backend calls until closed
	gate chan struct{}

	chat *fakeConversation
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		web: &gemini.WebResult{
			Text:    "Paris is the capital of France.",
			Sources: []gemini.Source{{URI: "https://a", Title: "A"}, {URI: "https://b", Title: "B"}},
			Images:  []string{"https://img/1.png"},
		},
		image: &gemini.ImageResult{Keywords: []string{"dog", "grass", "sun", "park", "play"}, Text: "A dog."},
		chat:  &fakeConversation{reply: "Lyon."},
	}
}

func (g *fakeGenerator) record(op, model, prompt string) {
	g.mu.Lock()
	g.calls = append(g.calls, call{Op: op, Model: model, Prompt: prompt})
	gate := g.gate
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (g *fakeGenerator) GenerateGrounded(ctx context.Context, model, prompt string) (*gemini.WebResult, error) {
	g.record("grounded", model, prompt)
	return g.web, g.err
}

func (g *fakeGenerator) GenerateCreative(ctx context.Context, model, prompt string) (*gemini.WebResult, error) {
	g.record("creative", model, prompt)
	return g.web, g.err
}

func (g *fakeGenerator) GenerateStructured(ctx context.Context, model, prompt string, image *gemini.Image) (*gemini.ImageResult, error) {
	g.record("structured", model, prompt)
	return g.image, g.err
}

func (g *fakeGenerator) CreateChatSession(ctx context.Context, model string, history []gemini.Turn, options ...gemini.Option) (gemini.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call{Op: "chat", Model: model})
	g.history = append([]gemini.Turn{}, history...)
	return g.chat, nil
}

func (g *fakeGenerator) Calls() []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]call{}, g.calls...)
}

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	require.NotNil(t, done)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("request did not finish")
	}
}

func newTestOrchestrator(gen Generator, opts ...Option) *Orchestrator {
	return New(gen, Config{FlashModel: flash, ProModel: pro}, opts...)
}

func TestEmptySubmitIsIgnored(t *testing.T) {
	gen := newFakeGenerator()
	o := newTestOrchestrator(gen)
	before := o.Snapshot()

	inputs := []struct {
		query string
		image *gemini.Image
	}{
		{"", nil},
		{"   \n", nil},
		{"", &gemini.Image{MimeType: "image/png"}},
	}
	for _, in := range inputs {
		done, err := o.Submit(context.Background(), in.query, in.image, AgentAuto)
		assert.NoError(t, err)
		assert.Nil(t, done)
	}

	assert.Equal(t, before, o.Snapshot())
	assert.Empty(t, gen.Calls())
}

func TestSubmitWebSearch(t *testing.T) {
	gen := newFakeGenerator()
	var snaps []Snapshot
	var mu sync.Mutex
	o := newTestOrchestrator(gen, WithObserver(func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	}))

	done, err := o.Submit(context.Background(), "capital of France", nil, AgentAuto)
	require.NoError(t, err)
	wait(t, done)

	snap := o.Snapshot()
	assert.Equal(t, ViewDeepResearch, snap.View)
	assert.True(t, snap.IsLoading, "loading stays on until the animation completes")
	assert.Equal(t, flash, snap.Model)
	require.NotNil(t, snap.Result)
	require.NotNil(t, snap.Result.Web)
	assert.Equal(t, "Paris is the capital of France.", snap.Result.Web.Text)
	require.NotNil(t, snap.Animation)
	assert.Equal(t, animation.DeepResearch(2), snap.Animation.Plan)

	assert.Equal(t, []call{{Op: "grounded", Model: flash, Prompt: "capital of France"}}, gen.Calls())

	require.NoError(t, o.CompleteAnimation(snap.RequestID))
	snap = o.Snapshot()
	assert.Equal(t, ViewResults, snap.View)
	assert.False(t, snap.IsLoading)
	assert.Empty(t, snap.Error)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snaps)
	assert.Equal(t, ViewDeepResearch, snaps[0].View)
	assert.True(t, snaps[0].IsLoading)
	assert.Nil(t, snaps[0].Result)
}

func TestSubmitImageOnlyUsesProTier(t *testing.T) {
	gen := newFakeGenerator()
	o := newTestOrchestrator(gen)

	done, err := o.Submit(context.Background(), "", &gemini.Image{Data: []byte{1, 2, 3}, MimeType: "image/jpeg"}, AgentAuto)
	require.NoError(t, err)
	assert.Equal(t, ViewImageAnalysis, o.Snapshot().View)
	wait(t, done)

	snap := o.Snapshot()
	assert.Equal(t, ViewImageAnalysis, snap.View)
	assert.False(t, snap.IsLoading)
	assert.True(t, snap.HasImage)
	assert.Equal(t, "image/jpeg", snap.ImageMimeType)
	require.NotNil(t, snap.Result.Image)
	assert.Len(t, snap.Result.Image.Keywords, 5)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "structured", calls[0].Op)
	assert.Equal(t, pro, calls[0].Model)
	assert.Equal(t, gemini.ImageAnalysisPrompt(""), calls[0].Prompt)

	require.NoError(t, o.CompleteAnimation(snap.RequestID))
	assert.Equal(t, ViewImageResults, o.Snapshot().View)
}

func TestModelPolicy(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		image    bool
		mode     AgentMode
		wantOp   string
		wantTier string
	}{
		{"auto text asks selector", "hi", false, AgentAuto, "grounded", flash},
		{"auto image only", "", true, AgentAuto, "structured", pro},
		{"auto image with query asks selector", "what breed", true, AgentAuto, "structured", flash},
		{"deep research", "hi", false, AgentDeepResearch, "grounded", pro},
		{"creative", "write a poem", false, AgentCreative, "creative", pro},
		{"creative with image analyses the image", "caption", true, AgentCreative, "structured", pro},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := newFakeGenerator()
			o := newTestOrchestrator(gen)

			var img *gemini.Image
			if tt.image {
				img = &gemini.Image{Data: []byte{1}, MimeType: "image/png"}
			}
			done, err := o.Submit(context.Background(), tt.query, img, tt.mode)
			require.NoError(t, err)
			wait(t, done)

			calls := gen.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.wantOp, calls[0].Op)
			assert.Equal(t, tt.wantTier, calls[0].Model)
		})
	}
}

func TestPluggableSelector(t *testing.T) {
	gen := newFakeGenerator()
	var asked []string
	o := newTestOrchestrator(gen, WithSelector(func(_ context.Context, q string) (string, error) {
		asked = append(asked, q)
		return "custom-model", nil
	}))

	done, err := o.Submit(context.Background(), "explain quantum gravity", nil, AgentAuto)
	require.NoError(t, err)
	wait(t, done)

	assert.Equal(t, []string{"explain quantum gravity"}, asked)
	assert.Equal(t, "custom-model", gen.Calls()[0].Model)
}

func TestSelectorFailureSurfacesGenericError(t *testing.T) {
	gen := newFakeGenerator()
	o := newTestOrchestrator(gen, WithSelector(func(context.Context, string) (string, error) {
		return "", errors.New("classifier down")
	}))

	done, err := o.Submit(context.Background(), "hi", nil, AgentAuto)
	require.NoError(t, err)
	wait(t, done)

	snap := o.Snapshot()
	assert.Equal(t, SearchErrorMessage, snap.Error)
	assert.False(t, snap.IsLoading)
	assert.Empty(t, gen.Calls())
}

func TestCreativeFailureStaysOnCreativeView(t *testing.T) {
	gen := newFakeGenerator()
	gen.err = remote.Transport("generate plain", errors.New("connection reset"))
	o := newTestOrchestrator(gen)

	done, err := o.Submit(context.Background(), "write a CV", nil, AgentCreative)
	require.NoError(t, err)
	wait(t, done)

	snap := o.Snapshot()
	assert.Equal(t, ViewCreative, snap.View)
	assert.Equal(t, SearchErrorMessage, snap.Error)
	assert.False(t, snap.IsLoading)
	assert.Nil(t, snap.Result)

	// no result, so completion keeps the error on screen
	require.NoError(t, o.CompleteAnimation(snap.RequestID))
	assert.Equal(t, ViewCreative, o.Snapshot().View)
}

func TestStopDiscardsLateResponse(t *testing.T) {
	gen := newFakeGenerator()
	gen.gate = make(chan struct{})
	o := newTestOrchestrator(gen)

	done, err := o.Submit(context.Background(), "capital of France", nil, AgentAuto)
	require.NoError(t, err)
	staleID := o.Snapshot().RequestID

	o.Stop()
	close(gen.gate)
	wait(t, done)

	snap := o.Snapshot()
	assert.Equal(t, ViewHome, snap.View)
	assert.False(t, snap.IsLoading)
	assert.Nil(t, snap.Result)
	assert.Empty(t, snap.Query)
	assert.Greater(t, snap.RequestID, staleID)
	assert.ErrorIs(t, o.CompleteAnimation(staleID), ErrStaleRequest)
}

func TestNewSearchDuringRequestThenSubmitAgain(t *testing.T) {
	gen := newFakeGenerator()
	gate := make(chan struct{})
	gen.gate = gate
	o := newTestOrchestrator(gen)

	first, err := o.Submit(context.Background(), "first", nil, AgentAuto)
	require.NoError(t, err)
	o.NewSearch()

	gen.mu.Lock()
	gen.gate = nil
	gen.mu.Unlock()

	second, err := o.Submit(context.Background(), "second", nil, AgentAuto)
	require.NoError(t, err)
	wait(t, second)

	close(gate)
	wait(t, first)

	snap := o.Snapshot()
	assert.Equal(t, "second", snap.Query)
	assert.Equal(t, ViewDeepResearch, snap.View)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "Paris is the capital of France.", snap.Result.Web.Text)
}

func snapshotWithoutVersion(s Snapshot) Snapshot {
	s.Version = 0
	return s
}

func TestNewSearchIsIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		gen := newFakeGenerator()
		o := newTestOrchestrator(gen)

		steps := rapid.IntRange(0, 4).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0:
				done, _ := o.Submit(context.Background(), rapid.StringMatching(`[a-z]{0,5}`).Draw(rt, "q"), nil,
					rapid.SampledFrom([]AgentMode{AgentAuto, AgentDeepResearch, AgentCreative}).Draw(rt, "mode"))
				if done != nil {
					<-done
				}
			case 1:
				_ = o.CompleteAnimation(o.Snapshot().RequestID)
			case 2:
				_ = o.StartChat(context.Background())
			case 3:
				_ = o.SelectAgent(AgentLive)
			}
		}

		o.NewSearch()
		once := o.Snapshot()
		o.NewSearch()
		twice := o.Snapshot()

		if !assert.ObjectsAreEqual(snapshotWithoutVersion(once), snapshotWithoutVersion(twice)) {
			rt.Fatalf("newSearch not idempotent:\n%+v\n%+v", once, twice)
		}
		if once.View != ViewHome || once.Result != nil || once.HasChat || len(once.ChatHistory) != 0 || once.IsLoading {
			rt.Fatalf("newSearch did not fully reset: %+v", once)
		}
	})
}

func completedSearch(t *testing.T, gen *fakeGenerator, mode AgentMode, opts ...Option) *Orchestrator {
	t.Helper()
	o := newTestOrchestrator(gen, opts...)
	done, err := o.Submit(context.Background(), "capital of France", nil, mode)
	require.NoError(t, err)
	wait(t, done)
	require.NoError(t, o.CompleteAnimation(o.Snapshot().RequestID))
	require.Equal(t, ViewResults, o.Snapshot().View)
	return o
}

func TestStartChatSeedsTwoTurns(t *testing.T) {
	gen := newFakeGenerator()
	o := completedSearch(t, gen, AgentAuto)

	require.NoError(t, o.StartChat(context.Background()))

	want := []gemini.Turn{
		{Role: gemini.RoleUser, Content: "capital of France"},
		{Role: gemini.RoleModel, Content: "Paris is the capital of France."},
	}
	snap := o.Snapshot()
	assert.Equal(t, ViewChat, snap.View)
	assert.True(t, snap.HasChat)
	assert.Equal(t, want, snap.ChatHistory)
	assert.Equal(t, want, gen.history)

	calls := gen.Calls()
	assert.Equal(t, call{Op: "chat", Model: pro}, calls[len(calls)-1])
}

func TestStartChatAfterCreativeUsesFlash(t *testing.T) {
	gen := newFakeGenerator()
	o := completedSearch(t, gen, AgentCreative)

	require.NoError(t, o.StartChat(context.Background()))
	calls := gen.Calls()
	assert.Equal(t, flash, calls[len(calls)-1].Model)
}

func TestStartChatPreconditions(t *testing.T) {
	gen := newFakeGenerator()
	o := newTestOrchestrator(gen)
	assert.ErrorIs(t, o.StartChat(context.Background()), ErrNoResult)

	// research result still animating
	done, err := o.Submit(context.Background(), "q", nil, AgentAuto)
	require.NoError(t, err)
	wait(t, done)
	assert.ErrorIs(t, o.StartChat(context.Background()), ErrBusy)

	// image results cannot seed a chat
	done, err = o.Submit(context.Background(), "", &gemini.Image{Data: []byte{1}, MimeType: "image/png"}, AgentAuto)
	require.NoError(t, err)
	wait(t, done)
	assert.ErrorIs(t, o.StartChat(context.Background()), ErrNoResult)
}

func TestSendChatMessage(t *testing.T) {
	gen := newFakeGenerator()
	o := completedSearch(t, gen, AgentAuto)
	require.NoError(t, o.StartChat(context.Background()))

	done, err := o.SendChatMessage(context.Background(), "and the second city?")
	require.NoError(t, err)

	// optimistic user turn
	snap := o.Snapshot()
	assert.Equal(t, gemini.Turn{Role: gemini.RoleUser, Content: "and the second city?"}, snap.ChatHistory[2])
	wait(t, done)

	gen.chat.err = errors.New("boom")
	done, err = o.SendChatMessage(context.Background(), "again")
	require.NoError(t, err)
	wait(t, done)

	snap = o.Snapshot()
	assert.False(t, snap.IsLoading)
	assert.Equal(t, []gemini.Turn{
		{Role: gemini.RoleUser, Content: "capital of France"},
		{Role: gemini.RoleModel, Content: "Paris is the capital of France."},
		{Role: gemini.RoleUser, Content: "and the second city?"},
		{Role: gemini.RoleModel, Content: "Lyon."},
		{Role: gemini.RoleUser, Content: "again"},
		{Role: gemini.RoleModel, Content: ChatErrorMessage},
	}, snap.ChatHistory)
	assert.Equal(t, []string{"and the second city?", "again"}, gen.chat.sent)

	done, err = o.SendChatMessage(context.Background(), "  ")
	assert.NoError(t, err)
	assert.Nil(t, done)
}

func TestLateChatReplyIsDiscarded(t *testing.T) {
	for _, tt := range []struct {
		name  string
		reset func(o *Orchestrator)
	}{
		{"new search", (*Orchestrator).NewSearch},
		{"stop", (*Orchestrator).Stop},
	} {
		t.Run(tt.name, func(t *testing.T) {
			gen := newFakeGenerator()
			o := completedSearch(t, gen, AgentAuto)
			require.NoError(t, o.StartChat(context.Background()))

			gate := make(chan struct{})
			gen.chat.mu.Lock()
			gen.chat.gate = gate
			gen.chat.mu.Unlock()

			done, err := o.SendChatMessage(context.Background(), "and the second city?")
			require.NoError(t, err)
			before := o.Snapshot()
			require.True(t, before.IsLoading)

			tt.reset(o)
			close(gate)
			wait(t, done)

			snap := o.Snapshot()
			assert.Equal(t, ViewHome, snap.View)
			assert.False(t, snap.IsLoading)
			assert.False(t, snap.HasChat)
			assert.Empty(t, snap.ChatHistory)
			assert.Greater(t, snap.RequestID, before.RequestID)
		})
	}
}

func TestSendChatMessageWithoutChat(t *testing.T) {
	o := newTestOrchestrator(newFakeGenerator())
	_, err := o.SendChatMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoChat)
}

func TestRegenerate(t *testing.T) {
	gen := newFakeGenerator()
	o := newTestOrchestrator(gen)

	done, err := o.Regenerate(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, done, "nothing to regenerate yet")

	gen.err = errors.New("temporary")
	done, err = o.Submit(context.Background(), "write a haiku", nil, AgentCreative)
	require.NoError(t, err)
	wait(t, done)
	require.Equal(t, SearchErrorMessage, o.Snapshot().Error)

	gen.err = nil
	done, err = o.Regenerate(context.Background())
	require.NoError(t, err)
	wait(t, done)

	snap := o.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Equal(t, AgentCreative, snap.AgentMode)
	assert.Equal(t, "write a haiku", snap.Query)
	calls := gen.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0], calls[1])
}

func TestAutoAdvanceCompletesAnimation(t *testing.T) {
	gen := newFakeGenerator()
	clk := clock.NewFake()
	o := New(gen, Config{FlashModel: flash, ProModel: pro, AutoAdvance: true}, WithClock(clk))

	done, err := o.Submit(context.Background(), "capital of France", nil, AgentAuto)
	require.NoError(t, err)
	wait(t, done)

	clk.Advance(1100 * time.Millisecond)
	snap := o.Snapshot()
	assert.Equal(t, ViewDeepResearch, snap.View)
	assert.Equal(t, animation.StepDone, snap.Animation.Step)

	clk.Advance(time.Second)
	snap = o.Snapshot()
	assert.Equal(t, ViewResults, snap.View)
	assert.False(t, snap.IsLoading)
	assert.Equal(t, 0, clk.Pending())
}

func TestNewSearchCancelsAnimationTimers(t *testing.T) {
	gen := newFakeGenerator()
	clk := clock.NewFake()
	o := New(gen, Config{FlashModel: flash, ProModel: pro, AutoAdvance: true}, WithClock(clk))

	done, err := o.Submit(context.Background(), "", &gemini.Image{Data: []byte{1}, MimeType: "image/png"}, AgentAuto)
	require.NoError(t, err)
	wait(t, done)
	require.Positive(t, clk.Pending())

	o.NewSearch()
	assert.Equal(t, 0, clk.Pending())
	clk.Advance(time.Minute)
	assert.Equal(t, ViewHome, o.Snapshot().View)
}

func TestSelectAgent(t *testing.T) {
	gen := newFakeGenerator()
	gen.gate = make(chan struct{})
	o := newTestOrchestrator(gen)

	require.NoError(t, o.SelectAgent(AgentDeepResearch))
	assert.Equal(t, AgentDeepResearch, o.Snapshot().AgentMode)
	assert.ErrorIs(t, o.SelectAgent("turbo"), ErrInvalidMode)

	done, err := o.Submit(context.Background(), "q", nil, AgentDeepResearch)
	require.NoError(t, err)
	assert.ErrorIs(t, o.SelectAgent(AgentCreative), ErrBusy)
	close(gen.gate)
	wait(t, done)

	o.NewSearch()
	require.NoError(t, o.SelectAgent(AgentLive))
	assert.Equal(t, ViewLive, o.Snapshot().View)

	o.EndLive()
	snap := o.Snapshot()
	assert.Equal(t, ViewHome, snap.View)
	assert.Equal(t, AgentAuto, snap.AgentMode)
}

func TestSubmitRejectsLiveMode(t *testing.T) {
	o := newTestOrchestrator(newFakeGenerator())
	_, err := o.Submit(context.Background(), "hello", nil, AgentLive)
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestDocsNavigation(t *testing.T) {
	o := newTestOrchestrator(newFakeGenerator())

	assert.ErrorIs(t, o.CloseDocs(), ErrInvalidTransition)
	require.NoError(t, o.OpenDocs())
	assert.Equal(t, ViewDocs, o.Snapshot().View)
	assert.ErrorIs(t, o.OpenDocs(), ErrInvalidTransition)
	require.NoError(t, o.CloseDocs())
	assert.Equal(t, ViewHome, o.Snapshot().View)
}

func TestClose(t *testing.T) {
	gen := newFakeGenerator()
	gen.gate = make(chan struct{})
	o := newTestOrchestrator(gen)

	done, err := o.Submit(context.Background(), "q", nil, AgentAuto)
	require.NoError(t, err)
	o.Close()
	close(gen.gate)
	wait(t, done)

	assert.Nil(t, o.Snapshot().Result)
	_, err = o.Submit(context.Background(), "q", nil, AgentAuto)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSnapshotIsACopy(t *testing.T) {
	gen := newFakeGenerator()
	o := completedSearch(t, gen, AgentAuto)

	snap := o.Snapshot()
	snap.Result.Web.Sources[0].URI = "mutated"
	snap.ChatHistory = append(snap.ChatHistory, gemini.Turn{Role: "user", Content: "x"})

	fresh := o.Snapshot()
	assert.Equal(t, "https://a", fresh.Result.Web.Sources[0].URI)
	assert.Empty(t, fresh.ChatHistory)
}

func TestParseAgentMode(t *testing.T) {
	tests := []struct {
		in      string
		want    AgentMode
		wantErr bool
	}{
		{"", AgentAuto, false},
		{"auto", AgentAuto, false},
		{"deep_research", AgentDeepResearch, false},
		{"creative", AgentCreative, false},
		{"live", AgentLive, false},
		{"research", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAgentMode(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidMode)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
