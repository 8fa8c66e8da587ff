package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/comment-moderator/internal/audit"
	"github.com/whisper/comment-moderator/internal/logging"
	"github.com/whisper/comment-moderator/internal/moderation"
	"github.com/whisper/comment-moderator/internal/protocol"
	"github.com/whisper/comment-moderator/internal/strikes"
)

type fakePipeline struct {
	mu       sync.Mutex
	decision moderation.Decision
	calls    int
	last     moderation.Request
	messages *moderation.Messages
}

func newFakePipeline(d moderation.Decision) *fakePipeline {
	return &fakePipeline{decision: d, messages: moderation.NewMessages("en")}
}

func (p *fakePipeline) Evaluate(_ context.Context, req moderation.Request) moderation.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.last = req
	d := p.decision
	d.Locale = req.Locale
	return d
}

func (p *fakePipeline) Reasons(locale string) moderation.Reasons {
	return p.messages.For(locale)
}

func (p *fakePipeline) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeCache struct {
	entries map[string]moderation.Result
	getErr  error
	puts    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]moderation.Result)}
}

func (c *fakeCache) Get(_ context.Context, locale, text string) (moderation.Result, bool, error) {
	if c.getErr != nil {
		return moderation.Result{}, false, c.getErr
	}
	res, ok := c.entries[locale+"|"+text]
	return res, ok, nil
}

func (c *fakeCache) Put(_ context.Context, locale, text string, res moderation.Result) error {
	c.puts++
	c.entries[locale+"|"+text] = res
	return nil
}

type fakeStrikes struct {
	muted    map[string]bool
	recorded []string
	muteOn   int
	err      error
}

func (s *fakeStrikes) MutedFor(_ context.Context, author string) (*strikes.Mute, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.muted[author] {
		return &strikes.Mute{Reason: "repeated", Remaining: time.Minute}, nil
	}
	return nil, nil
}

func (s *fakeStrikes) Record(_ context.Context, author, reason string) (time.Duration, error) {
	s.recorded = append(s.recorded, author+":"+reason)
	if s.muteOn > 0 && len(s.recorded) >= s.muteOn {
		return strikes.Mute15Min, nil
	}
	return 0, nil
}

type fakeAudit struct {
	entries []*audit.Entry
	err     error
}

func (a *fakeAudit) Record(_ context.Context, e *audit.Entry) error {
	a.entries = append(a.entries, e)
	return a.err
}

type denyAuthors struct{ denied string }

func (d denyAuthors) AllowAuthor(_ context.Context, author string) bool {
	return author != d.denied
}

func modelDecision(ok bool, reason string) moderation.Decision {
	return moderation.Decision{
		Result:     moderation.Result{IsAppropriate: ok, Reason: reason},
		Stage:      moderation.StageModel,
		ParseLevel: moderation.LevelStrict,
		ModelCalls: 1,
	}
}

func newTestService(p Pipeline, opts ...Option) *Service {
	opts = append([]Option{WithLogger(logging.NewNop())}, opts...)
	return New(Config{DefaultLocale: "en", Model: "test-model"}, p, opts...)
}

func TestCheck_PassesThroughPipeline(t *testing.T) {
	p := newFakePipeline(modelDecision(true, ""))
	svc := newTestService(p)

	res, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c1", AuthorID: "u1", Text: "nice post"})
	require.NoError(t, err)

	assert.True(t, res.IsAppropriate)
	assert.Empty(t, res.Reason)
	assert.Equal(t, "model", res.Stage)
	assert.Equal(t, "c1", res.CommentID)
	assert.NotZero(t, res.Ts)
	_, err = uuid.Parse(res.DecisionID)
	assert.NoError(t, err, "decision id should be a uuid")

	assert.Equal(t, "en", p.last.Locale, "default locale applies when the request has none")
}

func TestCheck_RequestLocaleWins(t *testing.T) {
	p := newFakePipeline(modelDecision(true, ""))
	svc := newTestService(p)

	_, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c1", Text: "oi", Locale: "pt-BR"})
	require.NoError(t, err)
	assert.Equal(t, "pt-BR", p.last.Locale)
}

func TestCheck_RateLimitedAuthor(t *testing.T) {
	p := newFakePipeline(modelDecision(true, ""))
	svc := newTestService(p, WithAuthorLimiter(denyAuthors{denied: "spammer"}))

	_, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c1", AuthorID: "spammer", Text: "hi"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Zero(t, p.Calls(), "rate-limited requests never reach the pipeline")

	_, err = svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c2", AuthorID: "someone", Text: "hi"})
	assert.NoError(t, err)
}

func TestCheck_AnonymousSkipsAuthorLimit(t *testing.T) {
	p := newFakePipeline(modelDecision(true, ""))
	svc := newTestService(p, WithAuthorLimiter(denyAuthors{denied: ""}))

	_, err := svc.Check(context.Background(), protocol.CheckRequest{Text: "hi"})
	assert.NoError(t, err)
}

func TestCheck_MutedAuthor(t *testing.T) {
	p := newFakePipeline(modelDecision(true, ""))
	st := &fakeStrikes{muted: map[string]bool{"u1": true}}
	svc := newTestService(p, WithStrikes(st))

	res, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c1", AuthorID: "u1", Text: "hello"})
	require.NoError(t, err)

	assert.False(t, res.IsAppropriate)
	assert.Equal(t, "muted", res.Stage)
	assert.Equal(t, moderation.NewMessages("en").For("en").Muted(), res.Reason)
	assert.Zero(t, p.Calls())
	assert.Empty(t, st.recorded, "a muted comment is not another strike")
}

func TestCheck_MuteLookupErrorContinues(t *testing.T) {
	p := newFakePipeline(modelDecision(true, ""))
	st := &fakeStrikes{err: errors.New("redis down")}
	svc := newTestService(p, WithStrikes(st))

	res, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c1", AuthorID: "u1", Text: "hello"})
	require.NoError(t, err)
	assert.True(t, res.IsAppropriate)
	assert.Equal(t, 1, p.Calls())
}

func TestCheck_RejectionRecordsStrike(t *testing.T) {
	p := newFakePipeline(modelDecision(false, "Offensive."))
	st := &fakeStrikes{muteOn: 2}
	svc := newTestService(p, WithStrikes(st))

	for _, id := range []string{"c1", "c2"} {
		_, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: id, AuthorID: "u1", Text: "bad"})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"u1:Offensive.", "u1:Offensive."}, st.recorded)
}

func TestCheck_StrikeReasonUsesRule(t *testing.T) {
	d := moderation.Decision{
		Result: moderation.Result{Reason: "Too loud."},
		Stage:  moderation.StageHeuristic,
		Rule:   moderation.RuleShouting,
	}
	st := &fakeStrikes{}
	svc := newTestService(newFakePipeline(d), WithStrikes(st))

	_, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c1", AuthorID: "u1", Text: "HEY"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1:shouting"}, st.recorded)
}

func TestCheck_DegradedFallbackIsNotAStrike(t *testing.T) {
	closed := moderation.Decision{
		Result:        moderation.Result{Reason: "Pending review."},
		Stage:         moderation.StageFallback,
		Degraded:      true,
		FallbackCause: moderation.CauseUnavailable,
	}
	st := &fakeStrikes{muteOn: 1}
	svc := newTestService(newFakePipeline(closed), WithStrikes(st))

	for _, id := range []string{"c1", "c2", "c3"} {
		res, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: id, AuthorID: "alice", Text: "hello"})
		require.NoError(t, err)
		assert.False(t, res.IsAppropriate)
	}
	assert.Empty(t, st.recorded, "a model outage must not count against the author")
}

func TestCheck_DegradedLexiconHitIsAStrike(t *testing.T) {
	d := moderation.Decision{
		Result:   moderation.Result{Reason: "Offensive."},
		Stage:    moderation.StageFallback,
		Rule:     moderation.RuleLexicon,
		Degraded: true,
	}
	st := &fakeStrikes{}
	svc := newTestService(newFakePipeline(d), WithStrikes(st))

	_, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c1", AuthorID: "alice", Text: "badword"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice:lexicon"}, st.recorded)
}

func TestCheck_CacheHitSkipsPipeline(t *testing.T) {
	p := newFakePipeline(modelDecision(true, ""))
	c := newFakeCache()
	c.entries["en|seen before"] = moderation.Result{IsAppropriate: false, Reason: "Spam."}
	svc := newTestService(p, WithCache(c))

	res, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c1", Text: "seen before"})
	require.NoError(t, err)

	assert.Equal(t, "cache", res.Stage)
	assert.False(t, res.IsAppropriate)
	assert.Equal(t, "Spam.", res.Reason)
	assert.Zero(t, p.Calls())
	assert.Zero(t, c.puts, "cache hits are not written back")
}

func TestCheck_CacheStoresModelVerdicts(t *testing.T) {
	p := newFakePipeline(modelDecision(true, ""))
	c := newFakeCache()
	svc := newTestService(p, WithCache(c))

	for i := 0; i < 2; i++ {
		_, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c1", Text: "fresh"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, p.Calls(), "second request should be served from cache")
	assert.Equal(t, 1, c.puts)
}

func TestCheck_DegradedVerdictsNotCached(t *testing.T) {
	d := moderation.Decision{
		Result:        moderation.Result{IsAppropriate: true},
		Stage:         moderation.StageFallback,
		Degraded:      true,
		FallbackCause: moderation.CauseUnavailable,
	}
	p := newFakePipeline(d)
	c := newFakeCache()
	svc := newTestService(p, WithCache(c))

	res, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c1", Text: "anything"})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Zero(t, c.puts)
}

func TestCheck_CacheErrorFallsThrough(t *testing.T) {
	p := newFakePipeline(modelDecision(true, ""))
	c := newFakeCache()
	c.getErr = errors.New("redis down")
	svc := newTestService(p, WithCache(c))

	res, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c1", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "model", res.Stage)
	assert.Equal(t, 1, p.Calls())
}

func TestCheck_AuditEntry(t *testing.T) {
	p := newFakePipeline(modelDecision(false, "Offensive."))
	a := &fakeAudit{}
	svc := newTestService(p, WithAudit(a))

	res, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c1", AuthorID: "u1", Text: "bad", Locale: "pt-BR"})
	require.NoError(t, err)
	require.Len(t, a.entries, 1)

	e := a.entries[0]
	assert.Equal(t, res.DecisionID, e.ID.String())
	assert.Equal(t, "c1", e.CommentID)
	assert.Equal(t, "u1", e.AuthorID)
	assert.Equal(t, "pt-BR", e.Locale)
	assert.False(t, e.IsAppropriate)
	assert.Equal(t, "Offensive.", e.Reason)
	assert.Equal(t, "model", e.Stage)
	assert.Equal(t, "strict", e.ParseLevel)
	assert.Equal(t, "test-model", e.Model)
	assert.Equal(t, 1, e.ModelCalls)
}

func TestCheck_AuditErrorStillAnswers(t *testing.T) {
	p := newFakePipeline(modelDecision(true, ""))
	a := &fakeAudit{err: errors.New("postgres down")}
	svc := newTestService(p, WithAudit(a))

	res, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c1", Text: "hello"})
	require.NoError(t, err)
	assert.True(t, res.IsAppropriate)
	assert.NotEmpty(t, res.DecisionID)
}

func TestCheck_NoModelLeavesModelBlank(t *testing.T) {
	d := moderation.Decision{
		Result: moderation.Result{IsAppropriate: false, Reason: "Too long."},
		Stage:  moderation.StageHeuristic,
		Rule:   moderation.RuleLength,
	}
	p := newFakePipeline(d)
	a := &fakeAudit{}
	svc := newTestService(p, WithAudit(a))

	_, err := svc.Check(context.Background(), protocol.CheckRequest{CommentID: "c1", Text: "x"})
	require.NoError(t, err)
	require.Len(t, a.entries, 1)
	assert.Empty(t, a.entries[0].Model)
	assert.Equal(t, "length", a.entries[0].Rule)
	assert.Equal(t, "none", a.entries[0].ParseLevel)
}
