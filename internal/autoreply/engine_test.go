package autoreply

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	To, Subject, Body string
}

type fakeMail struct {
	mu       sync.Mutex
	order    []string
	messages map[string]*Message
	unread   map[string]bool
	sent     []sentMail
	sendErr  error
	listErr  error
	panicky  bool
	lists    int

	// sendStarted is closed when the first Send begins; sendDelay makes
	// every Send take that long unless its context ends first.
	sendStarted chan struct{}
	sendOnce    sync.Once
	sendDelay   time.Duration
}

func newFakeMail() *fakeMail {
	return &fakeMail{messages: map[string]*Message{}, unread: map[string]bool{}}
}

func (m *fakeMail) deliver(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[msg.ID]; !ok {
		m.order = append(m.order, msg.ID)
	}
	m.messages[msg.ID] = &msg
	m.unread[msg.ID] = true
}

func (m *fakeMail) ListUnread(context.Context) ([]MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.panicky {
		panic("list exploded")
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	var refs []MessageRef
	for _, id := range m.order {
		if m.unread[id] {
			refs = append(refs, MessageRef{ID: id, ThreadID: m.messages[id].ThreadID})
		}
	}
	return refs, nil
}

func (m *fakeMail) Fetch(_ context.Context, id string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *msg
	return &cp, nil
}

func (m *fakeMail) Send(ctx context.Context, to, subject, body string) error {
	if err := m.waitSend(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *fakeMail) waitSend(ctx context.Context) error {
	if m.sendStarted != nil {
		m.sendOnce.Do(func() { close(m.sendStarted) })
	}
	if m.sendDelay == 0 {
		return nil
	}
	select {
	case <-time.After(m.sendDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *fakeMail) MarkRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unread[id] = false
	return nil
}

func (m *fakeMail) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *fakeMail) isUnread(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unread[id]
}

func (m *fakeMail) listCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

type fakeRecorder struct {
	mu      sync.Mutex
	polls   []string
	replies []string
	skips   []string
}

func (r *fakeRecorder) RecordPoll(_ context.Context, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls = append(r.polls, status)
}

func (r *fakeRecorder) RecordReply(_ context.Context, composition string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, composition)
}

func (r *fakeRecorder) RecordSkip(_ context.Context, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skips = append(r.skips, reason)
}

type memorySettings struct {
	mu      sync.Mutex
	saved   []Settings
	load    Settings
	loadErr error
	saveErr error
}

func (s *memorySettings) LoadSettings(context.Context) (Settings, error) {
	return s.load, s.loadErr
}

func (s *memorySettings) SaveSettings(_ context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, settings)
	return nil
}

func (s *memorySettings) last() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[len(s.saved)-1]
}

const selfAddress = "me@example.com"

func at(hour, minute int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 5, 4, hour, minute, 0, 0, time.UTC)
	}
}

func newTestEngine(t *testing.T, mail Mail, gen Generator, rec Recorder, rules ...Rule) *Engine {
	t.Helper()
	e := NewEngine(mail, gen, Options{
		SelfAddress:     selfAddress,
		BlockedKeywords: []string{"alerts", "noreply"},
		Location:        time.UTC,
		Now:             at(10, 0),
		Metrics:         rec,
		PollInterval:    5 * time.Millisecond,
		ErrorBackoff:    5 * time.Millisecond,
	})
	e.ApplySettings(Settings{Active: true, SmartReplies: true, Rules: rules})
	return e
}

func defaultRule() Rule {
	return Rule{Message: "Thanks, I'll get back to you.", StartTime: Clock(0, 0), EndTime: Clock(23, 59)}
}

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(newFakeMail(), nil, Options{})
	assert.Equal(t, DefaultPollInterval, e.pollInterval)
	assert.Equal(t, DefaultErrorBackoff, e.errorBackoff)
	assert.False(t, e.IsActive())
	assert.True(t, e.SmartReplies())
	assert.Empty(t, e.ListRules())
	assert.False(t, e.Running())
}

func TestEngine_SkipsBlockedSender(t *testing.T) {
	mail := newFakeMail()
	mail.deliver(Message{ID: "m1", ThreadID: "t1", Sender: "alerts@bank.com", Subject: "Statement"})
	rec := &fakeRecorder{}
	e := newTestEngine(t, mail, nil, rec, defaultRule())

	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, PollSuccess, res.Status)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, mail.sentCount())
	assert.True(t, mail.isUnread("m1"))
	assert.Equal(t, []string{SkipBlockedSender}, rec.skips)
}

func TestEngine_RepliesOncePerThread(t *testing.T) {
	mail := newFakeMail()
	mail.deliver(Message{ID: "m1", ThreadID: "t1", Sender: "john@x.com", Subject: "Lunch?", BodyText: "Free today?"})
	rec := &fakeRecorder{}
	e := newTestEngine(t, mail, nil, rec, defaultRule())

	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replied)

	require.Equal(t, 1, mail.sentCount())
	assert.Equal(t, sentMail{To: "john@x.com", Subject: "Re: Lunch?", Body: "Thanks, I'll get back to you."}, mail.sent[0])
	assert.False(t, mail.isUnread("m1"))
	assert.True(t, e.dedup.Seen("t1"))

	// A follow-up in the same thread arrives unread.
	mail.deliver(Message{ID: "m2", ThreadID: "t1", Sender: "john@x.com", Subject: "Re: Lunch?"})

	res, err = e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Replied)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, mail.sentCount())
	assert.Equal(t, []string{CompositionStatic}, rec.replies)
	assert.Equal(t, []string{SkipAlreadyReplied}, rec.skips)
}

func TestEngine_SendFailureIsRetried(t *testing.T) {
	mail := newFakeMail()
	mail.deliver(Message{ID: "m1", ThreadID: "t1", Sender: "john@x.com", Subject: "Hi"})
	mail.sendErr = errors.New("quota exceeded")
	e := newTestEngine(t, mail, nil, nil, defaultRule())

	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, e.dedup.Seen("t1"))
	assert.True(t, mail.isUnread("m1"))

	mail.mu.Lock()
	mail.sendErr = nil
	mail.mu.Unlock()

	res, err = e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replied)
	assert.True(t, e.dedup.Seen("t1"))
}

func TestEngine_InactiveDoesNotTouchInbox(t *testing.T) {
	mail := newFakeMail()
	mail.deliver(Message{ID: "m1", ThreadID: "t1", Sender: "john@x.com"})
	e := newTestEngine(t, mail, nil, nil, defaultRule())
	require.NoError(t, e.ToggleActive(context.Background(), false))

	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollInactive, res.Status)
	assert.Equal(t, 0, mail.listCount())
}

func TestEngine_NoActiveRulesDoesNotTouchInbox(t *testing.T) {
	mail := newFakeMail()
	e := newTestEngine(t, mail, nil, nil,
		Rule{Message: "evening", StartTime: Clock(18, 0), EndTime: Clock(22, 0)})

	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollNoRules, res.Status)
	assert.Equal(t, 0, mail.listCount())
}

func TestEngine_SkipReasons(t *testing.T) {
	mail := newFakeMail()
	mail.deliver(Message{ID: "m1", ThreadID: "t1", Sender: ""})
	mail.deliver(Message{ID: "m2", ThreadID: "t2", Sender: "Me <me@example.com>"})
	mail.deliver(Message{ID: "m3", ThreadID: "t3", Sender: "jane@y.org"})
	rec := &fakeRecorder{}
	e := newTestEngine(t, mail, nil, rec,
		Rule{Senders: []string{"john@x.com"}, Message: "hi john", StartTime: Clock(0, 0), EndTime: Clock(23, 59)})

	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, []string{SkipMissingSender, SkipBlockedSender, SkipNoRule}, rec.skips)
	assert.Equal(t, 0, mail.sentCount())
}

func TestEngine_FetchFailureIsIsolated(t *testing.T) {
	mail := newFakeMail()
	mail.deliver(Message{ID: "m2", ThreadID: "t2", Sender: "jane@y.org"})
	e := newTestEngine(t, &unfetchable{fakeMail: mail, bad: "m1"}, nil, nil, defaultRule())

	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Replied)
	assert.False(t, e.dedup.Seen("tx"))
}

type unfetchable struct {
	*fakeMail
	bad string
}

func (u *unfetchable) ListUnread(context.Context) ([]MessageRef, error) {
	return []MessageRef{{ID: u.bad, ThreadID: "tx"}, {ID: "m2", ThreadID: "t2"}}, nil
}

func (u *unfetchable) Fetch(ctx context.Context, id string) (*Message, error) {
	if id == u.bad {
		return nil, errors.New("deadline exceeded")
	}
	return u.fakeMail.Fetch(ctx, id)
}

func TestEngine_SmartReplies(t *testing.T) {
	rule := Rule{Message: "Out until Monday.", StartTime: Clock(0, 0), EndTime: Clock(23, 59), UseLLM: true}

	t.Run("generated", func(t *testing.T) {
		mail := newFakeMail()
		mail.deliver(Message{ID: "m1", ThreadID: "t1", Sender: "john@x.com", Subject: "Report", BodyText: "Is it ready?"})
		gen := &fakeGenerator{reply: "Hi John, the report will be ready Monday."}
		rec := &fakeRecorder{}
		e := newTestEngine(t, mail, gen, rec, rule)

		_, err := e.RunOnce(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, mail.sentCount())
		assert.Equal(t, gen.reply, mail.sent[0].Body)
		assert.Equal(t, "Out until Monday.", gen.hint)
		assert.Equal(t, []string{CompositionGenerated}, rec.replies)
	})

	t.Run("fallback", func(t *testing.T) {
		mail := newFakeMail()
		mail.deliver(Message{ID: "m1", ThreadID: "t1", Sender: "john@x.com"})
		rec := &fakeRecorder{}
		e := newTestEngine(t, mail, &fakeGenerator{err: errors.New("rate limited")}, rec, rule)

		_, err := e.RunOnce(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, mail.sentCount())
		assert.Equal(t, "Out until Monday.", mail.sent[0].Body)
		assert.Equal(t, []string{CompositionFallback}, rec.replies)
	})

	t.Run("globally disabled", func(t *testing.T) {
		mail := newFakeMail()
		mail.deliver(Message{ID: "m1", ThreadID: "t1", Sender: "john@x.com"})
		gen := &fakeGenerator{reply: "generated"}
		e := newTestEngine(t, mail, gen, nil, rule)
		require.NoError(t, e.ToggleSmartReplies(context.Background(), false))

		_, err := e.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Out until Monday.", mail.sent[0].Body)
		assert.Equal(t, 0, gen.calls)
	})
}

func TestEngine_ListErrorAndPanic(t *testing.T) {
	t.Run("list error", func(t *testing.T) {
		mail := newFakeMail()
		mail.listErr = errors.New("503")
		rec := &fakeRecorder{}
		e := newTestEngine(t, mail, nil, rec, defaultRule())

		res, err := e.RunOnce(context.Background())
		require.Error(t, err)
		assert.Equal(t, PollError, res.Status)
		assert.Equal(t, []string{PollError}, rec.polls)
		assert.Contains(t, e.Status().LastError, "503")
	})

	t.Run("panic", func(t *testing.T) {
		mail := newFakeMail()
		mail.panicky = true
		e := newTestEngine(t, mail, nil, nil, defaultRule())

		res, err := e.RunOnce(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panicked")
		assert.Equal(t, PollError, res.Status)
	})
}

func TestEngine_EmptyThreadIDFallsBackToMessageID(t *testing.T) {
	mail := newFakeMail()
	mail.deliver(Message{ID: "m1", Sender: "john@x.com"})
	e := newTestEngine(t, mail, nil, nil, defaultRule())

	_, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, e.dedup.Seen("m1"))
}

func TestEngine_WindowUsesLocation(t *testing.T) {
	mail := newFakeMail()
	mail.deliver(Message{ID: "m1", ThreadID: "t1", Sender: "john@x.com"})
	berlin := time.FixedZone("CEST", 2*60*60)

	e := NewEngine(mail, nil, Options{
		Location: berlin,
		Now:      at(16, 30), // 18:30 in CEST
	})
	e.ApplySettings(Settings{Active: true, Rules: []Rule{
		{Message: "evening", StartTime: Clock(18, 0), EndTime: Clock(23, 0)},
	}})

	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replied)
}

func TestEngine_StartStop(t *testing.T) {
	mail := newFakeMail()
	mail.deliver(Message{ID: "m1", ThreadID: "t1", Sender: "john@x.com"})
	e := newTestEngine(t, mail, nil, nil, defaultRule())

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	assert.ErrorIs(t, e.Start(ctx), ErrAlreadyRunning)
	assert.True(t, e.Running())

	assert.Eventually(t, func() bool { return mail.sentCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Stop())
	assert.False(t, e.Running())
	assert.ErrorIs(t, e.Stop(), ErrNotRunning)

	// No new iterations after Stop.
	lists := mail.listCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, lists, mail.listCount())

	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.Stop())
}

func TestEngine_StopFinishesInFlightSend(t *testing.T) {
	mail := newFakeMail()
	mail.sendStarted = make(chan struct{})
	mail.sendDelay = 100 * time.Millisecond
	mail.deliver(Message{ID: "m1", ThreadID: "t1", Sender: "john@x.com", Subject: "Hi"})
	e := newTestEngine(t, mail, nil, nil, defaultRule())

	require.NoError(t, e.Start(context.Background()))
	select {
	case <-mail.sendStarted:
	case <-time.After(time.Second):
		t.Fatal("send did not start")
	}
	require.NoError(t, e.Stop())

	assert.Equal(t, 1, mail.sentCount())
	assert.False(t, mail.isUnread("m1"))
	assert.True(t, e.dedup.Seen("t1"))
}

type slowGenerator struct {
	started chan struct{}
	delay   time.Duration
	reply   string
}

func (g *slowGenerator) GenerateReply(ctx context.Context, _, _, _, _ string) (string, error) {
	close(g.started)
	select {
	case <-time.After(g.delay):
		return g.reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestEngine_StopDuringGenerationSendsGeneratedReply(t *testing.T) {
	mail := newFakeMail()
	mail.deliver(Message{ID: "m1", ThreadID: "t1", Sender: "john@x.com", Subject: "Report"})
	gen := &slowGenerator{started: make(chan struct{}), delay: 100 * time.Millisecond, reply: "The report is due Monday."}
	rec := &fakeRecorder{}
	rule := Rule{Message: "Out until Monday.", StartTime: Clock(0, 0), EndTime: Clock(23, 59), UseLLM: true}
	e := newTestEngine(t, mail, gen, rec, rule)

	require.NoError(t, e.Start(context.Background()))
	select {
	case <-gen.started:
	case <-time.After(time.Second):
		t.Fatal("generation did not start")
	}
	require.NoError(t, e.Stop())

	require.Equal(t, 1, mail.sentCount())
	assert.Equal(t, "The report is due Monday.", mail.sent[0].Body)
	assert.Equal(t, []string{CompositionGenerated}, rec.replies)
	assert.False(t, mail.isUnread("m1"))
}

func TestEngine_CancelledBeforeReplyLeavesMessageUnread(t *testing.T) {
	mail := newFakeMail()
	mail.deliver(Message{ID: "m1", ThreadID: "t1", Sender: "john@x.com"})
	e := newTestEngine(t, mail, nil, nil, defaultRule())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := e.processMessage(ctx, MessageRef{ID: "m1", ThreadID: "t1"}, Clock(10, 0))

	assert.Equal(t, outcomeSkipped, outcome)
	assert.Equal(t, 0, mail.sentCount())
	assert.True(t, mail.isUnread("m1"))
	assert.False(t, e.dedup.Seen("t1"))
}

// threadedMail answers through Reply, recording the original message.
type threadedMail struct {
	*fakeMail
	originals []Message
}

func (m *threadedMail) Reply(ctx context.Context, original *Message, to, subject, body string) error {
	m.mu.Lock()
	m.originals = append(m.originals, *original)
	m.mu.Unlock()
	return m.fakeMail.Send(ctx, to, subject, body)
}

func TestEngine_RepliesInThreadWhenSupported(t *testing.T) {
	mail := &threadedMail{fakeMail: newFakeMail()}
	mail.deliver(Message{ID: "m1", ThreadID: "t1", MessageID: "<m1@x.com>", Sender: "john@x.com", Subject: "Lunch?"})
	e := newTestEngine(t, mail, nil, nil, defaultRule())

	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replied)

	require.Len(t, mail.originals, 1)
	assert.Equal(t, "t1", mail.originals[0].ThreadID)
	assert.Equal(t, "<m1@x.com>", mail.originals[0].MessageID)
	require.Equal(t, 1, mail.sentCount())
	assert.Equal(t, "Re: Lunch?", mail.sent[0].Subject)
	assert.False(t, mail.isUnread("m1"))
}

func TestEngine_ParentContextEndsLoop(t *testing.T) {
	e := newTestEngine(t, newFakeMail(), nil, nil, defaultRule())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !e.Running() }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, e.Stop(), ErrNotRunning)
}

func TestEngine_LoopBacksOffAndContinues(t *testing.T) {
	mail := newFakeMail()
	mail.listErr = errors.New("transient")
	e := newTestEngine(t, mail, nil, nil, defaultRule())

	require.NoError(t, e.Start(context.Background()))
	defer func() { _ = e.Stop() }()

	assert.Eventually(t, func() bool { return mail.listCount() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, e.Running())
}

func TestEngine_ControlSurfacePersists(t *testing.T) {
	store := &memorySettings{}
	e := NewEngine(newFakeMail(), nil, Options{Settings: store})
	ctx := context.Background()

	require.NoError(t, e.ToggleActive(ctx, true))
	assert.True(t, store.last().Active)

	idx, err := e.AddRule(ctx, Rule{Senders: []string{"boss@corp.io"}, Message: "On it", StartTime: Clock(9, 0), EndTime: Clock(17, 0)})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	require.Len(t, store.last().Rules, 1)

	require.NoError(t, e.ToggleSmartReplies(ctx, false))
	assert.False(t, store.last().SmartReplies)

	err = e.RemoveRule(ctx, 3)
	assert.ErrorIs(t, err, ErrInvalidRuleNumber)
	assert.Len(t, e.ListRules(), 1)

	require.NoError(t, e.RemoveRule(ctx, 0))
	assert.Empty(t, store.last().Rules)
}

func TestEngine_SaveFailureKeepsMemoryState(t *testing.T) {
	store := &memorySettings{saveErr: errors.New("disk full")}
	e := NewEngine(newFakeMail(), nil, Options{Settings: store})

	err := e.ToggleActive(context.Background(), true)
	require.Error(t, err)
	assert.True(t, e.IsActive())
}

func TestEngine_Restore(t *testing.T) {
	store := &memorySettings{load: Settings{
		Active:       true,
		SmartReplies: false,
		Rules: []Rule{
			{Message: "kept", StartTime: Clock(9, 0), EndTime: Clock(17, 0)},
			{Message: "", StartTime: Clock(9, 0), EndTime: Clock(17, 0)},
		},
	}}
	e := NewEngine(newFakeMail(), nil, Options{Settings: store})

	require.NoError(t, e.Restore(context.Background()))
	s := e.Settings()
	assert.True(t, s.Active)
	assert.False(t, s.SmartReplies)
	require.Len(t, s.Rules, 1)
	assert.Equal(t, "kept", s.Rules[0].Message)
}

func TestEngine_RestoreFailureKeepsDefaults(t *testing.T) {
	store := &memorySettings{loadErr: errors.New("corrupt")}
	e := NewEngine(newFakeMail(), nil, Options{Settings: store})

	require.Error(t, e.Restore(context.Background()))
	assert.False(t, e.IsActive())
	assert.True(t, e.SmartReplies())
	assert.Empty(t, e.ListRules())
}

func TestEngine_Status(t *testing.T) {
	mail := newFakeMail()
	mail.deliver(Message{ID: "m1", ThreadID: "t1", Sender: "John <john@x.com>"})
	e := newTestEngine(t, mail, nil, nil, defaultRule())

	_, err := e.RunOnce(context.Background())
	require.NoError(t, err)

	st := e.Status()
	assert.False(t, st.Running)
	assert.True(t, st.Active)
	assert.Equal(t, 1, st.Rules)
	assert.Equal(t, 1, st.RepliesSent)
	assert.Equal(t, 1, st.ThreadsAnswered)
	assert.Equal(t, PollSuccess, st.LastPollStatus)
	assert.NotContains(t, st.LastRepliedTo, "john")
	assert.Contains(t, st.LastRepliedTo, "user:")
}

func TestEngine_ConcurrentCommandsDuringPolling(t *testing.T) {
	mail := newFakeMail()
	for i, id := range []string{"a", "b", "c", "d"} {
		mail.deliver(Message{ID: id, ThreadID: id, Sender: "john@x.com", Subject: string(rune('A' + i))})
	}
	e := newTestEngine(t, mail, nil, nil, defaultRule())
	ctx := context.Background()

	require.NoError(t, e.Start(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.AddRule(ctx, defaultRule())
			_ = e.ListRules()
			_ = e.Status()
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return mail.sentCount() == 4 }, time.Second, 5*time.Millisecond)
	require.NoError(t, e.Stop())
}
