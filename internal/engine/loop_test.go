package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type memJob struct {
	job       domain.DueJob
	claimedBy string
	history   []domain.JobState
}

type memStore struct {
	mu            sync.Mutex
	order         []string
	jobs          map[string]*memJob
	fetchErr      error
	transitionErr map[string]error
	fetches       int
}

func newMemStore(jobs ...domain.DueJob) *memStore {
	s := &memStore{jobs: map[string]*memJob{}, transitionErr: map[string]error{}}
	for _, j := range jobs {
		j.Status = domain.JobStatusPending
		s.order = append(s.order, j.ID)
		s.jobs[j.ID] = &memJob{job: j}
	}
	return s
}

func (s *memStore) FetchDueBatch(_ context.Context, now time.Time, limit int, workerID string, _ time.Duration) ([]domain.DueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	var out []domain.DueJob
	for _, id := range s.order {
		if len(out) == limit {
			break
		}
		j := s.jobs[id]
		if j.job.Status != domain.JobStatusPending || j.job.ExecuteAt.After(now) {
			continue
		}
		j.job.Status = domain.JobStatusProcessing
		j.claimedBy = workerID
		out = append(out, j.job)
	}
	return out, nil
}

func (s *memStore) ApplyTransition(_ context.Context, jobID, workerID string, decision domain.Decision, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionErr[jobID]; err != nil {
		return err
	}
	j, ok := s.jobs[jobID]
	if !ok || j.job.Status != domain.JobStatusProcessing || j.claimedBy != workerID {
		return domain.ErrJobAlreadyClaimed
	}

	switch d := decision.(type) {
	case domain.Complete:
		j.job.Status = domain.JobStatusCompleted
		j.job.CompletedAt = &now
	case domain.Advance:
		j.job.Status = domain.JobStatusPending
		j.job.Payload = j.job.Payload.WithStepIndex(d.NextIndex)
		j.job.ExecuteAt = d.NextExecuteAt
	}
	j.claimedBy = ""
	j.history = append(j.history, decision.NextState())
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, jobID, workerID, reason string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.claimedBy != workerID {
		return domain.ErrJobAlreadyClaimed
	}
	j.job.Status = domain.JobStatusFailed
	j.job.ErrorMessage = &reason
	j.claimedBy = ""
	j.history = append(j.history, domain.NewFailed(reason))
	return nil
}

func (s *memStore) Release(_ context.Context, workerID string, jobIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range jobIDs {
		j := s.jobs[id]
		if j.job.Status == domain.JobStatusProcessing && j.claimedBy == workerID {
			j.job.Status = domain.JobStatusPending
			j.claimedBy = ""
		}
	}
	return nil
}

func (s *memStore) get(id string) memJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

type fakeMailer struct {
	sent   []domain.Email
	err    error
	onSend func()
}

func (m *fakeMailer) Send(_ context.Context, email domain.Email) error {
	if m.onSend != nil {
		m.onSend()
	}
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

type fakeTags struct {
	ids       map[string]string
	assoc     map[string]map[string]bool
	resolves  int
	associate int
}

func newFakeTags() *fakeTags {
	return &fakeTags{ids: map[string]string{}, assoc: map[string]map[string]bool{}}
}

func (f *fakeTags) ResolveOrCreateTag(_ context.Context, userID, name string) (string, error) {
	f.resolves++
	key := userID + "/" + name
	if id, ok := f.ids[key]; ok {
		return id, nil
	}
	id := "tag-" + name
	f.ids[key] = id
	return id, nil
}

func (f *fakeTags) Associate(_ context.Context, contactID, tagID string) (bool, error) {
	f.associate++
	if f.assoc[contactID] == nil {
		f.assoc[contactID] = map[string]bool{}
	}
	if f.assoc[contactID][tagID] {
		return false, nil
	}
	f.assoc[contactID][tagID] = true
	return true, nil
}

type fakeContent struct {
	templates map[string]domain.Template
	senders   map[string]domain.Sender
}

func (f *fakeContent) Template(_ context.Context, _, id string) (domain.Template, error) {
	t, ok := f.templates[id]
	if !ok {
		return domain.Template{}, domain.ErrTemplateNotFound
	}
	return t, nil
}

func (f *fakeContent) Sender(_ context.Context, _, id string) (domain.Sender, error) {
	s, ok := f.senders[id]
	if !ok {
		return domain.Sender{}, domain.ErrSenderNotFound
	}
	return s, nil
}

type fakeVault map[string]string

func (v fakeVault) Credential(_ context.Context, userID, _ string) (string, error) {
	c, ok := v[userID]
	if !ok {
		return "", domain.ErrCredentialMissing
	}
	return c, nil
}

type fakeEvents struct {
	published []domain.TriggerEvent
}

func (f *fakeEvents) PublishTrigger(_ context.Context, e domain.TriggerEvent) error {
	f.published = append(f.published, e)
	return nil
}

type fakeExploder struct {
	n     int
	err   error
	calls int
}

func (f *fakeExploder) ExplodeDueCampaigns(context.Context) (int, error) {
	f.calls++
	return f.n, f.err
}

type fakeLocker struct {
	held     bool
	released bool
}

func (f *fakeLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	if f.held {
		return nil, false, nil
	}
	return func() { f.released = true }, true, nil
}

type harness struct {
	clock   *fakeClock
	store   *memStore
	mailer  *fakeMailer
	tags    *fakeTags
	content *fakeContent
	vault   fakeVault
	events  *fakeEvents
	loop    *Loop
}

func newHarness(t *testing.T, jobs ...domain.DueJob) *harness {
	t.Helper()
	h := &harness{
		clock:  &fakeClock{now: t0},
		store:  newMemStore(jobs...),
		mailer: &fakeMailer{},
		tags:   newFakeTags(),
		content: &fakeContent{
			templates: map[string]domain.Template{"t1": {ID: "t1", Subject: "Hi {{first_name}}", HTML: "<p>{{email}}</p>"}},
			senders:   map[string]domain.Sender{"s1": {ID: "s1", Name: "Acme", Email: "news@acme.test"}},
		},
		vault:  fakeVault{"u1": "key-123"},
		events: &fakeEvents{},
	}
	h.loop = h.newLoop(nil, nil)
	return h
}

func (h *harness) newLoop(exploder Exploder, locker Locker) *Loop {
	return NewLoop(&Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:    h.store,
		Exploder: exploder,
		Mailer:   h.mailer,
		Tags:     h.tags,
		Content:  h.content,
		Vault:    h.vault,
		Events:   h.events,
		Locker:   locker,
		WorkerID: "test-worker",
		Now:      h.clock.Now,
	})
}

func dueJob(id, definition string) domain.DueJob {
	return domain.DueJob{
		Job: domain.Job{
			ID:           id,
			AutomationID: "a1",
			ContactID:    "c-" + id,
			UserID:       "u1",
			ExecuteAt:    t0,
			Payload:      domain.NewPayload(nil),
		},
		Definition: []byte(definition),
		Contact: domain.Contact{
			ID:        "c-" + id,
			UserID:    "u1",
			Email:     id + "@example.com",
			FirstName: "Ada",
			Status:    domain.ContactStatusActive,
		},
	}
}

func TestLoop_DelayThenSend(t *testing.T) {
	h := newHarness(t, dueJob("j1", `{"steps":[{"type":"delay","amount":1,"unit":"hours"},{"type":"send_email","template_id":"t1","sender_id":"s1"}]}`))
	ctx := context.Background()

	res, err := h.loop.Run(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	j := h.store.get("j1")
	assert.Equal(t, domain.JobStatusPending, j.job.Status)
	assert.Equal(t, 1, j.job.Payload.StepIndex)
	assert.Equal(t, t0.Add(time.Hour), j.job.ExecuteAt)
	assert.Empty(t, h.mailer.sent)

	h.clock.Set(t0.Add(30 * time.Minute))
	res, err = h.loop.Run(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)

	h.clock.Set(t0.Add(time.Hour))
	res, err = h.loop.Run(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Completed)

	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, domain.Email{
		UserID:     "u1",
		From:       "Acme <news@acme.test>",
		To:         "j1@example.com",
		Subject:    "Hi Ada",
		HTML:       "<p>j1@example.com</p>",
		Credential: "key-123",
		JobID:      "j1",
	}, h.mailer.sent[0])

	j = h.store.get("j1")
	assert.Equal(t, []domain.JobState{
		domain.Pending{StepIndex: 1},
		domain.Pending{StepIndex: 2},
		domain.Completed{},
	}, j.history)
	assert.Equal(t, domain.JobStatusCompleted, j.job.Status)
}

func TestLoop_AddTagAlreadyPresent(t *testing.T) {
	h := newHarness(t, dueJob("j1", `{"steps":[{"type":"add_tag","tag_name":"vip"}]}`))
	h.tags.ids["u1/vip"] = "tag-vip"
	h.tags.assoc["c-j1"] = map[string]bool{"tag-vip": true}

	res, err := h.loop.Run(context.Background(), time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 0, res.Failed)

	assert.Equal(t, domain.JobStatusCompleted, h.store.get("j1").job.Status)
	assert.Len(t, h.tags.assoc["c-j1"], 1)
	assert.Empty(t, h.events.published)
}

func TestLoop_AddTagPublishesTagAdded(t *testing.T) {
	h := newHarness(t, dueJob("j1", `{"steps":[{"type":"add_tag","tag_name":"vip"}]}`))

	_, err := h.loop.Run(context.Background(), time.Minute, 10)
	require.NoError(t, err)

	assert.True(t, h.tags.assoc["c-j1"]["tag-vip"])
	require.Len(t, h.events.published, 1)
	ev := h.events.published[0]
	assert.Equal(t, domain.TriggerTagAdded, ev.Kind)
	assert.Equal(t, "vip", ev.Tag)
	assert.Equal(t, "c-j1", ev.ContactID)
	assert.NotEmpty(t, ev.EventID)
}

func TestLoop_MissingCredentialFailsJob(t *testing.T) {
	h := newHarness(t, dueJob("j1", `{"steps":[{"type":"send_email","template_id":"t1","sender_id":"s1"}]}`))
	h.loop.vault = fakeVault{}

	res, err := h.loop.Run(context.Background(), time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	j := h.store.get("j1")
	assert.Equal(t, domain.JobStatusFailed, j.job.Status)
	require.NotNil(t, j.job.ErrorMessage)
	assert.Contains(t, *j.job.ErrorMessage, "credential")
	assert.Empty(t, h.mailer.sent)
}

func TestLoop_JobFatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		def     string
		mutate  func(h *harness, j *domain.DueJob)
		wantMsg string
	}{
		{
			name:    "missing template",
			def:     `{"steps":[{"type":"send_email","template_id":"nope","sender_id":"s1"}]}`,
			wantMsg: "template not found",
		},
		{
			name:    "missing sender",
			def:     `{"steps":[{"type":"send_email","template_id":"t1","sender_id":"nope"}]}`,
			wantMsg: "sender not found",
		},
		{
			name:    "provider rejects",
			def:     `{"steps":[{"type":"send_email","template_id":"t1","sender_id":"s1"}]}`,
			mutate:  func(h *harness, _ *domain.DueJob) { h.mailer.err = errors.New("provider returned 429") },
			wantMsg: "provider returned 429",
		},
		{
			name:    "contact without email",
			def:     `{"steps":[{"type":"send_email","template_id":"t1","sender_id":"s1"}]}`,
			mutate:  func(_ *harness, j *domain.DueJob) { j.Contact.Email = "" },
			wantMsg: "no email address",
		},
		{
			name:    "malformed definition",
			def:     `{"steps":[{"type":"send_fax"}]}`,
			wantMsg: "invalid workflow definition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := dueJob("j1", tt.def)
			h := newHarness(t)
			if tt.mutate != nil {
				tt.mutate(h, &job)
			}
			h.store = newMemStore(job)
			h.loop = h.newLoop(nil, nil)

			res, err := h.loop.Run(context.Background(), time.Minute, 10)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Failed)

			j := h.store.get("j1")
			assert.Equal(t, domain.JobStatusFailed, j.job.Status)
			require.NotNil(t, j.job.ErrorMessage)
			assert.Contains(t, *j.job.ErrorMessage, tt.wantMsg)
		})
	}
}

func TestLoop_BatchIsolation(t *testing.T) {
	bad := dueJob("a", `{"steps":[{"type":"send_email","template_id":"missing","sender_id":"s1"}]}`)
	good := dueJob("b", `{"steps":[{"type":"send_email","template_id":"t1","sender_id":"s1"}]}`)
	h := newHarness(t, bad, good)

	res, err := h.loop.Run(context.Background(), time.Minute, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Completed)

	assert.Equal(t, domain.JobStatusFailed, h.store.get("a").job.Status)
	assert.Equal(t, domain.JobStatusCompleted, h.store.get("b").job.Status)
	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "b@example.com", h.mailer.sent[0].To)
}

func TestLoop_TimeBudget(t *testing.T) {
	def := `{"steps":[{"type":"send_email","template_id":"t1","sender_id":"s1"}]}`
	var jobs []domain.DueJob
	for _, id := range []string{"j1", "j2", "j3", "j4", "j5"} {
		jobs = append(jobs, dueJob(id, def))
	}
	h := newHarness(t, jobs...)
	h.mailer.onSend = func() { h.clock.Advance(4 * time.Second) }

	res, err := h.loop.Run(context.Background(), 10*time.Second, 5)
	require.NoError(t, err)
	assert.True(t, res.BudgetExhausted)
	assert.Equal(t, 3, res.Processed)
	assert.Less(t, res.Processed, 5)
	assert.Equal(t, 2, res.Released)

	for _, id := range []string{"j4", "j5"} {
		j := h.store.get(id)
		assert.Equal(t, domain.JobStatusPending, j.job.Status, id)
		assert.Equal(t, 0, j.job.Payload.StepIndex, id)
		assert.False(t, j.job.ExecuteAt.After(h.clock.Now()), id)
	}
}

func TestLoop_EmptyWorkflowCompletesWithoutSideEffects(t *testing.T) {
	h := newHarness(t, dueJob("j1", `{"steps":[]}`))

	res, err := h.loop.Run(context.Background(), time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Empty(t, h.mailer.sent)
	assert.Zero(t, h.tags.resolves)
}

func TestLoop_StepIndexRoundTrip(t *testing.T) {
	h := newHarness(t, dueJob("j1", `{"steps":[
		{"type":"add_tag","tag_name":"a"},
		{"type":"add_tag","tag_name":"b"},
		{"type":"add_tag","tag_name":"c"}
	]}`))

	_, err := h.loop.Run(context.Background(), time.Minute, 1)
	require.NoError(t, err)

	assert.Equal(t, []domain.JobState{
		domain.Pending{StepIndex: 1},
		domain.Pending{StepIndex: 2},
		domain.Pending{StepIndex: 3},
		domain.Completed{},
	}, h.store.get("j1").history)
	assert.Equal(t, 3, h.tags.associate)
}

func TestLoop_SnapshotOverridesLiveDefinition(t *testing.T) {
	job := dueJob("j1", `{"steps":[{"type":"send_email","template_id":"t1","sender_id":"s1"}]}`)
	job.Payload = domain.NewPayload([]byte(`[{"type":"add_tag","tag_name":"snap"}]`))
	h := newHarness(t, job)

	_, err := h.loop.Run(context.Background(), time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, h.mailer.sent)
	assert.True(t, h.tags.assoc["c-j1"]["tag-snap"])
}

func TestLoop_FetchErrorIsReturned(t *testing.T) {
	h := newHarness(t)
	h.store.fetchErr = errors.New("connection refused")

	_, err := h.loop.Run(context.Background(), time.Minute, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestLoop_LostClaimIsNotMarkedFailed(t *testing.T) {
	h := newHarness(t, dueJob("j1", `{"steps":[{"type":"add_tag","tag_name":"x"}]}`))
	h.store.transitionErr["j1"] = domain.ErrJobAlreadyClaimed

	res, err := h.loop.Run(context.Background(), time.Minute, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed)
	assert.Nil(t, h.store.get("j1").job.ErrorMessage)
}

func TestLoop_ExploderRunsOnceFirst(t *testing.T) {
	h := newHarness(t)
	exploder := &fakeExploder{n: 2}
	loop := h.newLoop(exploder, nil)

	res, err := loop.Run(context.Background(), time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, exploder.calls)
	assert.Equal(t, 2, res.Exploded)

	exploder.err = errors.New("bulk insert failed")
	exploder.n = 0
	_, err = loop.Run(context.Background(), time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, h.store.fetches)
}

func TestLoop_InvocationLock(t *testing.T) {
	h := newHarness(t, dueJob("j1", `{"steps":[]}`))

	held := &fakeLocker{held: true}
	res, err := h.newLoop(nil, held).Run(context.Background(), time.Minute, 10)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, h.store.fetches)

	free := &fakeLocker{}
	res, err = h.newLoop(nil, free).Run(context.Background(), time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.True(t, free.released)
}

func TestLoop_InvalidBatchSize(t *testing.T) {
	h := newHarness(t)
	_, err := h.loop.Run(context.Background(), time.Minute, 0)
	assert.Error(t, err)
}

// ctxStore rejects writes whose context is already done, like a real driver.
type ctxStore struct {
	*memStore
}

func (s ctxStore) ApplyTransition(ctx context.Context, jobID, workerID string, decision domain.Decision, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memStore.ApplyTransition(ctx, jobID, workerID, decision, now)
}

func (s ctxStore) MarkFailed(ctx context.Context, jobID, workerID, reason string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memStore.MarkFailed(ctx, jobID, workerID, reason, now)
}

func (s ctxStore) Release(ctx context.Context, workerID string, jobIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memStore.Release(ctx, workerID, jobIDs)
}

func TestLoop_CancelledAfterSendStillRecordsStep(t *testing.T) {
	def := `{"steps":[{"type":"send_email","template_id":"t1","sender_id":"s1"}]}`
	h := newHarness(t, dueJob("j1", def), dueJob("j2", def))
	h.loop.store = ctxStore{h.store}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.mailer.onSend = cancel

	res, err := h.loop.Run(ctx, time.Minute, 10)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 1, res.Released)
	require.Len(t, h.mailer.sent, 1)

	sent := h.store.get("j1")
	assert.Equal(t, domain.JobStatusPending, sent.job.Status)
	assert.Empty(t, sent.claimedBy)
	assert.Equal(t, 1, sent.job.Payload.StepIndex)
	assert.Equal(t, []domain.JobState{domain.Pending{StepIndex: 1}}, sent.history)

	untouched := h.store.get("j2")
	assert.Equal(t, domain.JobStatusPending, untouched.job.Status)
	assert.Empty(t, untouched.claimedBy)
	assert.Equal(t, 0, untouched.job.Payload.StepIndex)

	h.mailer.onSend = nil
	res, err = h.loop.Run(context.Background(), time.Minute, 10)
	require.NoError(t, err)
	assert.Len(t, h.mailer.sent, 2)
	assert.Equal(t, domain.JobStatusCompleted, h.store.get("j1").job.Status)
	assert.Equal(t, domain.JobStatusCompleted, h.store.get("j2").job.Status)
}

func TestLoop_CancelledDuringSendReleasesJob(t *testing.T) {
	h := newHarness(t, dueJob("j1", `{"steps":[{"type":"send_email","template_id":"t1","sender_id":"s1"}]}`))
	h.loop.store = ctxStore{h.store}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.mailer.onSend = cancel
	h.mailer.err = context.Canceled

	res, err := h.loop.Run(ctx, time.Minute, 10)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 1, res.Released)

	j := h.store.get("j1")
	assert.Equal(t, domain.JobStatusPending, j.job.Status)
	assert.Empty(t, j.claimedBy)
	assert.Equal(t, 0, j.job.Payload.StepIndex)
	assert.Nil(t, j.job.ErrorMessage)
}

func TestLoop_TransitionFailureAfterSendMarksFailed(t *testing.T) {
	h := newHarness(t, dueJob("j1", `{"steps":[{"type":"send_email","template_id":"t1","sender_id":"s1"}]}`))
	h.store.transitionErr["j1"] = errors.New("connection reset by peer")

	res, err := h.loop.Run(context.Background(), time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, h.mailer.sent, 1)

	j := h.store.get("j1")
	assert.Equal(t, domain.JobStatusFailed, j.job.Status)
	require.NotNil(t, j.job.ErrorMessage)
	assert.Contains(t, *j.job.ErrorMessage, "connection reset by peer")

	res, err = h.loop.Run(context.Background(), time.Minute, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Len(t, h.mailer.sent, 1)
}
