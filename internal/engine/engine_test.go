package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hr-lifecycle/backend/internal/audit"
	"hr-lifecycle/backend/internal/catalog"
	"hr-lifecycle/backend/internal/repository"
	"hr-lifecycle/backend/pkg/models"
)

const actor = "hr.ops@example.com"

func scenarioCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(catalog.TrackDefinition{
		Track: models.TrackOnboardingFullTime,
		Tasks: []catalog.TaskDefinition{
			{ID: "collect_docs", Required: true},
			{ID: "verify_docs", DependsOn: []string{"collect_docs"}, Required: true},
			{ID: "send_offer", DependsOn: []string{"verify_docs"}, Required: true},
		},
	}, catalog.TrackDefinition{
		Track: models.TrackOffboarding,
		Tasks: []catalog.TaskDefinition{
			{ID: "return_assets", Required: true},
			{ID: "revoke_access", Required: true},
			{ID: "exit_feedback"},
		},
	})
	require.NoError(t, err)
	return cat
}

type fixture struct {
	engine *Engine
	store  *repository.MemoryStore
	clock  *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newFixture(t *testing.T, cat *catalog.Catalog) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	var seq atomic.Int64
	eng := New(cat, store, audit.NewLog(store),
		WithClock(clock.Now),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%04d", seq.Add(1)) }),
	)
	return &fixture{engine: eng, store: store, clock: clock}
}

func (f *fixture) apply(t *testing.T, wfID, taskID string, to models.TaskStatus) *Result {
	t.Helper()
	res, err := f.engine.ApplyTransition(context.Background(), TransitionRequest{
		WorkflowID: wfID, TaskID: taskID, To: to, Actor: actor,
	})
	require.NoError(t, err, "%s -> %s", taskID, to)
	return res
}

func TestCreate_InitializesPendingTasks(t *testing.T) {
	f := newFixture(t, scenarioCatalog(t))
	in, err := f.engine.Create(context.Background(), "emp-7", models.TrackOnboardingFullTime)
	require.NoError(t, err)

	wf := in.Workflow
	assert.Equal(t, models.WorkflowActive, wf.Status)
	assert.Equal(t, int64(0), wf.Version)
	assert.Len(t, wf.Tasks, 3)
	for id, st := range wf.Tasks {
		assert.Equal(t, models.TaskPending, st.Status, id)
	}

	statuses := map[string]models.TaskStatus{}
	for _, id := range in.TaskIDs() {
		statuses[id], err = in.EffectiveStatus(id)
		require.NoError(t, err)
	}
	assert.Equal(t, map[string]models.TaskStatus{
		"collect_docs": models.TaskPending,
		"verify_docs":  models.TaskBlocked,
		"send_offer":   models.TaskBlocked,
	}, statuses)
	assert.False(t, in.IsComplete())

	history, err := f.engine.History(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t, scenarioCatalog(t))
	ctx := context.Background()

	_, err := f.engine.Create(ctx, "emp-7", models.TrackOnboardingIntern)
	assert.ErrorIs(t, err, ErrUnknownTrack)

	_, err = f.engine.Create(ctx, "  ", models.TrackOnboardingFullTime)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestApplyTransition_DependencyNotSatisfied(t *testing.T) {
	f := newFixture(t, scenarioCatalog(t))
	ctx := context.Background()
	in, err := f.engine.Create(ctx, "emp-7", models.TrackOnboardingFullTime)
	require.NoError(t, err)
	f.apply(t, in.Workflow.ID, "collect_docs", models.TaskCompleted)

	_, err = f.engine.ApplyTransition(ctx, TransitionRequest{
		WorkflowID: in.Workflow.ID, TaskID: "send_offer", To: models.TaskInProgress, Actor: actor,
	})
	require.ErrorIs(t, err, ErrDependencyNotSatisfied)
	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "send_offer", terr.TaskID)
	assert.Contains(t, terr.Msg, "verify_docs")

	history, err := f.engine.History(ctx, in.Workflow.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestApplyTransition_CompletingTrackClosesWorkflow(t *testing.T) {
	f := newFixture(t, scenarioCatalog(t))
	ctx := context.Background()
	in, err := f.engine.Create(ctx, "emp-7", models.TrackOnboardingFullTime)
	require.NoError(t, err)
	id := in.Workflow.ID

	res := f.apply(t, id, "collect_docs", models.TaskCompleted)
	assert.Equal(t, []string{"verify_docs"}, res.Unblocked)
	assert.False(t, res.WorkflowCompleted)

	f.apply(t, id, "verify_docs", models.TaskCompleted)
	res = f.apply(t, id, "send_offer", models.TaskCompleted)
	assert.True(t, res.WorkflowCompleted)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, models.WorkflowCompleted, res.Instance.Workflow.Status)
	require.NotNil(t, res.Instance.Workflow.CompletedAt)

	history, err := f.engine.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, e := range history[:3] {
		assert.False(t, e.IsWorkflowLevel(), "entry %d", i)
		assert.Equal(t, string(models.TaskCompleted), e.ToStatus)
	}
	last := history[3]
	assert.True(t, last.IsWorkflowLevel())
	assert.Equal(t, string(models.WorkflowActive), last.FromStatus)
	assert.Equal(t, string(models.WorkflowCompleted), last.ToStatus)
	assert.Equal(t, uint64(4), last.Seq)

	stored, err := f.engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Workflow.Version)

	_, err = f.engine.ApplyTransition(ctx, TransitionRequest{WorkflowID: id, TaskID: "collect_docs", To: models.TaskFailed, Actor: actor})
	assert.ErrorIs(t, err, ErrWorkflowNotActive)
}

func TestApplyTransition_IllegalTransitions(t *testing.T) {
	f := newFixture(t, scenarioCatalog(t))
	ctx := context.Background()
	in, err := f.engine.Create(ctx, "emp-7", models.TrackOnboardingFullTime)
	require.NoError(t, err)
	id := in.Workflow.ID
	f.apply(t, id, "collect_docs", models.TaskCompleted)
	f.apply(t, id, "verify_docs", models.TaskInProgress)

	tests := []struct {
		name     string
		task     string
		to       models.TaskStatus
		override bool
		want     error
	}{
		{"blocked is never a target", "send_offer", models.TaskBlocked, false, ErrIllegalTransition},
		{"pending to pending", "send_offer", models.TaskPending, false, ErrIllegalTransition},
		{"unknown status", "send_offer", "archived", false, ErrIllegalTransition},
		{"completed is terminal", "collect_docs", models.TaskInProgress, false, ErrIllegalTransition},
		{"completed to failed", "collect_docs", models.TaskFailed, false, ErrIllegalTransition},
		{"in_progress cannot be skipped", "verify_docs", models.TaskSkipped, true, ErrIllegalTransition},
		{"skip needs override", "send_offer", models.TaskSkipped, false, ErrIllegalTransition},
		{"unknown task", "sign_nda", models.TaskCompleted, false, ErrUnknownTask},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.ApplyTransition(ctx, TransitionRequest{
				WorkflowID: id, TaskID: tt.task, To: tt.to, Actor: actor, Override: tt.override,
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = f.engine.ApplyTransition(ctx, TransitionRequest{WorkflowID: id, TaskID: "send_offer", To: models.TaskFailed})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.engine.ApplyTransition(ctx, TransitionRequest{WorkflowID: "missing", TaskID: "send_offer", To: models.TaskFailed, Actor: actor})
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	history, err := f.engine.History(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestApplyTransition_SkipWithOverrideSatisfiesDependents(t *testing.T) {
	f := newFixture(t, scenarioCatalog(t))
	ctx := context.Background()
	in, err := f.engine.Create(ctx, "emp-7", models.TrackOnboardingFullTime)
	require.NoError(t, err)
	id := in.Workflow.ID
	f.apply(t, id, "collect_docs", models.TaskCompleted)

	res, err := f.engine.ApplyTransition(ctx, TransitionRequest{
		WorkflowID: id, TaskID: "verify_docs", To: models.TaskSkipped, Actor: "hr.manager@example.com",
		Override: true, Note: "verified offline",
	})
	require.NoError(t, err)
	assert.True(t, res.Entries[0].Override)
	assert.Equal(t, "verified offline", res.Entries[0].Note)
	assert.Equal(t, []string{"send_offer"}, res.Unblocked)

	res = f.apply(t, id, "send_offer", models.TaskCompleted)
	assert.True(t, res.WorkflowCompleted)
}

func TestApplyTransition_FailureAndRetry(t *testing.T) {
	f := newFixture(t, scenarioCatalog(t))
	ctx := context.Background()
	in, err := f.engine.Create(ctx, "emp-7", models.TrackOnboardingFullTime)
	require.NoError(t, err)
	id := in.Workflow.ID

	f.apply(t, id, "collect_docs", models.TaskInProgress)
	res, err := f.engine.ApplyTransition(ctx, TransitionRequest{
		WorkflowID: id, TaskID: "collect_docs", To: models.TaskFailed, Actor: "mailer",
		Note: "send_email document_request_fulltime: smtp 550", Metadata: map[string]string{"error": "smtp 550"},
	})
	require.NoError(t, err)
	wf := res.Instance.Workflow
	assert.Equal(t, models.WorkflowActive, wf.Status)
	assert.Equal(t, models.TaskFailed, wf.Tasks["collect_docs"].Status)
	assert.Equal(t, "smtp 550", wf.Tasks["collect_docs"].Metadata["error"])
	assert.Equal(t, models.TaskPending, wf.Tasks["verify_docs"].Status)
	assert.Equal(t, models.TaskPending, wf.Tasks["send_offer"].Status)

	f.apply(t, id, "collect_docs", models.TaskInProgress)
	res = f.apply(t, id, "collect_docs", models.TaskCompleted)
	st := res.Instance.Workflow.Tasks["collect_docs"]
	assert.Equal(t, models.TaskCompleted, st.Status)
	require.NotNil(t, st.CompletedAt)
	assert.Equal(t, actor, st.Actor)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, scenarioCatalog(t))
	ctx := context.Background()
	in, err := f.engine.Create(ctx, "emp-7", models.TrackOnboardingFullTime)
	require.NoError(t, err)
	id := in.Workflow.ID

	res, err := f.engine.Cancel(ctx, id, actor, "offer withdrawn")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowCancelled, res.Instance.Workflow.Status)
	require.Len(t, res.Entries, 1)
	assert.True(t, res.Entries[0].IsWorkflowLevel())

	_, err = f.engine.ApplyTransition(ctx, TransitionRequest{WorkflowID: id, TaskID: "collect_docs", To: models.TaskInProgress, Actor: actor})
	assert.ErrorIs(t, err, ErrWorkflowNotActive)
	_, err = f.engine.Cancel(ctx, id, actor, "again")
	assert.ErrorIs(t, err, ErrWorkflowNotActive)
	_, err = f.engine.Annotate(ctx, AnnotateRequest{WorkflowID: id, TaskID: "collect_docs", Actor: actor, Note: "late"})
	assert.ErrorIs(t, err, ErrWorkflowNotActive)
}

func TestAnnotate(t *testing.T) {
	f := newFixture(t, scenarioCatalog(t))
	ctx := context.Background()
	in, err := f.engine.Create(ctx, "emp-7", models.TrackOnboardingFullTime)
	require.NoError(t, err)
	id := in.Workflow.ID
	for _, task := range []string{"collect_docs", "verify_docs", "send_offer"} {
		f.apply(t, id, task, models.TaskCompleted)
	}

	res, err := f.engine.Annotate(ctx, AnnotateRequest{
		WorkflowID: id, TaskID: "send_offer", Actor: "letters",
		Metadata: map[string]string{"artifact_ref": "s3://letters/offer-emp-7.pdf"},
	})
	require.NoError(t, err)
	entry := res.Entries[0]
	assert.True(t, entry.IsAnnotation())
	assert.Equal(t, uint64(5), entry.Seq)
	st := res.Instance.Workflow.Tasks["send_offer"]
	assert.Equal(t, models.TaskCompleted, st.Status)
	assert.Equal(t, actor, st.Actor)
	assert.Equal(t, "s3://letters/offer-emp-7.pdf", st.Metadata["artifact_ref"])

	_, err = f.engine.Annotate(ctx, AnnotateRequest{WorkflowID: id, TaskID: "send_offer", Actor: "letters"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.engine.Annotate(ctx, AnnotateRequest{WorkflowID: id, TaskID: "nope", Actor: "letters", Note: "x"})
	assert.ErrorIs(t, err, ErrUnknownTask)

	_, err = f.engine.Verify(ctx, id)
	assert.NoError(t, err)
}

func TestApplyTransition_ConcurrentCompletionOfSameTask(t *testing.T) {
	f := newFixture(t, scenarioCatalog(t))
	ctx := context.Background()
	in, err := f.engine.Create(ctx, "emp-7", models.TrackOnboardingFullTime)
	require.NoError(t, err)
	id := in.Workflow.ID

	const callers = 16
	var wg sync.WaitGroup
	var ok, illegal atomic.Int32
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.engine.ApplyTransition(ctx, TransitionRequest{
				WorkflowID: id, TaskID: "collect_docs", To: models.TaskCompleted, Actor: actor,
			})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrIllegalTransition):
				illegal.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(callers-1), illegal.Load())

	history, err := f.engine.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, string(models.TaskCompleted), history[0].ToStatus)
	assert.Zero(t, f.engine.locks.size())
}

func TestApplyTransition_ConcurrentTasksCloseWorkflowOnce(t *testing.T) {
	f := newFixture(t, scenarioCatalog(t))
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		in, err := f.engine.Create(ctx, fmt.Sprintf("emp-%d", round), models.TrackOffboarding)
		require.NoError(t, err)
		id := in.Workflow.ID

		var wg sync.WaitGroup
		for _, task := range []string{"return_assets", "revoke_access"} {
			wg.Add(1)
			go func(task string) {
				defer wg.Done()
				_, err := f.engine.ApplyTransition(ctx, TransitionRequest{WorkflowID: id, TaskID: task, To: models.TaskCompleted, Actor: actor})
				assert.NoError(t, err)
			}(task)
		}
		wg.Wait()

		history, err := f.engine.History(ctx, id)
		require.NoError(t, err)
		closing := 0
		for _, e := range history {
			if e.IsWorkflowLevel() {
				closing++
			}
		}
		assert.Equal(t, 1, closing, "round %d", round)
		assert.Len(t, history, 3)
	}
}

func TestApplyTransition_PersistenceFailureAppliesNothing(t *testing.T) {
	f := newFixture(t, scenarioCatalog(t))
	ctx := context.Background()
	in, err := f.engine.Create(ctx, "emp-7", models.TrackOnboardingFullTime)
	require.NoError(t, err)
	id := in.Workflow.ID

	f.store.FailCommits(errors.New("connection reset"))
	req := TransitionRequest{WorkflowID: id, TaskID: "collect_docs", To: models.TaskCompleted, Actor: actor}
	_, err = f.engine.ApplyTransition(ctx, req)
	require.ErrorIs(t, err, ErrPersistence)

	got, err := f.engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, got.Workflow.Tasks["collect_docs"].Status)
	assert.Equal(t, int64(0), got.Workflow.Version)

	f.store.FailCommits(nil)
	_, err = f.engine.ApplyTransition(ctx, req)
	require.NoError(t, err)
	history, err := f.engine.History(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestApplyTransition_UnblocksDependents(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	f := newFixture(t, cat)
	ctx := context.Background()
	in, err := f.engine.Create(ctx, "emp-7", models.TrackOnboardingFullTime)
	require.NoError(t, err)
	id := in.Workflow.ID

	for _, task := range []string{"collect_docs", "verify_docs", "send_offer"} {
		f.apply(t, id, task, models.TaskCompleted)
	}
	res := f.apply(t, id, "offer_signed", models.TaskCompleted)
	assert.Equal(t, []string{"initiate_bgv", "grant_access"}, res.Unblocked)

	status, err := res.Instance.EffectiveStatus("send_appointment_letter")
	require.NoError(t, err)
	assert.Equal(t, models.TaskBlocked, status)
}

func TestReplay_ReproducesStoredView(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	f := newFixture(t, cat)
	ctx := context.Background()
	in, err := f.engine.Create(ctx, "emp-9", models.TrackOffboarding)
	require.NoError(t, err)
	id := in.Workflow.ID

	rng := rand.New(rand.NewSource(42))
	targets := []models.TaskStatus{models.TaskInProgress, models.TaskCompleted, models.TaskFailed, models.TaskSkipped}
	for i := 0; i < 200; i++ {
		current, err := f.engine.Get(ctx, id)
		require.NoError(t, err)
		if current.Workflow.Status != models.WorkflowActive {
			break
		}
		ids := current.TaskIDs()
		_, _ = f.engine.ApplyTransition(ctx, TransitionRequest{
			WorkflowID: id,
			TaskID:     ids[rng.Intn(len(ids))],
			To:         targets[rng.Intn(len(targets))],
			Actor:      fmt.Sprintf("actor-%d", rng.Intn(3)),
			Override:   rng.Intn(4) == 0,
			Metadata:   map[string]string{"step": fmt.Sprint(i)},
		})
	}

	replayed, err := f.engine.Verify(ctx, id)
	require.NoError(t, err)

	stored, err := f.engine.Get(ctx, id)
	require.NoError(t, err)
	history, err := f.engine.History(ctx, id)
	require.NoError(t, err)
	again, err := Replay(cat, stored.Workflow, history)
	require.NoError(t, err)
	assert.Equal(t, replayed.Workflow, again.Workflow)
	assert.Equal(t, stored.Workflow.Tasks, replayed.Workflow.Tasks)
	assert.Equal(t, stored.Workflow.Status, replayed.Workflow.Status)
}

type tamperedStore struct {
	*repository.MemoryStore
	tamper func(*models.Workflow)
}

func (s tamperedStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := s.MemoryStore.GetWorkflow(ctx, id)
	if err == nil {
		s.tamper(wf)
	}
	return wf, err
}

func TestVerify_DetectsDivergence(t *testing.T) {
	cat := scenarioCatalog(t)
	store := repository.NewMemoryStore()
	eng := New(cat, store, audit.NewLog(store))
	ctx := context.Background()
	in, err := eng.Create(ctx, "emp-7", models.TrackOnboardingFullTime)
	require.NoError(t, err)
	_, err = eng.ApplyTransition(ctx, TransitionRequest{WorkflowID: in.Workflow.ID, TaskID: "collect_docs", To: models.TaskCompleted, Actor: actor})
	require.NoError(t, err)

	drifted := New(cat, tamperedStore{MemoryStore: store, tamper: func(wf *models.Workflow) {
		st := wf.Tasks["verify_docs"]
		st.Status = models.TaskCompleted
		wf.Tasks["verify_docs"] = st
	}}, audit.NewLog(store))
	_, err = drifted.Verify(ctx, in.Workflow.ID)
	require.ErrorIs(t, err, ErrReplayMismatch)
	assert.Contains(t, err.Error(), "verify_docs")
}

func TestReplay_RejectsBrokenJournal(t *testing.T) {
	cat := scenarioCatalog(t)
	header := &models.Workflow{ID: "wf-1", EmployeeID: "emp-1", Track: models.TrackOnboardingFullTime}
	entry := models.AuditEntry{WorkflowID: "wf-1", Seq: 1, TaskID: "collect_docs", FromStatus: "in_progress", ToStatus: "completed", Actor: actor}

	_, err := Replay(cat, header, []models.AuditEntry{entry})
	assert.ErrorIs(t, err, ErrReplayMismatch)

	entry.FromStatus = "pending"
	entry.Seq = 2
	_, err = Replay(cat, header, []models.AuditEntry{entry})
	assert.ErrorIs(t, err, ErrReplayMismatch)

	entry.Seq = 1
	in, err := Replay(cat, header, []models.AuditEntry{entry})
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, in.Workflow.Tasks["collect_docs"].Status)
	assert.Equal(t, int64(1), in.Workflow.Version)
}

func TestProperties_RandomWalk(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	f := newFixture(t, cat)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	statuses := []models.TaskStatus{models.TaskInProgress, models.TaskCompleted, models.TaskFailed, models.TaskSkipped}

	for _, track := range cat.Tracks() {
		in, err := f.engine.Create(ctx, "emp-walk", track)
		require.NoError(t, err)
		id := in.Workflow.ID
		for step := 0; step < 150; step++ {
			ids := in.TaskIDs()
			res, err := f.engine.ApplyTransition(ctx, TransitionRequest{
				WorkflowID: id,
				TaskID:     ids[rng.Intn(len(ids))],
				To:         statuses[rng.Intn(len(statuses))],
				Actor:      actor,
				Override:   rng.Intn(3) == 0,
			})
			if err != nil {
				assert.NotErrorIs(t, err, ErrPersistence)
				continue
			}
			in = res.Instance
			for _, taskID := range in.TaskIDs() {
				st := in.Workflow.Tasks[taskID].Status
				if st == models.TaskInProgress || st == models.TaskCompleted {
					assert.Empty(t, in.UnmetDependencies(taskID), "%s %s is %s with unmet deps", track, taskID, st)
				}
			}
			assert.Equal(t, in.IsComplete(), in.Workflow.Status == models.WorkflowCompleted, "track %s step %d", track, step)
			if in.Workflow.Status != models.WorkflowActive {
				break
			}
		}
		_, err = f.engine.Verify(ctx, id)
		assert.NoError(t, err, "track %s", track)
	}
}

func TestNextStatuses(t *testing.T) {
	assert.Equal(t, []models.TaskStatus{models.TaskInProgress, models.TaskCompleted, models.TaskFailed, models.TaskSkipped}, NextStatuses(models.TaskPending))
	assert.Equal(t, []models.TaskStatus{models.TaskInProgress}, NextStatuses(models.TaskFailed))
	assert.Empty(t, NextStatuses(models.TaskCompleted))
	assert.Empty(t, NextStatuses(models.TaskSkipped))
	assert.True(t, IsTerminal(models.TaskSkipped))
	assert.False(t, IsTerminal(models.TaskFailed))
}

func TestReason(t *testing.T) {
	assert.Equal(t, "dependency_not_satisfied", Reason(&TransitionError{Kind: ErrDependencyNotSatisfied}))
	assert.Equal(t, "persistence", Reason(fmt.Errorf("wrapped: %w", ErrPersistence)))
	assert.Equal(t, "unknown_track", Reason(fmt.Errorf("x: %w", catalog.ErrUnknownTrack)))
	assert.Equal(t, "internal", Reason(errors.New("boom")))
	assert.Empty(t, Reason(nil))
}

func TestGet_StoredTasksMustMatchTrack(t *testing.T) {
	cat := scenarioCatalog(t)
	f := newFixture(t, cat)
	ctx := context.Background()
	in, err := f.engine.Create(ctx, "emp-7", models.TrackOnboardingFullTime)
	require.NoError(t, err)

	missing := in.Workflow.Clone()
	delete(missing.Tasks, "send_offer")
	_, err = Bind(cat, missing)
	assert.ErrorIs(t, err, ErrReplayMismatch)
	assert.Equal(t, "replay_mismatch", Reason(err))

	renamed := in.Workflow.Clone()
	renamed.ID = "wf-renamed"
	delete(renamed.Tasks, "send_offer")
	renamed.Tasks["send_contract"] = models.TaskState{TaskID: "send_contract", Status: models.TaskPending}
	require.NoError(t, f.store.CreateWorkflow(ctx, renamed))
	_, err = f.engine.Get(ctx, renamed.ID)
	assert.ErrorIs(t, err, ErrReplayMismatch)
}
