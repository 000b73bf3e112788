package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mapStore struct {
	mu   sync.Mutex
	data map[string]*Session
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string]*Session)}
}

func (s *mapStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *mapStore) Save(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sess.ID] = sess.Clone()
	return nil
}

func (s *mapStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

func (s *mapStore) Idle(_ context.Context, idleSince time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, sess := range s.data {
		if sess.UpdatedAt.Before(idleSince) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// listedStore reports a fixed set of IDs as idle, as a listing taken just
// before the sessions were used again would.
type listedStore struct {
	*mapStore
	ids []string
}

func (s listedStore) Idle(context.Context, time.Time) ([]string, error) {
	return s.ids, nil
}

type captureRecorder struct {
	mu             sync.Mutex
	fail           error
	trials         []Record
	questionnaires []Record
}

func (r *captureRecorder) RecordTrials(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.trials = append(r.trials, rec)
	return nil
}

func (r *captureRecorder) RecordQuestionnaire(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.questionnaires = append(r.questionnaires, rec)
	return nil
}

func (r *captureRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trials), len(r.questionnaires)
}

type managerFixture struct {
	mgr   *Manager
	store *mapStore
	rec   *captureRecorder
	clock *clock.Mock
}

func newFixture(t *testing.T) *managerFixture {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(t0)
	f := &managerFixture{store: newMapStore(), rec: &captureRecorder{}, clock: mock}
	mgr, err := NewManager(ManagerConfig{
		Store:    f.store,
		Recorder: f.rec,
		Drawer:   fixedDrawer{},
		Clock:    mock,
		Settings: DefaultSettings(),
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(mgr.Close)
	f.mgr = mgr
	return f
}

// runTrials creates a session and recalls every trial perfectly.
func (f *managerFixture) runTrials(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	s, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	_, err = f.mgr.SubmitIntake(ctx, s.ID, validForm())
	require.NoError(t, err)
	s, err = f.mgr.Begin(ctx, s.ID)
	require.NoError(t, err)

	for s.Phase == PhaseMemorize {
		s, err = f.mgr.FinishMemorize(ctx, s.ID, s.TrialIndex)
		require.NoError(t, err)
		for _, name := range s.CurrentTrial().Target {
			s, err = f.mgr.Select(ctx, s.ID, name)
			require.NoError(t, err)
		}
	}
	require.Equal(t, PhaseQuestionnaireIntro, s.Phase)
	return s.ID
}

func fullAnswers() Answers {
	text := "stories"
	ratings := make(map[int]int, RatingCount)
	for i := 0; i < RatingCount; i++ {
		ratings[i] = 4
	}
	return Answers{Ratings: ratings, FreeText: &text}
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(ManagerConfig{Drawer: fixedDrawer{}, Settings: DefaultSettings()})
	assert.Error(t, err)

	_, err = NewManager(ManagerConfig{Store: newMapStore(), Drawer: fixedDrawer{}, Settings: Settings{TrialSizes: []int{0}, MemorizeLimit: time.Second}})
	assert.Error(t, err)
}

func TestManagerFullRunRecordsTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.runTrials(t)

	nTrials, nQuest := f.rec.counts()
	assert.Equal(t, 1, nTrials)
	assert.Equal(t, 0, nQuest)
	assert.Equal(t, "MART1990", f.rec.trials[0].ParticipantID)
	assert.Equal(t, 25, f.rec.trials[0].Summary.TotalCorrect)

	s, err := f.mgr.Next(ctx, id, Answers{})
	require.NoError(t, err)
	assert.Equal(t, PhaseQuestionnaireA, s.Phase)
	s, err = f.mgr.Next(ctx, id, Answers{Ratings: map[int]int{0: 2}})
	require.NoError(t, err)
	assert.Equal(t, PhaseQuestionnaireB, s.Phase)

	s, err = f.mgr.Submit(ctx, id, fullAnswers())
	require.NoError(t, err)
	assert.Equal(t, PhaseResults, s.Phase)
	assert.Empty(t, s.PersistWarning)

	nTrials, nQuest = f.rec.counts()
	assert.Equal(t, 1, nTrials)
	require.Equal(t, 1, nQuest)
	assert.Equal(t, [RatingCount]int{4, 4, 4, 4, 4, 4, 4}, f.rec.questionnaires[0].Ratings)
	assert.Equal(t, "stories", f.rec.questionnaires[0].FreeText)

	s, err = f.mgr.Reset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, PhaseIntake, s.Phase)
}

func TestManagerTimerEndsMemorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	_, err = f.mgr.SubmitIntake(ctx, s.ID, validForm())
	require.NoError(t, err)
	_, err = f.mgr.Begin(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.mgr.PendingTimers())

	f.clock.Add(31 * time.Second)

	require.Eventually(t, func() bool {
		stored, err := f.store.Get(ctx, s.ID)
		return err == nil && stored.Phase == PhaseRecall
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.mgr.PendingTimers() == 0 }, time.Second, 5*time.Millisecond)

	stored, err := f.store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, stored.Trials[0].MemorizeSeconds)
	assert.Equal(t, t0.Add(30*time.Second), stored.Trials[0].RecallStartedAt)
}

func TestManagerLateFinishIsClamped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	_, err = f.mgr.SubmitIntake(ctx, s.ID, validForm())
	require.NoError(t, err)
	_, err = f.mgr.Begin(ctx, s.ID)
	require.NoError(t, err)

	f.clock.Add(45 * time.Second)

	// Whether the timer or this call applies the deadline, the result is the same.
	s, err = f.mgr.FinishMemorize(ctx, s.ID, s.TrialIndex)
	require.NoError(t, err)
	assert.Equal(t, PhaseRecall, s.Phase)
	assert.Equal(t, 30.0, s.Trials[0].MemorizeSeconds)
}

func TestManagerEarlyFinishStopsTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	_, err = f.mgr.SubmitIntake(ctx, s.ID, validForm())
	require.NoError(t, err)
	_, err = f.mgr.Begin(ctx, s.ID)
	require.NoError(t, err)

	f.clock.Add(12345 * time.Millisecond)
	s, err = f.mgr.FinishMemorize(ctx, s.ID, s.TrialIndex)
	require.NoError(t, err)
	assert.Equal(t, 12.345, s.Trials[0].MemorizeSeconds)
	assert.Equal(t, 0, f.mgr.PendingTimers())
}

func TestManagerRecorderFailureDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	f.rec.fail = errors.New("database unavailable")
	ctx := context.Background()

	id := f.runTrials(t)
	s, err := f.mgr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, PhaseQuestionnaireIntro, s.Phase)
	assert.NotEmpty(t, s.PersistWarning)

	_, err = f.mgr.Next(ctx, id, Answers{})
	require.NoError(t, err)
	_, err = f.mgr.Next(ctx, id, Answers{})
	require.NoError(t, err)
	s, err = f.mgr.Submit(ctx, id, fullAnswers())
	require.NoError(t, err)
	assert.Equal(t, PhaseResults, s.Phase)
	assert.NotEmpty(t, s.PersistWarning)
}

func TestManagerIncompleteSubmitKeepsAnswers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.runTrials(t)
	_, err := f.mgr.Next(ctx, id, Answers{})
	require.NoError(t, err)
	_, err = f.mgr.Next(ctx, id, Answers{})
	require.NoError(t, err)

	a := fullAnswers()
	a.Ratings[4] = 0
	_, err = f.mgr.Submit(ctx, id, a)
	require.ErrorIs(t, err, ErrIncompleteQuestionnaire)

	s, err := f.mgr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, PhaseQuestionnaireB, s.Phase)
	assert.Equal(t, [RatingCount]int{4, 4, 4, 4, 0, 4, 4}, s.Questionnaire.Ratings)
	assert.Equal(t, "stories", s.Questionnaire.FreeText)

	_, nQuest := f.rec.counts()
	assert.Equal(t, 0, nQuest)
}

func TestManagerRejectedActionLeavesState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.mgr.Create(ctx)
	require.NoError(t, err)

	_, err = f.mgr.Begin(ctx, s.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	bad := validForm()
	bad.BirthYear = "90"
	_, err = f.mgr.SubmitIntake(ctx, s.ID, bad)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeBirthYear, verr.Code)

	stored, err := f.store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseIntake, stored.Phase)

	_, err = f.mgr.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerAbortAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	_, err = f.mgr.SubmitIntake(ctx, s.ID, validForm())
	require.NoError(t, err)
	_, err = f.mgr.Begin(ctx, s.ID)
	require.NoError(t, err)

	s, err = f.mgr.Abort(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseIntake, s.Phase)
	assert.Equal(t, 0, f.mgr.PendingTimers())

	require.NoError(t, f.mgr.Delete(ctx, s.ID))
	_, err = f.mgr.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerSessionsAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		s, err := f.mgr.Create(ctx)
		require.NoError(t, err)
		ids[i] = s.ID
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			form := validForm()
			form.BirthYear = fmt.Sprintf("19%02d", 50+i)
			if _, err := f.mgr.SubmitIntake(ctx, id, form); !assert.NoError(t, err) {
				return
			}
			s, err := f.mgr.Begin(ctx, id)
			if !assert.NoError(t, err) {
				return
			}
			for s.Phase == PhaseMemorize {
				if s, err = f.mgr.FinishMemorize(ctx, id, s.TrialIndex); !assert.NoError(t, err) {
					return
				}
				// Only the first symbol is recalled, then the trial is skipped.
				if s, err = f.mgr.Select(ctx, id, s.CurrentTrial().Target[0]); !assert.NoError(t, err) {
					return
				}
				if s, err = f.mgr.SkipTrial(ctx, id); !assert.NoError(t, err) {
					return
				}
			}
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		s, err := f.mgr.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, PhaseQuestionnaireIntro, s.Phase)
		assert.Equal(t, fmt.Sprintf("MART19%02d", 50+i), s.Participant.ID)
		assert.Equal(t, 5, s.Summary().TotalCorrect)
		assert.Equal(t, 5, s.Summary().SkippedTrials)
	}
	nTrials, _ := f.rec.counts()
	assert.Equal(t, n, nTrials)
}

func TestManagerStaleFinishIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	_, err = f.mgr.SubmitIntake(ctx, s.ID, validForm())
	require.NoError(t, err)
	_, err = f.mgr.Begin(ctx, s.ID)
	require.NoError(t, err)

	// The deadline ends trial 1 and its recall is completed.
	f.clock.Add(31 * time.Second)
	s, err = f.mgr.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, PhaseRecall, s.Phase)
	for _, name := range s.CurrentTrial().Target {
		s, err = f.mgr.Select(ctx, s.ID, name)
		require.NoError(t, err)
	}
	require.Equal(t, PhaseMemorize, s.Phase)
	require.Equal(t, 1, s.TrialIndex)

	// A late "done" for trial 1 must not end trial 2.
	f.clock.Add(2 * time.Second)
	s, err = f.mgr.FinishMemorize(ctx, s.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, PhaseMemorize, s.Phase)
	assert.Equal(t, 1, s.TrialIndex)

	s, err = f.mgr.FinishMemorize(ctx, s.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, PhaseRecall, s.Phase)
	assert.Equal(t, 2.0, s.Trials[1].MemorizeSeconds)
}

func TestManagerClearSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	_, err = f.mgr.SubmitIntake(ctx, s.ID, validForm())
	require.NoError(t, err)
	_, err = f.mgr.Begin(ctx, s.ID)
	require.NoError(t, err)

	_, err = f.mgr.ClearSelection(ctx, s.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	s, err = f.mgr.FinishMemorize(ctx, s.ID, 0)
	require.NoError(t, err)
	target := s.CurrentTrial().Target
	s, err = f.mgr.Select(ctx, s.ID, target[1])
	require.NoError(t, err)

	s, err = f.mgr.ClearSelection(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, s.CurrentTrial().Selected)

	for _, name := range target {
		s, err = f.mgr.Select(ctx, s.ID, name)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.Trials[0].Correct)
}

func TestManagerSweepRemovesIdleSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	_, err = f.mgr.SubmitIntake(ctx, old.ID, validForm())
	require.NoError(t, err)

	f.clock.Add(2 * time.Hour)
	fresh, err := f.mgr.Create(ctx)
	require.NoError(t, err)

	n, err := f.mgr.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.mgr.Get(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.mgr.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestManagerSweepKeepsSessionsUsedSinceListing(t *testing.T) {
	store := newMapStore()
	lister := &listedStore{mapStore: store}
	mock := clock.NewMock()
	mock.Set(t0)
	mgr, err := NewManager(ManagerConfig{
		Store:    lister,
		Drawer:   fixedDrawer{},
		Clock:    mock,
		Settings: DefaultSettings(),
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(mgr.Close)

	ctx := context.Background()
	s, err := mgr.Create(ctx)
	require.NoError(t, err)
	mock.Add(2 * time.Hour)
	_, err = mgr.SubmitIntake(ctx, s.ID, validForm())
	require.NoError(t, err)

	lister.ids = []string{s.ID, "gone"}
	n, err := mgr.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseInstructions, stored.Phase)
}
