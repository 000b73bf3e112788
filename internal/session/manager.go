package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store keeps sessions by ID. Get returns ErrNotFound for unknown IDs.
// Implementations must hand out copies so that callers never share state.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// IdleLister is implemented by stores that need explicit expiry of idle
// sessions. Idle returns the IDs of sessions not updated since idleSince.
type IdleLister interface {
	Idle(ctx context.Context, idleSince time.Time) ([]string, error)
}

// Recorder is the persistence collaborator for finished records.
type Recorder interface {
	RecordTrials(ctx context.Context, rec Record) error
	RecordQuestionnaire(ctx context.Context, rec Record) error
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Store    Store
	Recorder Recorder
	Drawer   Drawer
	Clock    clock.Clock
	Settings Settings
	Logger   *zap.Logger
}

// Manager runs the state machine for many independent sessions. Calls for
// the same session are serialized; different sessions never block each other.
type Manager struct {
	store    Store
	recorder Recorder
	drawer   Drawer
	clock    clock.Clock
	settings Settings
	log      *zap.Logger

	locks keyedMutex

	mu     sync.Mutex
	timers map[string]*clock.Timer
}

// NewManager validates the settings and returns a manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Drawer == nil {
		return nil, errors.New("sequence drawer is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session settings: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{
		store:    cfg.Store,
		recorder: cfg.Recorder,
		drawer:   cfg.Drawer,
		clock:    cfg.Clock,
		settings: cfg.Settings,
		log:      cfg.Logger.Named("session"),
		locks:    keyedMutex{locks: make(map[string]*refLock)},
		timers:   make(map[string]*clock.Timer),
	}, nil
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time { return m.clock.Now() }

// Create starts a new session in the intake phase.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	now := m.clock.Now()
	settings := m.settings
	settings.TrialSizes = append([]int(nil), m.settings.TrialSizes...)
	s := New(uuid.NewString(), settings, now)
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save new session: %w", err)
	}
	m.log.Debug("Session created", zap.String("session_id", s.ID))
	return s, nil
}

// Get loads a session, applying an expired memorize deadline first.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.do(ctx, id, "get", nil)
}

// SubmitIntake validates the intake form.
func (m *Manager) SubmitIntake(ctx context.Context, id string, form IntakeForm) (*Session, error) {
	return m.do(ctx, id, "intake", func(s *Session, now time.Time) error {
		return s.SubmitIntake(form, m.drawer, now)
	})
}

// Begin starts the first trial.
func (m *Manager) Begin(ctx context.Context, id string) (*Session, error) {
	return m.do(ctx, id, "begin", func(s *Session, now time.Time) error {
		return s.Begin(m.drawer, now)
	})
}

// FinishMemorize ends the memorize phase of the 0-based trial on the
// participant's request. A request for any other trial is stale and changes
// nothing; a negative trial means the current one. A request that arrives
// after the deadline already moved the trial to recall is accepted as long
// as nothing has been selected yet.
func (m *Manager) FinishMemorize(ctx context.Context, id string, trial int) (*Session, error) {
	return m.do(ctx, id, "finish_memorize", func(s *Session, now time.Time) error {
		t := s.CurrentTrial()
		if t != nil && trial >= 0 && trial != s.TrialIndex {
			m.log.Debug("Ignoring stale memorize request",
				zap.String("session_id", id),
				zap.Int("requested", trial+1),
				zap.Int("trial", s.TrialIndex+1),
			)
			return errStale
		}
		if s.Phase == PhaseRecall && t != nil && len(t.Selected) == 0 {
			return errStale
		}
		return s.FinishMemorize(now)
	})
}

// Select records one recall selection. Ignored selections are not errors.
func (m *Manager) Select(ctx context.Context, id, symbol string) (*Session, error) {
	return m.do(ctx, id, "select", func(s *Session, now time.Time) error {
		_, err := s.Select(symbol, m.drawer, now)
		return err
	})
}

// ClearSelection empties the current recall selection.
func (m *Manager) ClearSelection(ctx context.Context, id string) (*Session, error) {
	return m.do(ctx, id, "clear_selection", func(s *Session, now time.Time) error {
		return s.ClearSelection(now)
	})
}

// SkipTrial ends the current recall early.
func (m *Manager) SkipTrial(ctx context.Context, id string) (*Session, error) {
	return m.do(ctx, id, "skip", func(s *Session, now time.Time) error {
		return s.SkipTrial(m.drawer, now)
	})
}

// Abort discards a running test.
func (m *Manager) Abort(ctx context.Context, id string) (*Session, error) {
	return m.do(ctx, id, "abort", func(s *Session, now time.Time) error {
		return s.Abort(now)
	})
}

// Next stores the answers and moves to the next questionnaire page.
func (m *Manager) Next(ctx context.Context, id string, a Answers) (*Session, error) {
	return m.do(ctx, id, "next", func(s *Session, now time.Time) error {
		if s.Phase != PhaseQuestionnaireIntro {
			if err := s.Answer(a, now); err != nil {
				return err
			}
		}
		return s.Next(now)
	})
}

// Back stores the answers and moves one questionnaire page back.
func (m *Manager) Back(ctx context.Context, id string, a Answers) (*Session, error) {
	return m.do(ctx, id, "back", func(s *Session, now time.Time) error {
		if err := s.Answer(a, now); err != nil {
			return err
		}
		return s.Back(now)
	})
}

// Submit stores the answers and finalizes the questionnaire. On
// ErrIncompleteQuestionnaire the answers given so far are kept.
func (m *Manager) Submit(ctx context.Context, id string, a Answers) (*Session, error) {
	var answered bool
	s, err := m.do(ctx, id, "submit", func(s *Session, now time.Time) error {
		if err := s.Answer(a, now); err != nil {
			return err
		}
		answered = true
		return s.Submit(now)
	})
	if err != nil && answered && errors.Is(err, ErrIncompleteQuestionnaire) {
		if _, saveErr := m.do(ctx, id, "answer", func(s *Session, now time.Time) error {
			return s.Answer(a, now)
		}); saveErr != nil {
			m.log.Warn("Failed to keep partial answers", zap.String("session_id", id), zap.Error(saveErr))
		}
	}
	return s, err
}

// Reset leaves the results and starts over.
func (m *Manager) Reset(ctx context.Context, id string) (*Session, error) {
	return m.do(ctx, id, "reset", func(s *Session, now time.Time) error {
		return s.Reset(now)
	})
}

// Delete removes a session and its timer.
func (m *Manager) Delete(ctx context.Context, id string) error {
	unlock := m.locks.Lock(id)
	defer unlock()
	m.stopTimer(id)
	return m.store.Delete(ctx, id)
}

// Sweep removes sessions idle for longer than ttl, if the store needs it.
// Each session is re-checked under its lock, so one that was used after it
// was listed survives.
func (m *Manager) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	lister, ok := m.store.(IdleLister)
	if !ok {
		return 0, nil
	}
	idleSince := m.clock.Now().Add(-ttl)
	ids, err := lister.Idle(ctx, idleSince)
	if err != nil {
		return 0, fmt.Errorf("list idle sessions: %w", err)
	}
	removed := 0
	for _, id := range ids {
		ok, err := m.sweepOne(ctx, id, idleSince)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (m *Manager) sweepOne(ctx context.Context, id string, idleSince time.Time) (bool, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	s, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !s.UpdatedAt.Before(idleSince) {
		return false, nil
	}
	m.stopTimer(id)
	if err := m.store.Delete(ctx, id); err != nil {
		return false, fmt.Errorf("delete idle session: %w", err)
	}
	return true, nil
}

// Close stops all pending memorize timers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

// PendingTimers returns the number of armed memorize timers.
func (m *Manager) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// do loads the session under its lock, applies the memorize deadline, runs
// fn and then handles timers and persistence for whatever transition fn made.
func (m *Manager) do(ctx context.Context, id, action string, fn func(*Session, time.Time) error) (*Session, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	before := s.Clone()
	dirty := s.CheckDeadline(now)
	if dirty {
		m.log.Debug("Memorize deadline reached",
			zap.String("session_id", id),
			zap.Int("trial", s.TrialIndex+1),
		)
	}

	var actionErr error
	if fn != nil {
		switch actionErr = fn(s, now); {
		case actionErr == nil:
			dirty = true
		case errors.Is(actionErr, errStale):
			actionErr = nil
		}
	}
	if !dirty {
		return s, actionErr
	}

	if actionErr != nil {
		// Only the deadline moved; keep that and discard the failed action.
		s = before
		s.CheckDeadline(now)
	}

	m.afterTransition(ctx, before, s, now)

	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	if actionErr == nil && action != "get" {
		m.log.Debug("Session action applied",
			zap.String("session_id", id),
			zap.String("action", action),
			zap.String("from", string(before.Phase)),
			zap.String("to", string(s.Phase)),
		)
	}
	return s, actionErr
}

func (m *Manager) afterTransition(ctx context.Context, before, after *Session, now time.Time) {
	newTrial := after.Phase == PhaseMemorize &&
		(before.Phase != PhaseMemorize || before.TrialIndex != after.TrialIndex)
	switch {
	case newTrial:
		m.armTimer(after.ID, after.MemorizeDeadline.Sub(now))
	case after.Phase != PhaseMemorize:
		m.stopTimer(after.ID)
	}

	if before.Phase == PhaseRecall && after.Phase == PhaseQuestionnaireIntro {
		m.record(ctx, after, "trials", now)
	}
	if before.Phase == PhaseQuestionnaireB && after.Phase == PhaseResults {
		m.record(ctx, after, "questionnaire", now)
	}
}

func (m *Manager) record(ctx context.Context, s *Session, stage string, now time.Time) {
	if m.recorder == nil {
		return
	}
	rec := s.Record(now)
	var err error
	switch stage {
	case "trials":
		err = m.recorder.RecordTrials(ctx, rec)
	default:
		err = m.recorder.RecordQuestionnaire(ctx, rec)
	}
	if err == nil {
		m.log.Info("Record persisted",
			zap.String("session_id", s.ID),
			zap.String("participant_id", rec.ParticipantID),
			zap.String("stage", stage),
		)
		return
	}

	perr := &PersistenceError{Stage: stage, Err: err}
	s.PersistWarning = "Your " + stage + " could not be saved. Please inform the study team."
	m.log.Warn("Failed to persist record",
		zap.String("session_id", s.ID),
		zap.String("participant_id", rec.ParticipantID),
		zap.Error(perr),
	)
}

func (m *Manager) armTimer(id string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[id]; ok {
		t.Stop()
	}
	m.timers[id] = m.clock.AfterFunc(d, func() { m.expire(id) })
}

func (m *Manager) stopTimer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) expire(id string) {
	if _, err := m.Get(context.Background(), id); err != nil && !errors.Is(err, ErrNotFound) {
		m.log.Error("Failed to apply memorize deadline", zap.String("session_id", id), zap.Error(err))
	}
}

type refLock struct {
	sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
