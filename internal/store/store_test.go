package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memtest-go/internal/session"
	"memtest-go/internal/symbols"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func sampleSession(id string, now time.Time) *session.Session {
	s := session.New(id, session.DefaultSettings(), now)
	s.Phase = session.PhaseRecall
	s.Participant = &session.Participant{ID: "MART1990", Age: 34, Gender: session.GenderFemale}
	s.Variant = symbols.VariantMonochrome
	s.Trials = []session.Trial{{
		Size:              3,
		Target:            []string{"circle_f", "star_h", "arrow_up"},
		Selected:          []string{"circle_f"},
		MemorizeStartedAt: now,
		RecallStartedAt:   now.Add(4 * time.Second),
		MemorizeSeconds:   4,
	}}
	s.Questionnaire.Ratings[2] = 6
	return s
}

func assertSameSession(t *testing.T, want, got *session.Session) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Phase, got.Phase)
	assert.Equal(t, want.Variant, got.Variant)
	assert.Equal(t, *want.Participant, *got.Participant)
	assert.Equal(t, want.Settings, got.Settings)
	require.Len(t, got.Trials, len(want.Trials))
	assert.Equal(t, want.Trials[0].Target, got.Trials[0].Target)
	assert.Equal(t, want.Trials[0].Selected, got.Trials[0].Selected)
	assert.True(t, want.Trials[0].RecallStartedAt.Equal(got.Trials[0].RecallStartedAt))
	assert.Equal(t, want.Questionnaire, got.Questionnaire)
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s := sampleSession("a", t0)

	require.NoError(t, m.Save(ctx, s))
	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assertSameSession(t, s, got)

	got.Trials[0].Selected[0] = "square_f"
	again, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "circle_f", again.Trials[0].Selected[0])

	require.NoError(t, m.Delete(ctx, "a"))
	_, err = m.Get(ctx, "a")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestMemoryIdle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Save(ctx, sampleSession("old", t0)))
	require.NoError(t, m.Save(ctx, sampleSession("new", t0.Add(time.Hour))))

	ids, err := m.Idle(ctx, t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)
	assert.Equal(t, 2, m.Len())
}

func newTestRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), RedisOptions{Addr: mr.Addr(), TTL: ttl})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedisRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t, time.Hour)
	s := sampleSession("b", t0)

	require.NoError(t, r.Save(ctx, s))
	assert.True(t, mr.Exists(keyPrefix+"b"))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"b"))

	got, err := r.Get(ctx, "b")
	require.NoError(t, err)
	assertSameSession(t, s, got)

	require.NoError(t, r.Delete(ctx, "b"))
	_, err = r.Get(ctx, "b")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRedisExpiresIdleSessions(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t, time.Minute)
	require.NoError(t, r.Save(ctx, sampleSession("c", t0)))

	mr.FastForward(2 * time.Minute)
	_, err := r.Get(ctx, "c")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRedisCorruptPayload(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t, time.Minute)
	require.NoError(t, mr.Set(keyPrefix+"d", "{not json"))

	_, err := r.Get(ctx, "d")
	require.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrNotFound)
}

func TestNewRedisRequiresAddr(t *testing.T) {
	_, err := NewRedis(context.Background(), RedisOptions{})
	assert.Error(t, err)
}
