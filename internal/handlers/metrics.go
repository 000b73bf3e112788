package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"memtest-go/internal/metrics"
	"memtest-go/internal/session"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StateView is the JSON snapshot of a session served to scripts polling the
// flow. The target sequence is only included while it is being memorized.
type StateView struct {
	Phase       session.Phase    `json:"phase"`
	Variant     string           `json:"variant,omitempty"`
	Trial       int              `json:"trial,omitempty"`
	Trials      int              `json:"trials"`
	Size        int              `json:"size,omitempty"`
	RemainingMs int64            `json:"remainingMs,omitempty"`
	Selected    int              `json:"selected,omitempty"`
	Target      []string         `json:"target,omitempty"`
	Summary     *metrics.Summary `json:"summary,omitempty"`
	Warning     string           `json:"warning,omitempty"`
	Missing     []int            `json:"missing,omitempty"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type MetricsHandler struct {
	log    *zap.Logger
	engine Engine
	checks map[string]Pinger
}

// NewMetricsHandler serves the state snapshot and the health check. Each
// entry in checks is pinged by Health.
func NewMetricsHandler(log *zap.Logger, engine Engine, checks map[string]Pinger) *MetricsHandler {
	return &MetricsHandler{log: log, engine: engine, checks: checks}
}

// State returns the current session as JSON.
func (h *MetricsHandler) State(c *gin.Context) {
	s, err := h.engine.Get(c.Request.Context(), sessionID(c))
	if err != nil {
		status := StatusFor(err)
		if status >= 500 {
			h.log.Error("Failed to load session state", zap.String("session_id", sessionID(c)), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, NewStateView(s, h.engine.Now()))
}

// NewStateView builds the snapshot of s at now.
func NewStateView(s *session.Session, now time.Time) StateView {
	v := StateView{
		Phase:     s.Phase,
		Variant:   string(s.Variant),
		Trials:    len(s.Settings.TrialSizes),
		Warning:   s.PersistWarning,
		UpdatedAt: s.UpdatedAt,
	}
	if t := s.CurrentTrial(); t != nil {
		v.Trial = s.TrialIndex + 1
		v.Size = t.Size
		v.Selected = len(t.Selected)
		if s.Phase == session.PhaseMemorize {
			v.RemainingMs = s.Remaining(now).Milliseconds()
			v.Target = append([]string(nil), t.Target...)
		}
	}
	switch s.Phase {
	case session.PhaseQuestionnaireA, session.PhaseQuestionnaireB:
		v.Missing = s.Questionnaire.Missing()
	case session.PhaseResults:
		sum := s.Summary()
		v.Summary = &sum
	}
	return v
}

// Health pings every dependency and reports 503 if one is down.
func (h *MetricsHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(gin.H, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.log.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": results})
}
