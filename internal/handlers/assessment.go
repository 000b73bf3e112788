package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"memtest-go/internal/models"
	"memtest-go/internal/session"
	"memtest-go/internal/views"
)

// SessionIDKey is the gin context key holding the participant's session ID.
const SessionIDKey = "session_id"

// Engine is the session API the handlers drive.
type Engine interface {
	Now() time.Time
	Get(ctx context.Context, id string) (*session.Session, error)
	SubmitIntake(ctx context.Context, id string, form session.IntakeForm) (*session.Session, error)
	Begin(ctx context.Context, id string) (*session.Session, error)
	FinishMemorize(ctx context.Context, id string, trial int) (*session.Session, error)
	Select(ctx context.Context, id, symbol string) (*session.Session, error)
	ClearSelection(ctx context.Context, id string) (*session.Session, error)
	SkipTrial(ctx context.Context, id string) (*session.Session, error)
	Abort(ctx context.Context, id string) (*session.Session, error)
	Next(ctx context.Context, id string, a session.Answers) (*session.Session, error)
	Back(ctx context.Context, id string, a session.Answers) (*session.Session, error)
	Submit(ctx context.Context, id string, a session.Answers) (*session.Session, error)
	Reset(ctx context.Context, id string) (*session.Session, error)
}

// AssessmentHandler serves the participant flow. Every handler dispatches one
// intent to the engine and renders whatever phase the session is in afterwards.
type AssessmentHandler struct {
	log           *zap.Logger
	engine        Engine
	questionnaire *models.QuestionnaireDef
	charts        *ResultsHandler
}

func NewAssessmentHandler(log *zap.Logger, engine Engine, questionnaire *models.QuestionnaireDef, charts *ResultsHandler) *AssessmentHandler {
	return &AssessmentHandler{log: log, engine: engine, questionnaire: questionnaire, charts: charts}
}

// Show renders the current phase. Memorize pages poll this after the deadline.
func (h *AssessmentHandler) Show(c *gin.Context) {
	s, err := h.engine.Get(c.Request.Context(), sessionID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, h.page(c, s))
}

func (h *AssessmentHandler) Intake(c *gin.Context) {
	var form session.IntakeForm
	if err := c.ShouldBind(&form); err != nil {
		c.String(http.StatusBadRequest, "Invalid form data")
		return
	}
	s, err := h.engine.SubmitIntake(c.Request.Context(), sessionID(c), form)
	var verr *session.ValidationError
	if errors.As(err, &verr) {
		// Nothing changed; show the form again with the message.
		p := h.page(c, s)
		p.Error = verr.Message()
		p.Form = form
		h.render(c, http.StatusOK, p)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("Participant registered",
		zap.String("session_id", s.ID),
		zap.String("participant_id", s.Participant.ID),
		zap.String("variant", string(s.Variant)),
	)
	h.render(c, http.StatusOK, h.page(c, s))
}

func (h *AssessmentHandler) Begin(c *gin.Context) {
	h.dispatch(c, h.engine.Begin)
}

// FinishMemorize ends the memorize phase of the trial named in the form, so
// that a late request cannot end the following trial.
func (h *AssessmentHandler) FinishMemorize(c *gin.Context) {
	trial, err := strconv.Atoi(c.PostForm("trial"))
	if err != nil || trial < 0 {
		c.String(http.StatusBadRequest, "Invalid form data")
		return
	}
	h.dispatch(c, func(ctx context.Context, id string) (*session.Session, error) {
		return h.engine.FinishMemorize(ctx, id, trial)
	})
}

func (h *AssessmentHandler) Select(c *gin.Context) {
	symbol := c.PostForm("symbol")
	h.dispatch(c, func(ctx context.Context, id string) (*session.Session, error) {
		return h.engine.Select(ctx, id, symbol)
	})
}

func (h *AssessmentHandler) ClearSelection(c *gin.Context) {
	h.dispatch(c, h.engine.ClearSelection)
}

func (h *AssessmentHandler) Skip(c *gin.Context) {
	h.dispatch(c, h.engine.SkipTrial)
}

func (h *AssessmentHandler) Abort(c *gin.Context) {
	h.dispatch(c, h.engine.Abort)
}

func (h *AssessmentHandler) Reset(c *gin.Context) {
	h.dispatch(c, h.engine.Reset)
}

func (h *AssessmentHandler) NextPage(c *gin.Context) {
	h.answer(c, h.engine.Next)
}

func (h *AssessmentHandler) PreviousPage(c *gin.Context) {
	h.answer(c, h.engine.Back)
}

func (h *AssessmentHandler) Submit(c *gin.Context) {
	h.answer(c, h.engine.Submit)
}

func (h *AssessmentHandler) answer(c *gin.Context, op func(context.Context, string, session.Answers) (*session.Session, error)) {
	answers, err := parseAnswers(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	s, err := op(ctx, sessionID(c), answers)
	if errors.Is(err, session.ErrIncompleteQuestionnaire) {
		// The answers given so far were kept; reload them for the page.
		if s, err = h.engine.Get(ctx, sessionID(c)); err != nil {
			h.fail(c, err)
			return
		}
		p := h.page(c, s)
		p.Error = missingMessage(s.Questionnaire.Missing())
		h.render(c, http.StatusOK, p)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, h.page(c, s))
}

func (h *AssessmentHandler) dispatch(c *gin.Context, op func(context.Context, string) (*session.Session, error)) {
	s, err := op(c.Request.Context(), sessionID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, h.page(c, s))
}

func (h *AssessmentHandler) page(c *gin.Context, s *session.Session) views.Page {
	csrfToken, _ := c.Get("csrf_token")
	cspNonce, _ := c.Get("csp_nonce")
	p := views.Page{
		Session:       s,
		Questionnaire: h.questionnaire,
		CSRFToken:     asString(csrfToken),
		Nonce:         asString(cspNonce),
		Now:           h.engine.Now(),
	}
	if s != nil && s.Phase == session.PhaseResults && h.charts != nil {
		p.ChartJSON = h.charts.ChartJSON(c.Request.Context(), s)
	}
	return p
}

// render sends the phase fragment to htmx and the full document otherwise.
func (h *AssessmentHandler) render(c *gin.Context, status int, p views.Page) {
	if p.Session == nil {
		h.fail(c, session.ErrNotFound)
		return
	}
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	component := views.Phase(p)
	var err error
	if c.GetHeader("HX-Request") == "true" {
		err = component.Render(c.Request.Context(), c.Writer)
	} else {
		err = views.Layout(p.Title(), p.CSRFToken, p.Nonce).Render(templ.WithChildren(c.Request.Context(), component), c.Writer)
	}
	if err != nil {
		h.log.Error("Failed to render page", zap.String("session_id", p.Session.ID), zap.Error(err))
	}
}

// fail maps engine errors to HTTP responses.
func (h *AssessmentHandler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	fields := []zap.Field{zap.String("session_id", sessionID(c)), zap.Int("status", status), zap.Error(err)}
	switch {
	case status >= 500:
		h.log.Error("Session action failed", fields...)
	default:
		h.log.Debug("Session action rejected", fields...)
	}

	if c.GetHeader("HX-Request") == "true" && (status == http.StatusConflict || status == http.StatusNotFound) {
		// Let the browser reload whatever phase the session is really in.
		c.Header("HX-Refresh", "true")
	}
	msg := "Something went wrong. Please try again."
	switch status {
	case http.StatusConflict:
		msg = "This action is not possible right now. The page will reload."
	case http.StatusNotFound:
		msg = "Your session has expired. Please start again."
	case http.StatusBadRequest:
		msg = "Invalid input."
	}
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	_ = views.Error(msg).Render(c.Request.Context(), c.Writer)
	c.Abort()
}

// StatusFor returns the HTTP status for an engine error.
func StatusFor(err error) int {
	var verr *session.ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidRating), errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrIncompleteQuestionnaire):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// parseAnswers reads q1..q7 and free_text. Missing fields are left untouched.
func parseAnswers(c *gin.Context) (session.Answers, error) {
	a := session.Answers{Ratings: make(map[int]int)}
	for i := 1; i <= session.RatingCount; i++ {
		raw, ok := c.GetPostForm("q" + strconv.Itoa(i))
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return a, fmt.Errorf("%w: q%d=%q", session.ErrInvalidRating, i, raw)
		}
		a.Ratings[i-1] = v
	}
	if text, ok := c.GetPostForm("free_text"); ok {
		text = strings.TrimSpace(text)
		a.FreeText = &text
	}
	return a, nil
}

func missingMessage(missing []int) string {
	parts := make([]string, len(missing))
	for i, n := range missing {
		parts[i] = strconv.Itoa(n)
	}
	return "Please answer all statements. Missing: " + strings.Join(parts, ", ") + "."
}

func sessionID(c *gin.Context) string {
	return c.GetString(SessionIDKey)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
