package views

import (
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"

	"memtest-go/internal/metrics"
	"memtest-go/internal/models"
	"memtest-go/internal/session"
	"memtest-go/internal/symbols"
)

// Page is everything a phase view needs.
type Page struct {
	Session       *session.Session
	Questionnaire *models.QuestionnaireDef
	CSRFToken     string
	Nonce         string
	Now           time.Time
	// Error is shown above the current phase, e.g. an intake validation message.
	Error string
	// Form refills the intake fields after a failed submission.
	Form session.IntakeForm
	// ChartJSON holds echarts options for the results page.
	ChartJSON string
}

// Title is the document title of the current phase.
func (p Page) Title() string {
	switch p.Session.Phase {
	case session.PhaseQuestionnaireIntro, session.PhaseQuestionnaireA, session.PhaseQuestionnaireB:
		return "Questionnaire"
	case session.PhaseResults:
		return "Your results"
	default:
		return "Memory test"
	}
}

// Phase renders the view of the session's current phase.
func Phase(p Page) templ.Component {
	s := p.Session
	switch s.Phase {
	case session.PhaseInstructions:
		return Instructions(p)
	case session.PhaseMemorize, session.PhaseRecall:
		t := s.CurrentTrial()
		if t == nil {
			return Error("This sequence is not available. Please start again.")
		}
		if s.Phase == session.PhaseMemorize {
			return Memorize(p, t)
		}
		return Recall(p, t)
	case session.PhaseQuestionnaireIntro:
		return QuestionnaireIntro(p)
	case session.PhaseQuestionnaireA, session.PhaseQuestionnaireB:
		if p.Questionnaire == nil {
			return Error("The questionnaire is not available.")
		}
		section := models.SectionA
		if s.Phase == session.PhaseQuestionnaireB {
			section = models.SectionB
		}
		return QuestionnaireSection(p, section)
	case session.PhaseResults:
		return Results(p)
	default:
		return Intake(p)
	}
}

type option struct {
	value, label string
}

var genders = []option{
	{string(session.GenderMale), "Male"},
	{string(session.GenderFemale), "Female"},
	{string(session.GenderDiverse), "Diverse"},
}

// numberedItem is a questionnaire statement with its 1-based number.
type numberedItem struct {
	Number int
	Text   string
}

func (n numberedItem) Field() string { return "q" + strconv.Itoa(n.Number) }

func sectionItems(q *models.QuestionnaireDef, section string) []numberedItem {
	items, offset := q.Section(section)
	out := make([]numberedItem, len(items))
	for i, item := range items {
		out[i] = numberedItem{Number: offset + i + 1, Text: item.Text}
	}
	return out
}

func scaleValues() []int {
	values := make([]int, 0, session.RatingMax-session.RatingMin+1)
	for v := session.RatingMin; v <= session.RatingMax; v++ {
		values = append(values, v)
	}
	return values
}

func rated(s *session.Session, item numberedItem, value int) bool {
	return s.Questionnaire.Ratings[item.Number-1] == value
}

func scaleLabel(q *models.QuestionnaireDef, value int) string {
	for _, l := range q.Scale {
		if l.Value == value {
			return l.Label
		}
	}
	return strconv.Itoa(value)
}

func targetSymbols(t *session.Trial) []symbols.Symbol {
	out := make([]symbols.Symbol, 0, len(t.Target))
	for _, name := range t.Target {
		if sym, ok := symbols.Lookup(name); ok {
			out = append(out, sym)
		}
	}
	return out
}

func trialCount(p Page) string {
	return strconv.Itoa(len(p.Session.Settings.TrialSizes))
}

func sizesText(sizes []int) string {
	parts := make([]string, len(sizes))
	for i, size := range sizes {
		parts[i] = strconv.Itoa(size)
	}
	return strings.Join(parts, ", ")
}

func limitSeconds(p Page) string {
	return strconv.Itoa(int(p.Session.Settings.MemorizeLimit.Seconds()))
}

func remainingMs(p Page) string {
	return strconv.FormatInt(p.Session.Remaining(p.Now).Milliseconds(), 10)
}

// secondsLeft rounds the remaining memorize time up to whole seconds.
func secondsLeft(p Page) string {
	remaining := p.Session.Remaining(p.Now)
	return strconv.Itoa(int((remaining + time.Second - 1) / time.Second))
}

// reloadTrigger fetches the phase again shortly after the deadline.
func reloadTrigger(p Page) string {
	ms := p.Session.Remaining(p.Now).Milliseconds() + 100
	return "load delay:" + strconv.FormatInt(ms, 10) + "ms"
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func correctText(m metrics.Measurement) string {
	out := strconv.Itoa(m.Correct) + " / " + strconv.Itoa(m.Size)
	if m.Skipped {
		out += " (skipped)"
	}
	return out
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func csrfHeaders(token string) string {
	return `{"X-CSRF-Token": "` + token + `"}`
}
