package session

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"memtest-go/internal/metrics"
	"memtest-go/internal/symbols"
)

// Phase is a state of the test flow.
type Phase string

const (
	PhaseIntake             Phase = "intake"
	PhaseInstructions       Phase = "instructions"
	PhaseMemorize           Phase = "memorize"
	PhaseRecall             Phase = "recall"
	PhaseQuestionnaireIntro Phase = "questionnaire_intro"
	PhaseQuestionnaireA     Phase = "questionnaire_a"
	PhaseQuestionnaireB     Phase = "questionnaire_b"
	PhaseResults            Phase = "results"
)

// RatingCount is the number of Likert items in the questionnaire.
const RatingCount = 7

// Rating scale bounds. Zero means unanswered.
const (
	RatingMin = 1
	RatingMax = 7
)

// Defaults used when no settings are configured.
var (
	DefaultTrialSizes    = []int{3, 4, 5, 6, 7}
	DefaultMemorizeLimit = 30 * time.Second
	DefaultFreeTextLimit = 2000
)

// Drawer supplies target sequences and the test variant.
type Drawer interface {
	Generate(size int) ([]string, error)
	Variant() symbols.Variant
}

// Settings fix the trial plan of a session when it is created.
type Settings struct {
	TrialSizes    []int         `json:"trialSizes"`
	MemorizeLimit time.Duration `json:"memorizeLimit"`
	// FreeTextLimit caps the free-text answer in characters.
	FreeTextLimit int `json:"freeTextLimit,omitempty"`
}

// Validate checks that every trial can be drawn from the catalog.
func (st Settings) Validate() error {
	if len(st.TrialSizes) == 0 {
		return errors.New("at least one trial size is required")
	}
	for _, size := range st.TrialSizes {
		if size < 1 || size > symbols.Count {
			return fmt.Errorf("%w: %d", symbols.ErrSizeOutOfRange, size)
		}
	}
	if st.MemorizeLimit <= 0 {
		return errors.New("memorize limit must be positive")
	}
	if st.FreeTextLimit < 0 {
		return errors.New("free text limit must not be negative")
	}
	return nil
}

// DefaultSettings returns the standard 3..7 plan with a 30 second cap.
func DefaultSettings() Settings {
	sizes := make([]int, len(DefaultTrialSizes))
	copy(sizes, DefaultTrialSizes)
	return Settings{TrialSizes: sizes, MemorizeLimit: DefaultMemorizeLimit, FreeTextLimit: DefaultFreeTextLimit}
}

// Trial is one memorize and recall round.
type Trial struct {
	Index             int       `json:"index"`
	Size              int       `json:"size"`
	Target            []string  `json:"target"`
	Selected          []string  `json:"selected"`
	MemorizeStartedAt time.Time `json:"memorizeStartedAt"`
	RecallStartedAt   time.Time `json:"recallStartedAt,omitempty"`
	MemorizeSeconds   float64   `json:"memorizeSeconds"`
	RecallSeconds     float64   `json:"recallSeconds"`
	Correct           int       `json:"correct"`
	Skipped           bool      `json:"skipped,omitempty"`
	Complete          bool      `json:"complete"`
}

// Measurement returns the values recorded for the trial.
func (t Trial) Measurement() metrics.Measurement {
	return metrics.Measurement{
		Size:            t.Size,
		MemorizeSeconds: t.MemorizeSeconds,
		RecallSeconds:   t.RecallSeconds,
		Correct:         t.Correct,
		Skipped:         t.Skipped,
	}
}

// IsSelected reports whether name was already picked during recall.
func (t Trial) IsSelected(name string) bool {
	for _, s := range t.Selected {
		if s == name {
			return true
		}
	}
	return false
}

// Questionnaire holds the self-assessment answers.
type Questionnaire struct {
	Ratings  [RatingCount]int `json:"ratings"`
	FreeText string           `json:"freeText"`
}

// Missing returns the 1-based numbers of unanswered items.
func (q Questionnaire) Missing() []int {
	var missing []int
	for i, r := range q.Ratings {
		if r == 0 {
			missing = append(missing, i+1)
		}
	}
	return missing
}

// Complete reports whether every rating has been answered.
func (q Questionnaire) Complete() bool {
	return len(q.Missing()) == 0
}

// Answers is a partial questionnaire update. Ratings are keyed by 0-based
// item index; a nil FreeText leaves the text unchanged.
type Answers struct {
	Ratings  map[int]int
	FreeText *string
}

// Session is the complete state of one participant's run.
type Session struct {
	ID               string          `json:"id"`
	Phase            Phase           `json:"phase"`
	Settings         Settings        `json:"settings"`
	Participant      *Participant    `json:"participant,omitempty"`
	Variant          symbols.Variant `json:"variant,omitempty"`
	TrialIndex       int             `json:"trialIndex"`
	Trials           []Trial         `json:"trials"`
	Questionnaire    Questionnaire   `json:"questionnaire"`
	MemorizeDeadline time.Time       `json:"memorizeDeadline,omitempty"`
	PersistWarning   string          `json:"persistWarning,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	CompletedAt      time.Time       `json:"completedAt,omitempty"`
}

// New returns a session waiting for intake.
func New(id string, settings Settings, now time.Time) *Session {
	if len(settings.TrialSizes) == 0 {
		settings.TrialSizes = DefaultSettings().TrialSizes
	}
	if settings.MemorizeLimit <= 0 {
		settings.MemorizeLimit = DefaultMemorizeLimit
	}
	if settings.FreeTextLimit <= 0 {
		settings.FreeTextLimit = DefaultFreeTextLimit
	}
	return &Session{
		ID:        id,
		Phase:     PhaseIntake,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CurrentTrial returns the trial being memorized or recalled.
func (s *Session) CurrentTrial() *Trial {
	if s.Phase != PhaseMemorize && s.Phase != PhaseRecall {
		return nil
	}
	if s.TrialIndex < 0 || s.TrialIndex >= len(s.Trials) {
		return nil
	}
	return &s.Trials[s.TrialIndex]
}

// Remaining is the memorize time left at now.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s.Phase != PhaseMemorize {
		return 0
	}
	d := s.MemorizeDeadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// SubmitIntake validates the form, assigns the participant and variant and
// moves to the instructions. Progress from any earlier run is cleared.
func (s *Session) SubmitIntake(form IntakeForm, d Drawer, now time.Time) error {
	if s.Phase != PhaseIntake {
		return invalidTransition("intake", s.Phase)
	}
	p, err := form.Validate()
	if err != nil {
		return err
	}
	s.clearProgress()
	s.Participant = &p
	s.Variant = d.Variant()
	s.Phase = PhaseInstructions
	s.touch(now)
	return nil
}

// Begin starts the first trial.
func (s *Session) Begin(d Drawer, now time.Time) error {
	if s.Phase != PhaseInstructions {
		return invalidTransition("begin", s.Phase)
	}
	return s.startTrial(0, d, now)
}

// FinishMemorize ends the memorize phase early or at the deadline. The
// recorded time never exceeds the limit.
func (s *Session) FinishMemorize(now time.Time) error {
	if s.Phase != PhaseMemorize {
		return invalidTransition("finish memorize", s.Phase)
	}
	t := &s.Trials[s.TrialIndex]
	t.MemorizeSeconds = metrics.ClampedElapsed(t.MemorizeStartedAt, now, s.Settings.MemorizeLimit)

	recallStart := now
	if now.After(s.MemorizeDeadline) {
		recallStart = s.MemorizeDeadline
	}
	t.RecallStartedAt = recallStart
	s.MemorizeDeadline = time.Time{}
	s.Phase = PhaseRecall
	s.touch(now)
	return nil
}

// CheckDeadline ends the memorize phase when its deadline has passed. It
// reports whether a transition happened.
func (s *Session) CheckDeadline(now time.Time) bool {
	if s.Phase != PhaseMemorize || now.Before(s.MemorizeDeadline) {
		return false
	}
	return s.FinishMemorize(now) == nil
}

// Select appends a symbol to the current recall. Unknown symbols, repeated
// symbols and selections past the target size are ignored; accepted reports
// whether the selection counted.
func (s *Session) Select(name string, d Drawer, now time.Time) (accepted bool, err error) {
	if s.Phase != PhaseRecall {
		return false, invalidTransition("select", s.Phase)
	}
	t := &s.Trials[s.TrialIndex]
	if _, ok := symbols.Lookup(name); !ok {
		return false, nil
	}
	if t.IsSelected(name) || len(t.Selected) >= t.Size {
		return false, nil
	}
	t.Selected = append(t.Selected, name)
	s.touch(now)
	if len(t.Selected) == t.Size {
		return true, s.completeTrial(false, d, now)
	}
	return true, nil
}

// ClearSelection discards the symbols picked so far in the current recall.
// The recall clock keeps running.
func (s *Session) ClearSelection(now time.Time) error {
	if s.Phase != PhaseRecall {
		return invalidTransition("clear selection", s.Phase)
	}
	s.Trials[s.TrialIndex].Selected = []string{}
	s.touch(now)
	return nil
}

// SkipTrial finishes the current recall with whatever was selected so far.
func (s *Session) SkipTrial(d Drawer, now time.Time) error {
	if s.Phase != PhaseRecall {
		return invalidTransition("skip", s.Phase)
	}
	return s.completeTrial(true, d, now)
}

// Abort discards a running test and returns to intake.
func (s *Session) Abort(now time.Time) error {
	if s.Phase != PhaseMemorize && s.Phase != PhaseRecall {
		return invalidTransition("abort", s.Phase)
	}
	s.restart(now)
	return nil
}

// Reset leaves the results page and starts over.
func (s *Session) Reset(now time.Time) error {
	if s.Phase != PhaseResults {
		return invalidTransition("reset", s.Phase)
	}
	s.restart(now)
	return nil
}

// OpenQuestionnaire leaves the intro page for the first rating section.
func (s *Session) OpenQuestionnaire(now time.Time) error {
	if s.Phase != PhaseQuestionnaireIntro {
		return invalidTransition("open questionnaire", s.Phase)
	}
	s.Phase = PhaseQuestionnaireA
	s.touch(now)
	return nil
}

// Next moves forward through the questionnaire pages.
func (s *Session) Next(now time.Time) error {
	switch s.Phase {
	case PhaseQuestionnaireIntro:
		return s.OpenQuestionnaire(now)
	case PhaseQuestionnaireA:
		s.Phase = PhaseQuestionnaireB
	default:
		return invalidTransition("next", s.Phase)
	}
	s.touch(now)
	return nil
}

// Back moves one questionnaire page back, keeping all answers.
func (s *Session) Back(now time.Time) error {
	switch s.Phase {
	case PhaseQuestionnaireA:
		s.Phase = PhaseQuestionnaireIntro
	case PhaseQuestionnaireB:
		s.Phase = PhaseQuestionnaireA
	default:
		return invalidTransition("back", s.Phase)
	}
	s.touch(now)
	return nil
}

// Rate stores a rating for the 0-based item. Zero clears the answer.
func (s *Session) Rate(item, value int) error {
	if s.Phase != PhaseQuestionnaireA && s.Phase != PhaseQuestionnaireB {
		return invalidTransition("rate", s.Phase)
	}
	if item < 0 || item >= RatingCount {
		return fmt.Errorf("%w: item %d", ErrInvalidRating, item+1)
	}
	if value != 0 && (value < RatingMin || value > RatingMax) {
		return fmt.Errorf("%w: item %d value %d", ErrInvalidRating, item+1, value)
	}
	s.Questionnaire.Ratings[item] = value
	return nil
}

// SetFreeText stores the free-text answer, cut to the configured limit.
func (s *Session) SetFreeText(text string) error {
	if s.Phase != PhaseQuestionnaireA && s.Phase != PhaseQuestionnaireB {
		return invalidTransition("free text", s.Phase)
	}
	s.Questionnaire.FreeText = truncate(text, s.freeTextLimit())
	return nil
}

func (s *Session) freeTextLimit() int {
	if s.Settings.FreeTextLimit > 0 {
		return s.Settings.FreeTextLimit
	}
	return DefaultFreeTextLimit
}

// truncate keeps at most n runes of text.
func truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

// Answer applies a batch of questionnaire answers. Nothing is stored if any
// rating is invalid.
func (s *Session) Answer(a Answers, now time.Time) error {
	backup := s.Questionnaire
	for item, value := range a.Ratings {
		if err := s.Rate(item, value); err != nil {
			s.Questionnaire = backup
			return err
		}
	}
	if a.FreeText != nil {
		if err := s.SetFreeText(*a.FreeText); err != nil {
			s.Questionnaire = backup
			return err
		}
	}
	s.touch(now)
	return nil
}

// Submit finalizes the questionnaire and shows the results.
func (s *Session) Submit(now time.Time) error {
	if s.Phase != PhaseQuestionnaireB {
		return invalidTransition("submit", s.Phase)
	}
	if missing := s.Questionnaire.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: unanswered items %v", ErrIncompleteQuestionnaire, missing)
	}
	s.Phase = PhaseResults
	s.CompletedAt = now
	s.touch(now)
	return nil
}

// Measurements returns the recorded values of all completed trials.
func (s *Session) Measurements() []metrics.Measurement {
	out := make([]metrics.Measurement, 0, len(s.Trials))
	for _, t := range s.Trials {
		if t.Complete {
			out = append(out, t.Measurement())
		}
	}
	return out
}

// Summary aggregates the completed trials.
func (s *Session) Summary() metrics.Summary {
	return metrics.Summarize(s.Measurements())
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	if s.Participant != nil {
		p := *s.Participant
		c.Participant = &p
	}
	c.Settings.TrialSizes = append([]int(nil), s.Settings.TrialSizes...)
	if s.Trials != nil {
		c.Trials = make([]Trial, len(s.Trials))
		for i, t := range s.Trials {
			t.Target = append([]string(nil), t.Target...)
			t.Selected = append([]string(nil), t.Selected...)
			c.Trials[i] = t
		}
	}
	return &c
}

func (s *Session) startTrial(i int, d Drawer, now time.Time) error {
	size := s.Settings.TrialSizes[i]
	target, err := d.Generate(size)
	if err != nil {
		return fmt.Errorf("generate trial %d: %w", i+1, err)
	}
	s.Trials = append(s.Trials, Trial{
		Index:             i,
		Size:              size,
		Target:            target,
		Selected:          []string{},
		MemorizeStartedAt: now,
	})
	s.TrialIndex = i
	s.MemorizeDeadline = now.Add(s.Settings.MemorizeLimit)
	s.Phase = PhaseMemorize
	s.touch(now)
	return nil
}

func (s *Session) completeTrial(skipped bool, d Drawer, now time.Time) error {
	t := &s.Trials[s.TrialIndex]
	t.RecallSeconds = metrics.Elapsed(t.RecallStartedAt, now)
	t.Correct = metrics.Score(t.Target, t.Selected)
	t.Skipped = skipped
	t.Complete = true

	next := s.TrialIndex + 1
	if next < len(s.Settings.TrialSizes) {
		return s.startTrial(next, d, now)
	}
	s.Phase = PhaseQuestionnaireIntro
	s.touch(now)
	return nil
}

func (s *Session) clearProgress() {
	s.Participant = nil
	s.Variant = ""
	s.TrialIndex = 0
	s.Trials = nil
	s.Questionnaire = Questionnaire{}
	s.MemorizeDeadline = time.Time{}
	s.PersistWarning = ""
	s.CompletedAt = time.Time{}
}

func (s *Session) restart(now time.Time) {
	s.clearProgress()
	s.Phase = PhaseIntake
	s.touch(now)
}

func (s *Session) touch(now time.Time) {
	s.UpdatedAt = now
}
