package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memtest-go/internal/symbols"
)

// fixedDrawer always draws the first n catalog symbols in catalog order.
type fixedDrawer struct {
	variant symbols.Variant
}

func (d fixedDrawer) Generate(size int) ([]string, error) {
	if size < 1 || size > symbols.Count {
		return nil, symbols.ErrSizeOutOfRange
	}
	return append([]string(nil), symbols.Names()[:size]...), nil
}

func (d fixedDrawer) Variant() symbols.Variant {
	if d.variant == "" {
		return symbols.VariantColor
	}
	return d.variant
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func validForm() IntakeForm {
	return IntakeForm{MotherName: "Maria", FatherName: "Bert", BirthYear: "1990", Age: "34", Gender: "F"}
}

// startedSession returns a session in the memorize phase of trial 1.
func startedSession(t *testing.T, now time.Time) *Session {
	t.Helper()
	s := New("s1", DefaultSettings(), now)
	require.NoError(t, s.SubmitIntake(validForm(), fixedDrawer{}, now))
	require.NoError(t, s.Begin(fixedDrawer{}, now))
	return s
}

func recallAll(t *testing.T, s *Session, now time.Time) {
	t.Helper()
	tr := s.CurrentTrial()
	require.NotNil(t, tr)
	for _, name := range tr.Target {
		_, err := s.Select(name, fixedDrawer{}, now)
		require.NoError(t, err)
	}
}

func TestParticipantID(t *testing.T) {
	id, err := ParticipantID("Maria", "Bert", "1990")
	require.NoError(t, err)
	assert.Equal(t, "MART1990", id)

	id, err = ParticipantID("ma", "robert", "1990")
	require.NoError(t, err)
	assert.Equal(t, "MART1990", id)

	id, err = ParticipantID("Al", "robert", "1990")
	require.NoError(t, err)
	assert.Equal(t, "ALRT1990", id)

	id, err = ParticipantID(" an-na ", "jörg", "2001")
	require.NoError(t, err)
	assert.Equal(t, "ANRG2001", id)
}

func TestIntakeValidation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(f *IntakeForm)
		field string
		code  string
	}{
		{"mother one letter", func(f *IntakeForm) { f.MotherName = "A" }, "mother", CodeMotherTooShort},
		{"mother digits only", func(f *IntakeForm) { f.MotherName = "12" }, "mother", CodeMotherTooShort},
		{"father one letter", func(f *IntakeForm) { f.FatherName = "B" }, "father", CodeFatherTooShort},
		{"year three digits", func(f *IntakeForm) { f.BirthYear = "199" }, "birth_year", CodeBirthYear},
		{"year five digits", func(f *IntakeForm) { f.BirthYear = "19900" }, "birth_year", CodeBirthYear},
		{"year letters", func(f *IntakeForm) { f.BirthYear = "19x0" }, "birth_year", CodeBirthYear},
		{"age zero", func(f *IntakeForm) { f.Age = "0" }, "age", CodeAgeRange},
		{"age too high", func(f *IntakeForm) { f.Age = "130" }, "age", CodeAgeRange},
		{"age text", func(f *IntakeForm) { f.Age = "old" }, "age", CodeAgeRange},
		{"gender missing", func(f *IntakeForm) { f.Gender = "" }, "gender", CodeGender},
		{"gender unknown", func(f *IntakeForm) { f.Gender = "X" }, "gender", CodeGender},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := validForm()
			tc.edit(&f)
			s := New("s1", DefaultSettings(), t0)
			err := s.SubmitIntake(f, fixedDrawer{}, t0)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.Equal(t, tc.code, verr.Code)
			assert.NotEmpty(t, verr.Message())
			assert.Equal(t, PhaseIntake, s.Phase)
			assert.Nil(t, s.Participant)
		})
	}
}

func TestIntakeAcceptsBoundaryAges(t *testing.T) {
	for _, age := range []string{"1", "129", " 42 "} {
		f := validForm()
		f.Age = age
		_, err := f.Validate()
		assert.NoError(t, err, age)
	}
}

func TestSubmitIntakeAssignsVariant(t *testing.T) {
	s := New("s1", DefaultSettings(), t0)
	require.NoError(t, s.SubmitIntake(validForm(), fixedDrawer{variant: symbols.VariantMonochrome}, t0))

	assert.Equal(t, PhaseInstructions, s.Phase)
	assert.Equal(t, symbols.VariantMonochrome, s.Variant)
	require.NotNil(t, s.Participant)
	assert.Equal(t, "MART1990", s.Participant.ID)
	assert.Equal(t, 34, s.Participant.Age)
	assert.Equal(t, GenderFemale, s.Participant.Gender)
}

func TestBeginStartsFirstTrial(t *testing.T) {
	s := startedSession(t, t0)

	assert.Equal(t, PhaseMemorize, s.Phase)
	tr := s.CurrentTrial()
	require.NotNil(t, tr)
	assert.Equal(t, 3, tr.Size)
	assert.Len(t, tr.Target, 3)
	assert.Empty(t, tr.Selected)
	assert.Equal(t, t0.Add(30*time.Second), s.MemorizeDeadline)
	assert.Equal(t, 30*time.Second, s.Remaining(t0))
}

func TestMemorizeTiming(t *testing.T) {
	s := startedSession(t, t0)
	done := t0.Add(12345 * time.Millisecond)

	require.NoError(t, s.FinishMemorize(done))
	assert.Equal(t, PhaseRecall, s.Phase)
	assert.Equal(t, 12.345, s.Trials[0].MemorizeSeconds)
	assert.Equal(t, done, s.Trials[0].RecallStartedAt)
}

func TestMemorizeDeadlineClamps(t *testing.T) {
	s := startedSession(t, t0)

	assert.False(t, s.CheckDeadline(t0.Add(29*time.Second)))
	assert.Equal(t, PhaseMemorize, s.Phase)

	late := t0.Add(31500 * time.Millisecond)
	assert.True(t, s.CheckDeadline(late))
	assert.Equal(t, PhaseRecall, s.Phase)
	assert.Equal(t, 30.0, s.Trials[0].MemorizeSeconds)
	assert.Equal(t, t0.Add(30*time.Second), s.Trials[0].RecallStartedAt)

	assert.False(t, s.CheckDeadline(late))
}

func TestPerfectRun(t *testing.T) {
	now := t0
	s := startedSession(t, now)

	for i, size := range []int{3, 4, 5, 6, 7} {
		require.Equal(t, PhaseMemorize, s.Phase, "trial %d", i+1)
		require.Equal(t, size, s.CurrentTrial().Size)
		now = now.Add(2 * time.Second)
		require.NoError(t, s.FinishMemorize(now))
		now = now.Add(time.Second)
		recallAll(t, s, now)
	}

	assert.Equal(t, PhaseQuestionnaireIntro, s.Phase)
	sum := s.Summary()
	assert.Equal(t, 5, sum.Trials)
	assert.Equal(t, 25, sum.TotalCorrect)
	assert.Equal(t, 25, sum.TotalPossible)
	assert.Equal(t, 100.0, sum.Percent)
	assert.Equal(t, 7, sum.HighestSpan)

	ms := s.Measurements()
	require.Len(t, ms, 5)
	for _, m := range ms {
		assert.Equal(t, 2.0, m.MemorizeSeconds)
		assert.Equal(t, 1.0, m.RecallSeconds)
		assert.Equal(t, m.Size, m.Correct)
	}
}

func TestSelectIgnoresDuplicatesAndUnknown(t *testing.T) {
	s := startedSession(t, t0)
	require.NoError(t, s.FinishMemorize(t0))
	target := s.CurrentTrial().Target

	ok, err := s.Select(target[0], fixedDrawer{}, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Select(target[0], fixedDrawer{}, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Select("hexagon", fixedDrawer{}, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{target[0]}, s.CurrentTrial().Selected)
}

func TestSelectOrderMatters(t *testing.T) {
	s := startedSession(t, t0)
	require.NoError(t, s.FinishMemorize(t0))
	target := s.CurrentTrial().Target

	for _, name := range []string{target[1], target[0], target[2]} {
		_, err := s.Select(name, fixedDrawer{}, t0)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.Trials[0].Correct)
	assert.Equal(t, PhaseMemorize, s.Phase)
	assert.Equal(t, 1, s.TrialIndex)
}

func TestSkipTrial(t *testing.T) {
	s := startedSession(t, t0)
	require.NoError(t, s.FinishMemorize(t0))
	_, err := s.Select(s.CurrentTrial().Target[0], fixedDrawer{}, t0)
	require.NoError(t, err)

	require.NoError(t, s.SkipTrial(fixedDrawer{}, t0.Add(4*time.Second)))
	first := s.Trials[0]
	assert.True(t, first.Skipped)
	assert.True(t, first.Complete)
	assert.Equal(t, 1, first.Correct)
	assert.Equal(t, 4.0, first.RecallSeconds)
	assert.Equal(t, PhaseMemorize, s.Phase)
	assert.Equal(t, 4, s.CurrentTrial().Size)
}

func TestClearSelectionKeepsRecallClock(t *testing.T) {
	s := startedSession(t, t0)
	assert.ErrorIs(t, s.ClearSelection(t0), ErrInvalidTransition)

	require.NoError(t, s.FinishMemorize(t0.Add(2*time.Second)))
	target := s.CurrentTrial().Target
	_, err := s.Select(target[2], fixedDrawer{}, t0.Add(3*time.Second))
	require.NoError(t, err)
	_, err = s.Select(target[0], fixedDrawer{}, t0.Add(4*time.Second))
	require.NoError(t, err)

	require.NoError(t, s.ClearSelection(t0.Add(5*time.Second)))
	assert.Empty(t, s.CurrentTrial().Selected)
	assert.Equal(t, PhaseRecall, s.Phase)
	assert.Equal(t, t0.Add(2*time.Second), s.CurrentTrial().RecallStartedAt)

	// Symbols can be picked again after clearing.
	for _, name := range target {
		_, err = s.Select(name, fixedDrawer{}, t0.Add(8*time.Second))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.Trials[0].Correct)
	assert.Equal(t, 6.0, s.Trials[0].RecallSeconds)
}

func TestAbortReturnsToIntake(t *testing.T) {
	s := startedSession(t, t0)
	require.NoError(t, s.FinishMemorize(t0))

	require.NoError(t, s.Abort(t0))
	assert.Equal(t, PhaseIntake, s.Phase)
	assert.Nil(t, s.Participant)
	assert.Empty(t, s.Trials)
	assert.True(t, s.MemorizeDeadline.IsZero())

	err := s.Abort(t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestInvalidTransitions(t *testing.T) {
	s := New("s1", DefaultSettings(), t0)

	assert.ErrorIs(t, s.Begin(fixedDrawer{}, t0), ErrInvalidTransition)
	assert.ErrorIs(t, s.FinishMemorize(t0), ErrInvalidTransition)
	assert.ErrorIs(t, s.SkipTrial(fixedDrawer{}, t0), ErrInvalidTransition)
	assert.ErrorIs(t, s.Next(t0), ErrInvalidTransition)
	assert.ErrorIs(t, s.OpenQuestionnaire(t0), ErrInvalidTransition)
	assert.ErrorIs(t, s.ClearSelection(t0), ErrInvalidTransition)
	assert.ErrorIs(t, s.Back(t0), ErrInvalidTransition)
	assert.ErrorIs(t, s.Submit(t0), ErrInvalidTransition)
	assert.ErrorIs(t, s.Reset(t0), ErrInvalidTransition)
	assert.ErrorIs(t, s.Rate(0, 4), ErrInvalidTransition)
	_, err := s.Select(symbols.Names()[0], fixedDrawer{}, t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, PhaseIntake, s.Phase)
}

// questionnaireSession returns a session that finished all trials.
func questionnaireSession(t *testing.T) *Session {
	t.Helper()
	s := startedSession(t, t0)
	for s.Phase == PhaseMemorize {
		require.NoError(t, s.FinishMemorize(t0))
		recallAll(t, s, t0)
	}
	require.Equal(t, PhaseQuestionnaireIntro, s.Phase)
	return s
}

func TestQuestionnaireNavigation(t *testing.T) {
	s := questionnaireSession(t)

	require.NoError(t, s.Next(t0))
	assert.Equal(t, PhaseQuestionnaireA, s.Phase)
	require.NoError(t, s.Rate(0, 5))

	require.NoError(t, s.Next(t0))
	assert.Equal(t, PhaseQuestionnaireB, s.Phase)
	require.NoError(t, s.Rate(5, 2))
	require.NoError(t, s.SetFreeText("story"))

	require.NoError(t, s.Back(t0))
	assert.Equal(t, PhaseQuestionnaireA, s.Phase)
	assert.Equal(t, 5, s.Questionnaire.Ratings[0])
	assert.Equal(t, 2, s.Questionnaire.Ratings[5])
	assert.Equal(t, "story", s.Questionnaire.FreeText)

	require.NoError(t, s.Back(t0))
	assert.Equal(t, PhaseQuestionnaireIntro, s.Phase)
	assert.ErrorIs(t, s.Back(t0), ErrInvalidTransition)
}

func TestSubmitRequiresAllRatings(t *testing.T) {
	s := questionnaireSession(t)
	require.NoError(t, s.Next(t0))
	require.NoError(t, s.Next(t0))

	ratings := []int{4, 4, 4, 4, 0, 4, 4}
	for i, r := range ratings {
		require.NoError(t, s.Rate(i, r))
	}

	err := s.Submit(t0)
	require.ErrorIs(t, err, ErrIncompleteQuestionnaire)
	assert.Contains(t, err.Error(), "[5]")
	assert.Equal(t, PhaseQuestionnaireB, s.Phase)
	assert.Equal(t, []int{5}, s.Questionnaire.Missing())

	require.NoError(t, s.Rate(4, 7))
	done := t0.Add(time.Minute)
	require.NoError(t, s.Submit(done))
	assert.Equal(t, PhaseResults, s.Phase)
	assert.Equal(t, done, s.CompletedAt)
}

func TestOpenQuestionnaireOnlyFromIntro(t *testing.T) {
	s := questionnaireSession(t)

	require.NoError(t, s.OpenQuestionnaire(t0))
	assert.Equal(t, PhaseQuestionnaireA, s.Phase)
	assert.ErrorIs(t, s.OpenQuestionnaire(t0), ErrInvalidTransition)
	assert.Equal(t, PhaseQuestionnaireA, s.Phase)
}

func TestFreeTextIsCapped(t *testing.T) {
	s := questionnaireSession(t)
	require.NoError(t, s.Next(t0))
	require.NoError(t, s.Next(t0))

	long := strings.Repeat("ä", DefaultFreeTextLimit+500)
	require.NoError(t, s.SetFreeText(long))
	assert.Equal(t, DefaultFreeTextLimit, len([]rune(s.Questionnaire.FreeText)))
	assert.True(t, strings.HasPrefix(long, s.Questionnaire.FreeText))

	s.Settings.FreeTextLimit = 5
	text := "short answer"
	require.NoError(t, s.Answer(Answers{FreeText: &text}, t0))
	assert.Equal(t, "short", s.Questionnaire.FreeText)

	require.NoError(t, s.SetFreeText("ok"))
	assert.Equal(t, "ok", s.Questionnaire.FreeText)
}

func TestRateRejectsOutOfScale(t *testing.T) {
	s := questionnaireSession(t)
	require.NoError(t, s.Next(t0))

	assert.ErrorIs(t, s.Rate(0, 8), ErrInvalidRating)
	assert.ErrorIs(t, s.Rate(0, -1), ErrInvalidRating)
	assert.ErrorIs(t, s.Rate(7, 3), ErrInvalidRating)
	assert.NoError(t, s.Rate(0, 0))
}

func TestAnswerIsAtomic(t *testing.T) {
	s := questionnaireSession(t)
	require.NoError(t, s.Next(t0))
	text := "rhymes"

	err := s.Answer(Answers{Ratings: map[int]int{0: 3, 1: 9}, FreeText: &text}, t0)
	assert.ErrorIs(t, err, ErrInvalidRating)
	assert.Equal(t, Questionnaire{}, s.Questionnaire)

	require.NoError(t, s.Answer(Answers{Ratings: map[int]int{0: 3, 1: 6}, FreeText: &text}, t0))
	assert.Equal(t, 3, s.Questionnaire.Ratings[0])
	assert.Equal(t, 6, s.Questionnaire.Ratings[1])
	assert.Equal(t, "rhymes", s.Questionnaire.FreeText)
}

func TestResetStartsOver(t *testing.T) {
	s := questionnaireSession(t)
	require.NoError(t, s.Next(t0))
	require.NoError(t, s.Next(t0))
	for i := 0; i < RatingCount; i++ {
		require.NoError(t, s.Rate(i, 4))
	}
	require.NoError(t, s.Submit(t0))

	require.NoError(t, s.Reset(t0))
	assert.Equal(t, PhaseIntake, s.Phase)
	assert.Nil(t, s.Participant)
	assert.Empty(t, s.Trials)
	assert.Equal(t, Questionnaire{}, s.Questionnaire)
	assert.True(t, s.CompletedAt.IsZero())
	assert.Equal(t, "s1", s.ID)
}

func TestRecordReflectsSession(t *testing.T) {
	s := questionnaireSession(t)
	rec := s.Record(t0)

	assert.Equal(t, "s1", rec.SessionID)
	assert.Equal(t, "MART1990", rec.ParticipantID)
	assert.Equal(t, 34, rec.Age)
	assert.Equal(t, GenderFemale, rec.Gender)
	assert.Equal(t, symbols.VariantColor, rec.Variant)
	assert.Len(t, rec.Trials, 5)
	assert.Equal(t, 25, rec.Summary.TotalCorrect)
}

func TestCloneIsDeep(t *testing.T) {
	s := startedSession(t, t0)
	c := s.Clone()

	c.Trials[0].Target[0] = "changed"
	c.Participant.ID = "OTHER"
	c.Settings.TrialSizes[0] = 9

	assert.NotEqual(t, "changed", s.Trials[0].Target[0])
	assert.Equal(t, "MART1990", s.Participant.ID)
	assert.Equal(t, 3, s.Settings.TrialSizes[0])
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())
	assert.Error(t, Settings{MemorizeLimit: time.Second}.Validate())
	assert.True(t, errors.Is(Settings{TrialSizes: []int{17}, MemorizeLimit: time.Second}.Validate(), symbols.ErrSizeOutOfRange))
	assert.Error(t, Settings{TrialSizes: []int{3}}.Validate())
}
