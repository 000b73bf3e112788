package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores for unknown session IDs.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidTransition is returned when an action is not allowed in the current phase.
	ErrInvalidTransition = errors.New("action not allowed in current phase")
	// ErrIncompleteQuestionnaire is returned when a rating is still unanswered on submit.
	ErrIncompleteQuestionnaire = errors.New("questionnaire incomplete")
	// ErrInvalidRating is returned for ratings outside the scale or unknown items.
	ErrInvalidRating = errors.New("invalid rating")

	// errStale marks a request that no longer applies and is answered with
	// the current state.
	errStale = errors.New("stale request")
)

// Validation error codes for the intake form.
const (
	CodeMotherTooShort = "mother-initials-too-short"
	CodeFatherTooShort = "father-initials-too-short"
	CodeBirthYear      = "birth-year-not-4-digits"
	CodeAgeRange       = "age-out-of-range"
	CodeGender         = "gender-invalid"
)

// ValidationError describes the first intake field that failed validation.
type ValidationError struct {
	Field string
	Code  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Code)
}

// Message is the text shown to the participant.
func (e *ValidationError) Message() string {
	switch e.Code {
	case CodeMotherTooShort:
		return "Your mother's first name must contain at least 2 letters."
	case CodeFatherTooShort:
		return "Your father's first name must contain at least 2 letters."
	case CodeBirthYear:
		return "Birth year must have exactly 4 digits (e.g. 1990)."
	case CodeAgeRange:
		return "Please enter a valid age."
	case CodeGender:
		return "Please select a gender."
	default:
		return "Please check your input."
	}
}

// PersistenceError wraps a failed hand-off to the results store. It never
// blocks the session flow.
type PersistenceError struct {
	Stage string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func invalidTransition(action string, p Phase) error {
	return fmt.Errorf("%w: %s during %s", ErrInvalidTransition, action, p)
}
