package session

import (
	"strconv"
	"strings"

	"memtest-go/internal/utils"
)

// Gender as offered on the intake form.
type Gender string

const (
	GenderMale    Gender = "M"
	GenderFemale  Gender = "F"
	GenderDiverse Gender = "D"
)

const (
	minAge = 1
	maxAge = 129
)

// IntakeForm carries the raw intake fields as typed by the participant.
type IntakeForm struct {
	MotherName string `form:"mother" json:"mother"`
	FatherName string `form:"father" json:"father"`
	BirthYear  string `form:"birth_year" json:"birthYear"`
	Age        string `form:"age" json:"age"`
	Gender     string `form:"gender" json:"gender"`
}

// Participant is the validated identity of the person taking the test.
type Participant struct {
	ID     string `json:"id"`
	Age    int    `json:"age"`
	Gender Gender `json:"gender"`
}

// ParticipantID builds the pseudonymous ID: first two letters of the
// mother's first name, last two letters of the father's first name and the
// birth year.
func ParticipantID(mother, father, birthYear string) (string, error) {
	m := []rune(utils.LettersUpper(mother))
	if len(m) < 2 {
		return "", &ValidationError{Field: "mother", Code: CodeMotherTooShort}
	}
	f := []rune(utils.LettersUpper(father))
	if len(f) < 2 {
		return "", &ValidationError{Field: "father", Code: CodeFatherTooShort}
	}
	year := strings.TrimSpace(birthYear)
	if !utils.IsDigits(year, 4) {
		return "", &ValidationError{Field: "birth_year", Code: CodeBirthYear}
	}
	return string(m[:2]) + string(f[len(f)-2:]) + year, nil
}

// Validate checks every field and returns the participant. The first failing
// field is reported.
func (f IntakeForm) Validate() (Participant, error) {
	id, err := ParticipantID(f.MotherName, f.FatherName, f.BirthYear)
	if err != nil {
		return Participant{}, err
	}

	ageStr := strings.TrimSpace(f.Age)
	if !utils.IsDigits(ageStr, 0) {
		return Participant{}, &ValidationError{Field: "age", Code: CodeAgeRange}
	}
	age, err := strconv.Atoi(ageStr)
	if err != nil || age < minAge || age > maxAge {
		return Participant{}, &ValidationError{Field: "age", Code: CodeAgeRange}
	}

	g := Gender(strings.ToUpper(strings.TrimSpace(f.Gender)))
	switch g {
	case GenderMale, GenderFemale, GenderDiverse:
	default:
		return Participant{}, &ValidationError{Field: "gender", Code: CodeGender}
	}

	return Participant{ID: id, Age: age, Gender: g}, nil
}
