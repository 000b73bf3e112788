package models

import (
	"time"

	"gorm.io/datatypes"

	"memtest-go/internal/metrics"
	"memtest-go/internal/symbols"
)

// Result tables. Trial rows go to one table per variant.
const (
	TableTrialsColor      = "trial_results_color"
	TableTrialsMonochrome = "trial_results_monochrome"
	TableQuestionnaire    = "questionnaire_results"
)

// TrialTable returns the table that holds trial rows for v.
func TrialTable(v symbols.Variant) string {
	if v == symbols.VariantMonochrome {
		return TableTrialsMonochrome
	}
	return TableTrialsColor
}

// TrialResult is one participant's trial block. Rows are append-only. The
// struct is migrated into two tables, so it carries no named indexes.
type TrialResult struct {
	ID            uint   `gorm:"primaryKey"`
	SessionID     string `gorm:"size:36"`
	ParticipantID string `gorm:"size:32"`
	Age           int
	Gender        string `gorm:"size:1"`
	Variant       string `gorm:"size:16"`
	TotalCorrect  int
	TotalPossible int
	Percent       float64
	HighestSpan   int
	Trials        datatypes.JSONSlice[metrics.Measurement]
	CreatedAt     time.Time
}

// QuestionnaireResult holds the self-assessment answers of one participant.
type QuestionnaireResult struct {
	ID            uint   `gorm:"primaryKey"`
	SessionID     string `gorm:"size:36;index"`
	ParticipantID string `gorm:"size:32;index"`
	Variant       string `gorm:"size:16"`
	Q1            int
	Q2            int
	Q3            int
	Q4            int
	Q5            int
	Q6            int
	Q7            int
	FreeText      string `gorm:"type:text"`
	SubmittedAt   time.Time
}

func (QuestionnaireResult) TableName() string { return TableQuestionnaire }

// Ratings returns Q1..Q7 in order.
func (q QuestionnaireResult) Ratings() []int {
	return []int{q.Q1, q.Q2, q.Q3, q.Q4, q.Q5, q.Q6, q.Q7}
}
