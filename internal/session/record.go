package session

import (
	"time"

	"memtest-go/internal/metrics"
	"memtest-go/internal/symbols"
)

// Record is the exportable summary of one participant's run. It is handed to
// the Recorder once after the last trial and once after the questionnaire.
type Record struct {
	SessionID     string                `json:"sessionId"`
	ParticipantID string                `json:"participantId"`
	Age           int                   `json:"age"`
	Gender        Gender                `json:"gender"`
	Variant       symbols.Variant       `json:"variant"`
	Trials        []metrics.Measurement `json:"trials"`
	Summary       metrics.Summary       `json:"summary"`
	Ratings       [RatingCount]int      `json:"ratings"`
	FreeText      string                `json:"freeText"`
	RecordedAt    time.Time             `json:"recordedAt"`
}

// Record assembles the current state into an exportable record.
func (s *Session) Record(now time.Time) Record {
	r := Record{
		SessionID:  s.ID,
		Variant:    s.Variant,
		Trials:     s.Measurements(),
		Summary:    s.Summary(),
		Ratings:    s.Questionnaire.Ratings,
		FreeText:   s.Questionnaire.FreeText,
		RecordedAt: now,
	}
	if s.Participant != nil {
		r.ParticipantID = s.Participant.ID
		r.Age = s.Participant.Age
		r.Gender = s.Participant.Gender
	}
	return r
}
