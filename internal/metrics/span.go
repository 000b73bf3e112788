package metrics

// Measurement is what a finished trial contributes to the session record.
type Measurement struct {
	Size            int     `json:"size"`
	MemorizeSeconds float64 `json:"memorizeSeconds"`
	RecallSeconds   float64 `json:"recallSeconds"`
	Correct         int     `json:"correct"`
	Skipped         bool    `json:"skipped,omitempty"`
}

// Summary aggregates the measurements of one session.
type Summary struct {
	Trials              int     `json:"trials"`
	TotalCorrect        int     `json:"totalCorrect"`
	TotalPossible       int     `json:"totalPossible"`
	Percent             float64 `json:"percent"`
	HighestSpan         int     `json:"highestSpan"`
	PerfectTrials       int     `json:"perfectTrials"`
	SkippedTrials       int     `json:"skippedTrials"`
	MeanMemorizeSeconds float64 `json:"meanMemorizeSeconds"`
	MeanRecallSeconds   float64 `json:"meanRecallSeconds"`
}

// Score counts the positions where the selection matches the target.
// Only exact positional matches count.
func Score(target, selected []string) int {
	n := len(selected)
	if len(target) < n {
		n = len(target)
	}
	correct := 0
	for i := 0; i < n; i++ {
		if selected[i] == target[i] {
			correct++
		}
	}
	return correct
}

// Summarize computes the session summary. HighestSpan is the largest trial
// size that was reproduced without a single error.
func Summarize(ms []Measurement) Summary {
	s := Summary{Trials: len(ms)}
	if len(ms) == 0 {
		return s
	}

	var memorize, recall float64
	for _, m := range ms {
		s.TotalCorrect += m.Correct
		s.TotalPossible += m.Size
		memorize += m.MemorizeSeconds
		recall += m.RecallSeconds
		if m.Skipped {
			s.SkippedTrials++
		}
		if m.Size > 0 && m.Correct == m.Size {
			s.PerfectTrials++
			if m.Size > s.HighestSpan {
				s.HighestSpan = m.Size
			}
		}
	}

	if s.TotalPossible > 0 {
		s.Percent = RoundMillis(float64(s.TotalCorrect) / float64(s.TotalPossible) * 100)
	}
	s.MeanMemorizeSeconds = RoundMillis(memorize / float64(len(ms)))
	s.MeanRecallSeconds = RoundMillis(recall / float64(len(ms)))
	return s
}
