package repository

import (
	"context"
	"sort"

	"memtest-go/internal/symbols"
)

// SizeAverage is the mean outcome of all stored trials of one sequence size.
type SizeAverage struct {
	Size         int     `json:"size"`
	MeanCorrect  float64 `json:"meanCorrect"`
	MeanMemorize float64 `json:"meanMemorize"`
	MeanRecall   float64 `json:"meanRecall"`
	Participants int     `json:"participants"`
}

// GetSizeAverages aggregates the stored trials of a variant per sequence size,
// for comparing one participant against everyone tested so far.
func (r *Results) GetSizeAverages(ctx context.Context, v symbols.Variant) ([]SizeAverage, error) {
	rows, err := r.ListTrials(ctx, v)
	if err != nil {
		return nil, err
	}

	bySize := make(map[int]*SizeAverage)
	for _, row := range rows {
		for _, m := range row.Trials {
			avg, ok := bySize[m.Size]
			if !ok {
				avg = &SizeAverage{Size: m.Size}
				bySize[m.Size] = avg
			}
			avg.Participants++
			avg.MeanCorrect += float64(m.Correct)
			avg.MeanMemorize += m.MemorizeSeconds
			avg.MeanRecall += m.RecallSeconds
		}
	}

	out := make([]SizeAverage, 0, len(bySize))
	for _, avg := range bySize {
		n := float64(avg.Participants)
		avg.MeanCorrect /= n
		avg.MeanMemorize /= n
		avg.MeanRecall /= n
		out = append(out, *avg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Size < out[j].Size })
	return out, nil
}
