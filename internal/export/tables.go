package export

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"memtest-go/internal/models"
	"memtest-go/internal/symbols"
)

// Sheet names, matching the variant labels.
const (
	SheetColor         = "COLOR"
	SheetMonochrome    = "MONOCHROME"
	SheetQuestionnaire = "QUESTIONNAIRE"
)

const dateLayout = "2006-01-02 15:04:05"

// Source provides the stored rows.
type Source interface {
	ListTrials(ctx context.Context, v symbols.Variant) ([]models.TrialResult, error)
	ListQuestionnaires(ctx context.Context) ([]models.QuestionnaireResult, error)
}

// Table is one exported sheet. Cells are string, int or float64.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Collect reads every result table and lays it out for export.
func Collect(ctx context.Context, src Source) ([]Table, error) {
	var tables []Table
	for _, v := range []symbols.Variant{symbols.VariantColor, symbols.VariantMonochrome} {
		rows, err := src.ListTrials(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("list %s trials: %w", v, err)
		}
		tables = append(tables, TrialTable(v.Label(), rows))
	}

	qs, err := src.ListQuestionnaires(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questionnaires: %w", err)
	}
	tables = append(tables, QuestionnaireTable(qs))
	return tables, nil
}

// TrialTable lays out trial rows as ID, Age, Gender, Variant followed by
// memorize time, recall time and correct count for every sequence size.
func TrialTable(name string, rows []models.TrialResult) Table {
	sizes := trialSizes(rows)
	header := []string{"ID", "Age", "Gender", "Variant"}
	for _, size := range sizes {
		header = append(header,
			fmt.Sprintf("%d_memorize", size),
			fmt.Sprintf("%d_recall", size),
			fmt.Sprintf("%d_correct", size),
		)
	}

	t := Table{Name: name, Header: header}
	for _, row := range rows {
		cells := []any{row.ParticipantID, row.Age, row.Gender, symbols.Variant(row.Variant).Label()}
		bySize := make(map[int]int, len(row.Trials))
		for i, m := range row.Trials {
			bySize[m.Size] = i
		}
		for _, size := range sizes {
			i, ok := bySize[size]
			if !ok {
				cells = append(cells, "", "", "")
				continue
			}
			m := row.Trials[i]
			cells = append(cells, m.MemorizeSeconds, m.RecallSeconds, m.Correct)
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// QuestionnaireTable lays out questionnaire rows as ID, Variant, Q1..Q7,
// the free text and the submission date.
func QuestionnaireTable(rows []models.QuestionnaireResult) Table {
	header := []string{"ID", "Variant"}
	for i := 1; i <= 7; i++ {
		header = append(header, "Q"+strconv.Itoa(i))
	}
	header = append(header, "Q8_text", "Date")

	t := Table{Name: SheetQuestionnaire, Header: header}
	for _, row := range rows {
		cells := []any{row.ParticipantID, symbols.Variant(row.Variant).Label()}
		for _, r := range row.Ratings() {
			cells = append(cells, r)
		}
		cells = append(cells, row.FreeText, row.SubmittedAt.UTC().Format(dateLayout))
		t.Rows = append(t.Rows, cells)
	}
	return t
}

func trialSizes(rows []models.TrialResult) []int {
	seen := make(map[int]bool)
	for _, row := range rows {
		for _, m := range row.Trials {
			seen[m.Size] = true
		}
	}
	sizes := make([]int, 0, len(seen))
	for size := range seen {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)
	return sizes
}

// cellString formats a cell for text output.
func cellString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
