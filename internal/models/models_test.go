package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memtest-go/internal/symbols"
)

func TestLoadDefaultQuestionnaire(t *testing.T) {
	q, err := LoadQuestionnaire("")
	require.NoError(t, err)
	assert.Len(t, q.Items, 7)
	assert.NotEmpty(t, q.FreeText.Prompt)
	assert.Equal(t, 2000, q.FreeText.MaxLength)

	a, offA := q.Section(SectionA)
	b, offB := q.Section(SectionB)
	assert.Len(t, a, 4)
	assert.Len(t, b, 3)
	assert.Equal(t, 0, offA)
	assert.Equal(t, 4, offB)
	assert.Equal(t, "q5", b[0].ID)
}

func TestParseQuestionnaireRejectsBadLayout(t *testing.T) {
	_, err := ParseQuestionnaire([]byte("items:\n  - {id: q1, section: A, text: x}\n"))
	assert.ErrorContains(t, err, "needs 7 items")

	swapped := `
items:
  - {id: q1, section: A, text: a}
  - {id: q2, section: A, text: b}
  - {id: q3, section: A, text: c}
  - {id: q4, section: B, text: d}
  - {id: q5, section: B, text: e}
  - {id: q6, section: B, text: f}
  - {id: q7, section: B, text: g}
`
	_, err = ParseQuestionnaire([]byte(swapped))
	assert.ErrorContains(t, err, "item 4")

	_, err = ParseQuestionnaire([]byte("items: [unclosed"))
	assert.Error(t, err)
}

func TestLoadQuestionnaireFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.yaml")
	require.NoError(t, os.WriteFile(path, defaultQuestionnaire, 0o600))

	q, err := LoadQuestionnaire(path)
	require.NoError(t, err)
	assert.Equal(t, "q1", q.Items[0].ID)

	_, err = LoadQuestionnaire(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTrialTable(t *testing.T) {
	assert.Equal(t, TableTrialsColor, TrialTable(symbols.VariantColor))
	assert.Equal(t, TableTrialsMonochrome, TrialTable(symbols.VariantMonochrome))
}
