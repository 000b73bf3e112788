package models

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Questionnaire sections.
const (
	SectionA = "A"
	SectionB = "B"
)

// Expected number of rating items per section.
const (
	itemsInA = 4
	itemsInB = 3
)

//go:embed questionnaire.yaml
var defaultQuestionnaire []byte

// Item is one Likert statement.
type Item struct {
	ID      string `yaml:"id"`
	Section string `yaml:"section"`
	Text    string `yaml:"text"`
}

// ScaleLabel names a point on the rating scale.
type ScaleLabel struct {
	Value int    `yaml:"value"`
	Label string `yaml:"label"`
}

// QuestionnaireDef holds the texts shown on the questionnaire pages.
type QuestionnaireDef struct {
	Title        string       `yaml:"title"`
	Introduction string       `yaml:"introduction"`
	Scale        []ScaleLabel `yaml:"scale"`
	Items        []Item       `yaml:"items"`
	FreeText     struct {
		Prompt    string `yaml:"prompt"`
		MaxLength int    `yaml:"max_length"`
	} `yaml:"free_text"`
}

// LoadQuestionnaire reads the questionnaire file. An empty path loads the
// built-in English version.
func LoadQuestionnaire(path string) (*QuestionnaireDef, error) {
	data := defaultQuestionnaire
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read questionnaire file: %w", err)
		}
	}
	return ParseQuestionnaire(data)
}

// ParseQuestionnaire decodes and validates a questionnaire definition.
func ParseQuestionnaire(data []byte) (*QuestionnaireDef, error) {
	var q QuestionnaireDef
	if err := yaml.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questionnaire YAML: %w", err)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &q, nil
}

// Validate checks the item layout: four items in section A followed by three in B.
func (q *QuestionnaireDef) Validate() error {
	if len(q.Items) != itemsInA+itemsInB {
		return fmt.Errorf("questionnaire needs %d items, got %d", itemsInA+itemsInB, len(q.Items))
	}
	for i, item := range q.Items {
		want := SectionA
		if i >= itemsInA {
			want = SectionB
		}
		if item.Section != want {
			return fmt.Errorf("item %d (%s) must be in section %s", i+1, item.ID, want)
		}
		if item.Text == "" {
			return fmt.Errorf("item %d has no text", i+1)
		}
	}
	if q.FreeText.MaxLength <= 0 {
		q.FreeText.MaxLength = 2000
	}
	return nil
}

// Section returns the items of one section together with their 0-based
// position in the full list.
func (q *QuestionnaireDef) Section(name string) (items []Item, offset int) {
	if name == SectionB {
		return q.Items[itemsInA:], itemsInA
	}
	return q.Items[:itemsInA], 0
}
