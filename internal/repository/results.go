package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"memtest-go/internal/models"
	"memtest-go/internal/session"
	"memtest-go/internal/symbols"
)

// Results appends finished session records to the result tables. It never
// updates or deletes rows.
type Results struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewResults(db *gorm.DB, log *zap.Logger) *Results {
	return &Results{db: db, log: log.Named("results")}
}

// RecordTrials stores the trial block in the table of the record's variant.
func (r *Results) RecordTrials(ctx context.Context, rec session.Record) error {
	if !rec.Variant.Valid() {
		return fmt.Errorf("record %s has no variant", rec.SessionID)
	}
	row := models.TrialResult{
		SessionID:     rec.SessionID,
		ParticipantID: rec.ParticipantID,
		Age:           rec.Age,
		Gender:        string(rec.Gender),
		Variant:       string(rec.Variant),
		TotalCorrect:  rec.Summary.TotalCorrect,
		TotalPossible: rec.Summary.TotalPossible,
		Percent:       rec.Summary.Percent,
		HighestSpan:   rec.Summary.HighestSpan,
		Trials:        rec.Trials,
		CreatedAt:     rec.RecordedAt,
	}
	table := models.TrialTable(rec.Variant)
	if err := r.db.WithContext(ctx).Table(table).Create(&row).Error; err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	r.log.Debug("Trial results stored", zap.String("table", table), zap.Uint("id", row.ID))
	return nil
}

// RecordQuestionnaire stores the questionnaire answers.
func (r *Results) RecordQuestionnaire(ctx context.Context, rec session.Record) error {
	q := rec.Ratings
	row := models.QuestionnaireResult{
		SessionID:     rec.SessionID,
		ParticipantID: rec.ParticipantID,
		Variant:       string(rec.Variant),
		Q1:            q[0],
		Q2:            q[1],
		Q3:            q[2],
		Q4:            q[3],
		Q5:            q[4],
		Q6:            q[5],
		Q7:            q[6],
		FreeText:      rec.FreeText,
		SubmittedAt:   rec.RecordedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert into %s: %w", models.TableQuestionnaire, err)
	}
	return nil
}

// ListTrials returns every trial row of one variant in insertion order.
func (r *Results) ListTrials(ctx context.Context, v symbols.Variant) ([]models.TrialResult, error) {
	var rows []models.TrialResult
	err := r.db.WithContext(ctx).Table(models.TrialTable(v)).Order("id").Find(&rows).Error
	return rows, err
}

// ListQuestionnaires returns every questionnaire row in insertion order.
func (r *Results) ListQuestionnaires(ctx context.Context) ([]models.QuestionnaireResult, error) {
	var rows []models.QuestionnaireResult
	err := r.db.WithContext(ctx).Order("id").Find(&rows).Error
	return rows, err
}

// Counts returns the number of stored rows per table.
func (r *Results) Counts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, 3)
	for _, table := range []string{models.TableTrialsColor, models.TableTrialsMonochrome, models.TableQuestionnaire} {
		var n int64
		if err := r.db.WithContext(ctx).Table(table).Count(&n).Error; err != nil {
			return nil, err
		}
		counts[table] = n
	}
	return counts, nil
}

// Ping checks the database connection.
func (r *Results) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
