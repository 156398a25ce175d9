package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/score"
	"github.com/stenolearn/backend/core/scoring"
)

const scoreColumns = `id, student_id, assignment_id, class_id, typed_text, accuracy, word_accuracy, progress, wpm,
	mistakes, time_elapsed, is_late, completed_at`

var scoreOrderings = map[string]string{
	"completed_at": "completed_at",
	"accuracy":     "accuracy",
	"wpm":          "wpm",
}

type scoreRow struct {
	ID           string    `db:"id"`
	StudentID    string    `db:"student_id"`
	AssignmentID string    `db:"assignment_id"`
	ClassID      string    `db:"class_id"`
	TypedText    string    `db:"typed_text"`
	Accuracy     int       `db:"accuracy"`
	WordAccuracy int       `db:"word_accuracy"`
	Progress     int       `db:"progress"`
	WPM          int       `db:"wpm"`
	Mistakes     string    `db:"mistakes"` // JSON
	TimeElapsed  float64   `db:"time_elapsed"`
	IsLate       bool      `db:"is_late"`
	CompletedAt  time.Time `db:"completed_at"`
}

func newScoreRow(s score.Score) (scoreRow, error) {
	mistakes := s.Mistakes
	if mistakes == nil {
		mistakes = []scoring.Mistake{}
	}
	data, err := json.Marshal(mistakes)
	if err != nil {
		return scoreRow{}, errors.Wrap(err, "encoding mistakes")
	}
	return scoreRow{
		ID:           s.ID,
		StudentID:    s.StudentID,
		AssignmentID: s.AssignmentID,
		ClassID:      s.ClassID,
		TypedText:    s.TypedText,
		Accuracy:     s.Accuracy,
		WordAccuracy: s.WordAccuracy,
		Progress:     s.Progress,
		WPM:          s.WPM,
		Mistakes:     string(data),
		TimeElapsed:  s.TimeElapsed,
		IsLate:       s.IsLate,
		CompletedAt:  s.CompletedAt.UTC(),
	}, nil
}

func (row scoreRow) toScore() (score.Score, error) {
	mistakes := make([]scoring.Mistake, 0)
	if err := json.Unmarshal([]byte(row.Mistakes), &mistakes); err != nil {
		return score.Score{}, errors.Wrapf(err, "decoding mistakes of score %s", row.ID)
	}
	return score.Score{
		ID:           row.ID,
		StudentID:    row.StudentID,
		AssignmentID: row.AssignmentID,
		ClassID:      row.ClassID,
		TypedText:    row.TypedText,
		Accuracy:     row.Accuracy,
		WordAccuracy: row.WordAccuracy,
		Progress:     row.Progress,
		WPM:          row.WPM,
		Mistakes:     mistakes,
		TimeElapsed:  row.TimeElapsed,
		IsLate:       row.IsLate,
		CompletedAt:  row.CompletedAt.UTC(),
	}, nil
}

type scoreRepository struct {
	db *sqlx.DB
}

var _ score.Repository = (*scoreRepository)(nil)

func NewScoreRepository(db *sqlx.DB) score.Repository {
	return &scoreRepository{db: db}
}

func (repo *scoreRepository) CreateScore(ctx context.Context, s score.Score) (score.Score, error) {
	row, err := newScoreRow(s)
	if err != nil {
		return score.Score{}, err
	}
	q := "INSERT INTO scores (" + scoreColumns + `) VALUES (:id, :student_id, :assignment_id, :class_id, :typed_text,
		:accuracy, :word_accuracy, :progress, :wpm, :mistakes, :time_elapsed, :is_late, :completed_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return score.Score{}, errors.Wrap(err, "inserting score")
	}
	return repo.GetScore(ctx, s.ID)
}

func (repo *scoreRepository) GetScore(ctx context.Context, id string) (score.Score, error) {
	var row scoreRow
	q := repo.db.Rebind("SELECT " + scoreColumns + " FROM scores WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return score.Score{}, score.ErrNotFound
		}
		return score.Score{}, errors.Wrap(err, "getting score")
	}
	return row.toScore()
}

func (repo *scoreRepository) QueryScores(ctx context.Context, filter *score.QueryFilter, ordering []core.DBOrdering) ([]score.Score, error) {
	var w whereClause
	if filter != nil {
		if filter.StudentID != "" {
			w.add("student_id = ?", filter.StudentID)
		}
		if filter.AssignmentID != "" {
			w.add("assignment_id = ?", filter.AssignmentID)
		}
		if filter.ClassIDs != nil {
			w.in("class_id", filter.ClassIDs)
		}
	}
	if w.err != nil {
		return nil, w.err
	}

	var rows []scoreRow
	q := repo.db.Rebind("SELECT " + scoreColumns + " FROM scores" + w.String() + orderBy(ordering, scoreOrderings, "completed_at DESC"))
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying scores")
	}
	scores := make([]score.Score, 0, len(rows))
	for _, row := range rows {
		s, err := row.toScore()
		if err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	return scores, nil
}
