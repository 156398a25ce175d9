package inmemdb

import (
	"context"
	"sort"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/score"
	"github.com/stenolearn/backend/core/scoring"
)

type scoreRepository struct {
	db *DB
}

var _ score.Repository = (*scoreRepository)(nil)

func NewScoreRepository(db *DB) score.Repository {
	return &scoreRepository{db: db}
}

func copyScore(s *score.Score) score.Score {
	cp := *s
	cp.Mistakes = append(make([]scoring.Mistake, 0, len(s.Mistakes)), s.Mistakes...)
	return cp
}

func (repo *scoreRepository) CreateScore(_ context.Context, s score.Score) (score.Score, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := copyScore(&s)
	repo.db.scores[s.ID] = &stored
	return copyScore(&stored), nil
}

func (repo *scoreRepository) GetScore(_ context.Context, id string) (score.Score, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.scores[id]; ok {
		return copyScore(s), nil
	}
	return score.Score{}, score.ErrNotFound
}

func (repo *scoreRepository) QueryScores(_ context.Context, filter *score.QueryFilter, ordering []core.DBOrdering) ([]score.Score, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	scores := make([]score.Score, 0, len(repo.db.scores))
	for _, s := range repo.db.scores {
		if filter != nil {
			if filter.StudentID != "" && s.StudentID != filter.StudentID {
				continue
			}
			if filter.AssignmentID != "" && s.AssignmentID != filter.AssignmentID {
				continue
			}
			if filter.ClassIDs != nil && !containsString(filter.ClassIDs, s.ClassID) {
				continue
			}
		}
		scores = append(scores, copyScore(s))
	}
	// default ordering: latest first
	sort.Slice(scores, func(i, j int) bool { return scores[i].CompletedAt.After(scores[j].CompletedAt) })

	sortRows(len(scores), func(i, j int) { scores[i], scores[j] = scores[j], scores[i] }, ordering,
		func(i, j int, field string) (int, bool) {
			a, b := scores[i], scores[j]
			switch field {
			case "completed_at":
				return compareTimes(a.CompletedAt, b.CompletedAt), true
			case "accuracy":
				return compareNumbers(float64(a.Accuracy), float64(b.Accuracy)), true
			case "wpm":
				return compareNumbers(float64(a.WPM), float64(b.WPM)), true
			}
			return 0, false
		})
	return scores, nil
}
