package inmemdb

import (
	"context"
	"sort"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/assignment"
	"github.com/stenolearn/backend/core/class"
)

type assignmentRepository struct {
	db *DB
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(db *DB) assignment.Repository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) CreateAssignment(_ context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[a.ClassID]; !ok {
		return assignment.Assignment{}, class.ErrNotFound
	}
	stored := a
	repo.db.assignments[a.ID] = &stored
	return a, nil
}

func (repo *assignmentRepository) GetAssignment(_ context.Context, id string) (assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.assignments[id]; ok {
		return *a, nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) QueryAssignments(
	_ context.Context,
	filter *assignment.QueryFilter,
	ordering []core.DBOrdering,
) ([]assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	assignments := make([]assignment.Assignment, 0, len(repo.db.assignments))
	for _, a := range repo.db.assignments {
		if filter != nil {
			if filter.ClassIDs != nil && !containsString(filter.ClassIDs, a.ClassID) {
				continue
			}
			if filter.TeacherID != "" && a.TeacherID != filter.TeacherID {
				continue
			}
			if filter.IsActive != nil && a.IsActive != *filter.IsActive {
				continue
			}
			if filter.IDs != nil && !containsString(filter.IDs, a.ID) {
				continue
			}
		}
		assignments = append(assignments, *a)
	}
	// default ordering
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].CreatedAt.Before(assignments[j].CreatedAt) })

	sortRows(len(assignments), func(i, j int) { assignments[i], assignments[j] = assignments[j], assignments[i] }, ordering,
		func(i, j int, field string) (int, bool) {
			a, b := assignments[i], assignments[j]
			switch field {
			case "title":
				return compareStrings(a.Title, b.Title), true
			case "deadline":
				return compareTimes(a.Deadline.Time, b.Deadline.Time), true
			case "created_at":
				return compareTimes(a.CreatedAt, b.CreatedAt), true
			}
			return 0, false
		})
	return assignments, nil
}

func (repo *assignmentRepository) UpdateAssignment(_ context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.assignments[a.ID]; !ok {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	stored := a
	repo.db.assignments[a.ID] = &stored
	return a, nil
}

func (repo *assignmentRepository) DeleteAssignment(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.assignments, id)
	return nil
}
