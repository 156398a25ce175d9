package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/class"
)

type classRepository struct {
	db *DB
}

var _ class.Repository = (*classRepository)(nil)

func NewClassRepository(db *DB) class.Repository {
	return &classRepository{db: db}
}

// must be called with the lock held
func (db *DB) getClass(id string) (class.Class, bool) {
	stored, ok := db.classes[id]
	if !ok {
		return class.Class{}, false
	}
	c := *stored
	students := db.enrollments[id]
	c.StudentIDs = make([]string, 0, len(students))
	for studentID := range students {
		c.StudentIDs = append(c.StudentIDs, studentID)
	}
	sort.Slice(c.StudentIDs, func(i, j int) bool {
		ti, tj := students[c.StudentIDs[i]], students[c.StudentIDs[j]]
		if ti.Equal(tj) {
			return c.StudentIDs[i] < c.StudentIDs[j]
		}
		return ti.Before(tj)
	})
	return c, true
}

// must be called with the lock held
func (db *DB) deleteClass(id string) {
	delete(db.classes, id)
	delete(db.enrollments, id)
	for aID, a := range db.assignments {
		if a.ClassID == id {
			delete(db.assignments, aID)
		}
	}
}

func (repo *classRepository) CreateClass(_ context.Context, c class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := c
	stored.StudentIDs = nil
	repo.db.classes[c.ID] = &stored
	repo.db.enrollments[c.ID] = make(map[string]time.Time)
	created, _ := repo.db.getClass(c.ID)
	return created, nil
}

func (repo *classRepository) GetClass(_ context.Context, id string) (class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.getClass(id); ok {
		return c, nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) QueryClasses(_ context.Context, filter *class.QueryFilter, ordering []core.DBOrdering) ([]class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	classes := make([]class.Class, 0, len(repo.db.classes))
	for id := range repo.db.classes {
		c, _ := repo.db.getClass(id)
		if filter != nil {
			if filter.TeacherID != "" && c.TeacherID != filter.TeacherID {
				continue
			}
			if filter.StudentID != "" && !c.HasStudent(filter.StudentID) {
				continue
			}
			if filter.Search != "" && !containsFold(c.Name, filter.Search) {
				continue
			}
			if filter.IDs != nil && !containsString(filter.IDs, c.ID) {
				continue
			}
		}
		classes = append(classes, c)
	}
	// default ordering
	sort.Slice(classes, func(i, j int) bool { return classes[i].CreatedAt.Before(classes[j].CreatedAt) })

	sortRows(len(classes), func(i, j int) { classes[i], classes[j] = classes[j], classes[i] }, ordering,
		func(i, j int, field string) (int, bool) {
			a, b := classes[i], classes[j]
			switch field {
			case "name":
				return compareStrings(a.Name, b.Name), true
			case "created_at":
				return compareTimes(a.CreatedAt, b.CreatedAt), true
			case "updated_at":
				return compareTimes(a.UpdatedAt, b.UpdatedAt), true
			}
			return 0, false
		})
	return classes, nil
}

func (repo *classRepository) UpdateClass(_ context.Context, c class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.classes[c.ID]
	if !ok {
		return class.Class{}, class.ErrNotFound
	}
	stored.Name = c.Name
	stored.Description = c.Description
	stored.UpdatedAt = c.UpdatedAt
	updated, _ := repo.db.getClass(c.ID)
	return updated, nil
}

func (repo *classRepository) DeleteClass(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.deleteClass(id)
	return nil
}

func (repo *classRepository) AddStudents(_ context.Context, classID string, studentIDs []string, joinedAt time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	students, ok := repo.db.enrollments[classID]
	if !ok {
		return class.ErrNotFound
	}
	for _, id := range studentIDs {
		if _, enrolled := students[id]; !enrolled {
			students[id] = joinedAt
		}
	}
	return nil
}

func (repo *classRepository) RemoveStudents(_ context.Context, classID string, studentIDs []string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	students, ok := repo.db.enrollments[classID]
	if !ok {
		return class.ErrNotFound
	}
	for _, id := range studentIDs {
		delete(students, id)
	}
	return nil
}
