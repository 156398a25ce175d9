package inmemdb

import (
	"context"
	"sort"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func copyUser(u *user.User) user.User {
	usr := *u
	usr.Roles = copyStrings(u.Roles)
	return usr
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excluded := make(map[string]struct{}, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded[usr.ID] = struct{}{}
	}
	for _, usr := range repo.db.users {
		if _, ok := excluded[usr.ID]; ok {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := copyUser(&usr)
	repo.db.users[usr.ID] = &stored
	return usr, nil
}

func (repo *userRepository) matches(usr *user.User, filter *user.QueryFilter) bool {
	if filter.IsEmpty() {
		return true
	}
	if filter.Search != "" &&
		!(containsFold(usr.Name, filter.Search) || containsFold(usr.Username, filter.Search) || containsFold(usr.Email, filter.Search)) {
		return false
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	if filter.IDs != nil && !containsString(filter.IDs, usr.ID) {
		return false
	}
	if filter.Roles != nil {
		var hasRole bool
		for _, role := range filter.Roles {
			if containsString(usr.Roles, role) {
				hasRole = true
				break
			}
		}
		if !hasRole {
			return false
		}
	}
	return true
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if repo.matches(usr, filter) {
			users = append(users, copyUser(usr))
		}
	}
	// default ordering
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })

	sortRows(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] }, ordering,
		func(i, j int, field string) (int, bool) {
			a, b := users[i], users[j]
			switch field {
			case "name":
				return compareStrings(a.Name, b.Name), true
			case "username":
				return compareStrings(a.Username, b.Username), true
			case "email":
				return compareStrings(a.Email, b.Email), true
			case "created_at":
				return compareTimes(a.CreatedAt, b.CreatedAt), true
			case "last_login":
				return compareTimes(a.LastLogin.Time, b.LastLogin.Time), true
			}
			return 0, false
		})
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return copyUser(usr), nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.users {
		if filter.Email != "" && usr.Email == filter.Email {
			return copyUser(usr), nil
		}
		for _, uname := range filter.UsernameOrEmail {
			if uname != "" && (usr.Username == uname || usr.Email == uname) {
				return copyUser(usr), nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	stored := copyUser(&usr)
	repo.db.users[usr.ID] = &stored
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.RLock()
	_, exists := repo.db.users[usr.ID]
	repo.db.mutex.RUnlock()

	if exists {
		return repo.UpdateUser(ctx, usr)
	}
	return repo.CreateUser(ctx, usr)
}

// DeleteUsers also deletes the classes, enrollments, assignments and scores of the users.
func (repo *userRepository) DeleteUsers(_ context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		delete(repo.db.users, id)
		for classID, c := range repo.db.classes {
			if c.TeacherID == id {
				repo.db.deleteClass(classID)
			}
		}
		for _, students := range repo.db.enrollments {
			delete(students, id)
		}
		for aID, a := range repo.db.assignments {
			if a.TeacherID == id {
				delete(repo.db.assignments, aID)
			}
		}
		for sID, s := range repo.db.scores {
			if s.StudentID == id {
				delete(repo.db.scores, sID)
			}
		}
	}
	return nil
}
