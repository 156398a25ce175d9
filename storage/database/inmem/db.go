// Package inmemdb implements the repositories over in-memory tables. Used in tests and demos.
package inmemdb

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/assignment"
	"github.com/stenolearn/backend/core/class"
	"github.com/stenolearn/backend/core/score"
	"github.com/stenolearn/backend/core/user"
)

// DB guards all tables with one lock so that cascading deletes stay consistent.
type DB struct {
	mutex       sync.RWMutex
	users       map[string]*user.User
	classes     map[string]*class.Class
	enrollments map[string]map[string]time.Time // {classID: {studentID: joinedAt}}
	assignments map[string]*assignment.Assignment
	scores      map[string]*score.Score
}

func Open() *DB {
	return &DB{
		users:       make(map[string]*user.User),
		classes:     make(map[string]*class.Class),
		enrollments: make(map[string]map[string]time.Time),
		assignments: make(map[string]*assignment.Assignment),
		scores:      make(map[string]*score.Score),
	}
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// compareFunc compares two rows on one field: -1, 0 or 1.
type compareFunc func(i, j int, field string) (int, bool)

// sortRows sorts n rows by ordering, skipping unknown fields; ties keep the default order.
func sortRows(n int, swap func(i, j int), ordering []core.DBOrdering, compare compareFunc) {
	if len(ordering) == 0 {
		return
	}
	sort.Stable(rowSorter{n: n, swap: swap, less: func(i, j int) bool {
		for _, ord := range ordering {
			c, ok := compare(i, j, ord.Field)
			if !ok || c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	}})
}

type rowSorter struct {
	n    int
	swap func(i, j int)
	less func(i, j int) bool
}

func (s rowSorter) Len() int           { return s.n }
func (s rowSorter) Swap(i, j int)      { s.swap(i, j) }
func (s rowSorter) Less(i, j int) bool { return s.less(i, j) }

func compareStrings(a, b string) int { return strings.Compare(strings.ToLower(a), strings.ToLower(b)) }

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareNumbers(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
