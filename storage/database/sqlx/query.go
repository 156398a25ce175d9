// Package sqlxrepos implements the repositories over a SQL database (postgres or sqlite) with sqlx.
// Queries use `?` placeholders and are rebound to the driver's bindvar type.
package sqlxrepos

import (
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/stenolearn/backend/core"
)

// whereClause accumulates AND-ed conditions and their arguments.
type whereClause struct {
	conds []string
	args  []interface{}
	err   error
}

func (w *whereClause) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// in adds a `col IN (...)` condition; an empty vals matches nothing.
func (w *whereClause) in(col string, vals []string) {
	if len(vals) == 0 {
		w.add("1 = 0")
		return
	}
	w.expand(col+" IN (?)", vals)
}

// notIn adds a `col NOT IN (...)` condition; an empty vals matches everything.
func (w *whereClause) notIn(col string, vals []string) {
	if len(vals) == 0 {
		return
	}
	w.expand(col+" NOT IN (?)", vals)
}

// expand adds cond after expanding its slice arguments (which must not be empty) with sqlx.In.
func (w *whereClause) expand(cond string, args ...interface{}) {
	cond, args, err := sqlx.In(cond, args...)
	if err != nil && w.err == nil {
		w.err = errors.Wrapf(err, "expanding %q", cond)
	}
	w.add(cond, args...)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// orderBy builds the ORDER BY clause from the allowed ({param: column}) orderings or falls back to def.
func orderBy(ordering []core.DBOrdering, allowed map[string]string, def string) string {
	cleaned := core.CleanOrdering(ordering, allowed)
	if len(cleaned) == 0 {
		return " ORDER BY " + def
	}
	parts := make([]string, 0, len(cleaned))
	for _, ord := range cleaned {
		parts = append(parts, ord.String())
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(search)) + "%"
}

func joinRoles(roles []string) string {
	return strings.Join(roles, ",")
}

func splitRoles(roles string) []string {
	if roles == "" {
		return []string{}
	}
	return strings.Split(roles, ",")
}
