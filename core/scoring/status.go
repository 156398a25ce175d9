package scoring

import "github.com/pkg/errors"

// CharStatus classifies one reference character against a typed attempt.
type CharStatus uint8

const (
	Pending CharStatus = iota // not reached yet
	Correct
	Wrong
)

var statusNames = [...]string{Pending: "pending", Correct: "correct", Wrong: "wrong"}

func (s CharStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

func (s CharStatus) MarshalText() ([]byte, error) {
	if int(s) >= len(statusNames) {
		return nil, errors.Errorf("invalid char status %d", s)
	}
	return []byte(statusNames[s]), nil
}

func (s *CharStatus) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = CharStatus(i)
			return nil
		}
	}
	return errors.Errorf("invalid char status %q", text)
}

// Count returns the number of correct, wrong and pending statuses.
func Count(statuses []CharStatus) (correct, wrong, pending int) {
	for _, s := range statuses {
		switch s {
		case Correct:
			correct++
		case Wrong:
			wrong++
		default:
			pending++
		}
	}
	return
}
