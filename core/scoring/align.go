// Package scoring compares a typed attempt with its reference text.
//
// All functions are pure and work on runes, so they are safe for concurrent use.
package scoring

// DefaultLookahead is the size of the window searched for inserted or skipped characters.
const DefaultLookahead = 4

// Align classifies every rune of original as Correct, Wrong or Pending according to typed.
//
// On a mismatch, windows of 1..lookahead runes are tried in ascending order, checking for
// extra typed runes (insertion) before skipped reference runes (deletion). The first match
// wins; otherwise the position counts as a single substitution. An insertion leaves the reference
// cursor in place, so the rune it marked Wrong becomes Correct again once it is typed. Typed runes
// past the end of original have no reference position and are ignored.
func Align(original, typed string, lookahead int) []CharStatus {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	orig, tRunes := []rune(original), []rune(typed)
	n, m := len(orig), len(tRunes)
	statuses := make([]CharStatus, n)

	markWrong := func(from, to int) {
		for i := from; i < to; i++ {
			statuses[i] = Wrong
		}
	}

	o, t := 0, 0
	for o < n && t < m {
		if orig[o] == tRunes[t] {
			statuses[o] = Correct
			o++
			t++
			continue
		}

		aligned := false
		for la := 1; la <= lookahead; la++ {
			// insertion: the typist added `la` runes
			if t+la < m && tRunes[t+la] == orig[o] {
				markWrong(o, min(o+la, n))
				t += la
				aligned = true
				break
			}
			// deletion: the typist skipped `la` runes
			if o+la < n && orig[o+la] == tRunes[t] {
				markWrong(o, o+la)
				o += la
				aligned = true
				break
			}
		}
		if !aligned {
			statuses[o] = Wrong
			o++
			t++
		}
	}
	return statuses
}
