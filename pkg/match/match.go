// Package match decides whether two task titles name the same task.
//
// Matching is a best-effort heuristic used to fold an upstream edit into an
// existing record. Callers must not use it for irreversible operations.
package match

import "strings"

// Threshold is the similarity a title pair must exceed to be considered the
// same task.
const Threshold = 0.75

// Matcher is a title matching policy.
type Matcher interface {
	Same(existing, incoming string) bool
}

// Gestalt matches titles by Ratcliff/Obershelp similarity over their
// lowercased runes.
type Gestalt struct {
	Threshold float64
}

// Default returns the matcher used by the task store.
func Default() Gestalt {
	return Gestalt{Threshold: Threshold}
}

func (g Gestalt) Same(existing, incoming string) bool {
	return Ratio(existing, incoming) > g.Threshold
}

// Ratio returns 2*M/T, where M is the number of characters in matching blocks
// and T the total length of both strings. Two empty strings are identical.
func Ratio(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matching(ra, rb)) / float64(total)
}

func matching(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	i, j, k := longest(a, b)
	if k == 0 {
		return 0
	}
	return k + matching(a[:i], b[:j]) + matching(a[i+k:], b[j+k:])
}

// longest finds the longest common block, preferring the earliest start in a
// and then in b.
func longest(a, b []rune) (int, int, int) {
	bestI, bestJ, bestK := 0, 0, 0
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > bestK {
					bestK = cur[j]
					bestI = i - bestK
					bestJ = j - bestK
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return bestI, bestJ, bestK
}
