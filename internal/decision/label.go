// Package decision fuses the duplicate, anomaly, and rule signals into a
// risk score and a final outcome.
package decision

// Outcome labels, ordered by strictness.
const (
	Pass   = "PASS"
	Review = "REVIEW"
	Hold   = "HOLD"
)

var strictness = map[string]int{
	"":     0,
	Pass:   1,
	Review: 2,
	Hold:   3,
}

// Stricter returns the stricter of the two labels.
func Stricter(a, b string) string {
	if strictness[b] > strictness[a] {
		return b
	}
	return a
}
