package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuse_Scenario(t *testing.T) {
	p := Fuse(0.8, 0.2, true, 0.1)
	risk := RiskScore(p)
	assert.GreaterOrEqual(t, risk, 80.0)
	assert.LessOrEqual(t, risk, 100.0)

	thresholds := Thresholds{Hold: 80, Review: 50}
	assert.Equal(t, Hold, Label(risk, thresholds))
}

func TestFuse_Monotone(t *testing.T) {
	base := Fuse(0.3, 0.2, false, 0.1)

	assert.GreaterOrEqual(t, Fuse(0.4, 0.2, false, 0.1), base)
	assert.GreaterOrEqual(t, Fuse(0.3, 0.3, false, 0.1), base)
	assert.GreaterOrEqual(t, Fuse(0.3, 0.2, true, 0.1), base)
	assert.GreaterOrEqual(t, Fuse(0.3, 0.2, false, 0.2), base)
}

func TestFuse_Bounds(t *testing.T) {
	assert.Equal(t, 0.0, Fuse(0, 0, false, 0))
	assert.Equal(t, 1.0, Fuse(1, 0, false, 0))
	assert.Equal(t, 1.0, Fuse(2, -1, false, 0))
}

func TestRiskScore_Rounding(t *testing.T) {
	assert.Equal(t, 50.0, RiskScore(0.5))
	assert.Equal(t, 33.33, RiskScore(1.0/3.0))
	assert.Equal(t, 100.0, RiskScore(1.5))
	assert.Equal(t, 0.0, RiskScore(-0.2))
}

func TestLabel(t *testing.T) {
	thresholds := Thresholds{Hold: 80, Review: 50}
	assert.Equal(t, Hold, Label(80, thresholds))
	assert.Equal(t, Review, Label(79.99, thresholds))
	assert.Equal(t, Review, Label(50, thresholds))
	assert.Equal(t, Pass, Label(49.99, thresholds))
}

func TestStricter(t *testing.T) {
	assert.Equal(t, Hold, Stricter(Review, Hold))
	assert.Equal(t, Hold, Stricter(Hold, Pass))
	assert.Equal(t, Review, Stricter(Pass, Review))
	assert.Equal(t, Pass, Stricter(Pass, ""))
	assert.Equal(t, Review, Stricter("", Review))
}
