package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbed_IsL2Normalized(t *testing.T) {
	vec := Embed("Will the Fed cut rates in March 2026?")

	var sumSquares float64
	for _, v := range vec {
		sumSquares += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-9)
}

func TestEmbed_EmptyTextIsZeroVector(t *testing.T) {
	vec := Embed("")
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestCosine_IdenticalTextScoresHigherThanUnrelatedText(t *testing.T) {
	base := Embed("Will the Fed cut interest rates in March")
	same := Embed("Will the Fed cut interest rates in March")
	unrelated := Embed("Will it rain in Seattle tomorrow")

	simSame := Cosine(base, same)
	simUnrelated := Cosine(base, unrelated)

	assert.InDelta(t, 1.0, simSame, 1e-9)
	assert.Greater(t, simSame, simUnrelated)
}
