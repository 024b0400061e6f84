package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)

	assert.Equal(t, DefaultSmallCap, rl.Cap(ClassSmall))
	assert.Equal(t, DefaultLargeCap, rl.Cap(ClassLarge))
	assert.Equal(t, 0, rl.Count(ClassSmall))
	assert.Equal(t, 0, rl.Count(ClassLarge))
}

func TestRateLimiter_IndependentClasses(t *testing.T) {
	rl := NewRateLimiter(2, 5)

	rl.Increment(ClassSmall)
	rl.Increment(ClassSmall)

	assert.True(t, rl.AtCap(ClassSmall))
	assert.False(t, rl.AtCap(ClassLarge), "small exhaustion must not affect the large budget")

	for i := 0; i < 5; i++ {
		assert.False(t, rl.AtCap(ClassLarge))
		rl.Increment(ClassLarge)
	}
	assert.True(t, rl.AtCap(ClassLarge))
	assert.Equal(t, 5, rl.Count(ClassLarge))
}

func TestRateLimiter_CustomCaps(t *testing.T) {
	rl := NewRateLimiter(1, 3)

	assert.False(t, rl.AtCap(ClassSmall))
	rl.Increment(ClassSmall)
	assert.True(t, rl.AtCap(ClassSmall))
	assert.Equal(t, 3, rl.Cap(ClassLarge))
}
