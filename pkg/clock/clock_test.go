package clock

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddSat(t *testing.T) {
	assert.Equal(t, uint64(5), AddSat(2, 3))
	assert.Equal(t, uint64(math.MaxUint64), AddSat(math.MaxUint64-1, 2))
	assert.Equal(t, uint64(math.MaxUint64), AddSat(math.MaxUint64, math.MaxUint64))
}

func TestManual(t *testing.T) {
	c := NewManual(100)
	c.Advance(5)
	assert.Equal(t, uint64(105), c.Now())
	c.Set(7)
	assert.Equal(t, uint64(7), c.Now())
	c.Advance(math.MaxUint64)
	assert.Equal(t, uint64(math.MaxUint64), c.Now())
}
