package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushBelowCapacity(t *testing.T) {
	b := New[int](4)
	b.Push(1, 2)

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, []int{1, 2}, b.Snapshot())

	last, ok := b.Last()
	assert.True(t, ok)
	assert.Equal(t, 2, last)
}

func TestPushEvictsOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 7; i++ {
		b.Push(i)
		assert.LessOrEqual(t, b.Len(), b.Cap())
	}

	assert.Equal(t, []int{5, 6, 7}, b.Snapshot())
}

func TestPushManyAtOnce(t *testing.T) {
	b := New[string](2)
	b.Push("a", "b", "c", "d")

	assert.Equal(t, []string{"c", "d"}, b.Snapshot())
}

func TestClear(t *testing.T) {
	b := New[int](2)
	b.Push(1, 2, 3)
	b.Clear()

	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Snapshot())
	_, ok := b.Last()
	assert.False(t, ok)

	b.Push(9)
	assert.Equal(t, []int{9}, b.Snapshot())
}

func TestNewClampsSize(t *testing.T) {
	b := New[int](0)
	assert.Equal(t, 1, b.Cap())
}
