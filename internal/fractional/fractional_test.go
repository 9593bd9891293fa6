package fractional

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBetweenOrders(t *testing.T) {
	left := Key{0x10}
	right := Key{0x20}
	mid := New(left, right, 0)

	assert.True(t, left.Compare(mid) < 0)
	assert.True(t, mid.Compare(right) < 0)
}

func TestNewNoNeighbours(t *testing.T) {
	k := New(nil, nil, 0)
	require.NotEmpty(t, k)
}

func TestNewAfterOnly(t *testing.T) {
	left := Key{0x10}
	k := New(left, nil, 0)
	assert.True(t, left.Compare(k) < 0)
}

func TestNewBeforeOnly(t *testing.T) {
	right := Key{0x10}
	k := New(nil, right, 0)
	assert.True(t, k.Compare(right) < 0)
}

func TestRepeatedInsertionsStayOrdered(t *testing.T) {
	left := Key{0x00}
	right := Key{0xFF}
	for i := 0; i < 200; i++ {
		mid := New(left, right, 0)
		require.True(t, left.Compare(mid) < 0, "iter %d: left=%v mid=%v", i, left, mid)
		require.True(t, mid.Compare(right) < 0, "iter %d: mid=%v right=%v", i, mid, right)
		left = mid
	}
}

func TestJitterBoundedLength(t *testing.T) {
	k := New(Key{0x10}, Key{0x20}, 10)
	assert.LessOrEqual(t, len(k), 1+MaxJitterBytes)
}
