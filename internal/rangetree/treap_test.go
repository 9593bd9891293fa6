package rangetree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type intElem int

func (e intElem) Len() int { return int(e) }

func TestTreapInsertAndAt(t *testing.T) {
	tr := New[intElem](1)
	tr.InsertAt(0, intElem(1))
	tr.InsertAt(1, intElem(2))
	tr.InsertAt(0, intElem(3))

	require.Equal(t, 3, tr.Size())
	assert.Equal(t, intElem(3), tr.At(0))
	assert.Equal(t, intElem(1), tr.At(1))
	assert.Equal(t, intElem(2), tr.At(2))
	assert.Equal(t, 6, tr.Len())
}

func TestTreapRemoveAt(t *testing.T) {
	tr := New[intElem](2)
	for i := 0; i < 5; i++ {
		tr.InsertAt(i, intElem(i+1))
	}
	removed := tr.RemoveAt(2)
	assert.Equal(t, intElem(3), removed)
	assert.Equal(t, 4, tr.Size())
	assert.Equal(t, intElem(4), tr.At(2))
}

func TestTreapFindByLenOffset(t *testing.T) {
	tr := New[intElem](3)
	tr.InsertAt(0, intElem(2)) // offsets [0,2)
	tr.InsertAt(1, intElem(0)) // tombstone, offsets [2,2)
	tr.InsertAt(2, intElem(3)) // offsets [2,5)

	idx, within := tr.FindByLenOffset(0)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 0, within)

	idx, within = tr.FindByLenOffset(3)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 1, within)

	idx, _ = tr.FindByLenOffset(5)
	assert.Equal(t, 3, idx)
}

func TestTreapEachInOrder(t *testing.T) {
	tr := New[intElem](4)
	for i := 0; i < 10; i++ {
		tr.InsertAt(i, intElem(i))
	}
	var seen []int
	tr.Each(func(idx int, e intElem) bool {
		seen = append(seen, int(e))
		return true
	})
	require.Len(t, seen, 10)
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestTreapHandleTracksIndexAcrossMutation(t *testing.T) {
	tr := New[intElem](5)
	tr.InsertAt(0, intElem(1))
	h := tr.InsertAt(1, intElem(1))
	tr.InsertAt(2, intElem(1))

	idx, lenOffset := tr.IndexOf(h)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 1, lenOffset)

	// Inserting before h's position must shift its reported index, but the
	// handle keeps referring to the same logical element.
	tr.InsertAt(0, intElem(1))
	idx, lenOffset = tr.IndexOf(h)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 2, lenOffset)
	assert.Equal(t, intElem(1), tr.ValueOf(h))

	tr.SetValue(h, intElem(0))
	assert.Equal(t, intElem(0), tr.ValueOf(h))
	assert.Equal(t, 3, tr.Len())
}
