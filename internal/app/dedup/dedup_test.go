package dedup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"crawlurl/internal/app/normalizer"
)

func TestIsDuplicate(t *testing.T) {
	d := New(10)
	assert.False(t, d.IsDuplicate("https://example.com/a"))
	assert.True(t, d.IsDuplicate("https://example.com/a"))
	assert.False(t, d.IsDuplicate("https://example.com/b"))
	assert.Equal(t, 2, d.Len())
}

func TestFragmentVariantsCollapse(t *testing.T) {
	d := New(10)
	first, err := normalizer.Normalize("https://example.com/page#intro", "")
	assert.NoError(t, err)
	second, err := normalizer.Normalize("https://example.com/page#usage", "")
	assert.NoError(t, err)

	assert.False(t, d.IsDuplicate(first))
	assert.True(t, d.IsDuplicate(second))
}

func TestQueryVariantsDiffer(t *testing.T) {
	d := New(10)
	assert.False(t, d.IsDuplicate("https://example.com/list?page=1"))
	assert.False(t, d.IsDuplicate("https://example.com/list?page=2"))
	assert.False(t, d.IsDuplicate("https://example.com/list"))
}

func TestEvictsOldestFifth(t *testing.T) {
	d := New(10)
	for i := 0; i < 10; i++ {
		assert.False(t, d.IsDuplicate(fmt.Sprintf("https://example.com/%d", i)))
	}
	assert.Equal(t, 10, d.Len())

	// capacity reached: /0 and /1 are forgotten to make room
	assert.False(t, d.IsDuplicate("https://example.com/new"))
	assert.Equal(t, 9, d.Len())

	assert.True(t, d.IsDuplicate("https://example.com/2"))
	assert.True(t, d.IsDuplicate("https://example.com/9"))
	assert.False(t, d.IsDuplicate("https://example.com/0"))
}

func TestDefaultCapacity(t *testing.T) {
	d := New(0)
	assert.Equal(t, DefaultCapacity, d.capacity)
}
