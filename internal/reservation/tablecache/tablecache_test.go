package tablecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_GetUnknownTableReturnsFalse(t *testing.T) {
	c := New()

	_, ok := c.Get("t1")
	assert.False(t, ok)
}

func TestCache_PutThenGet(t *testing.T) {
	c := New()

	c.Put("t1", StatusOccupied)

	status, ok := c.Get("t1")
	assert.True(t, ok)
	assert.Equal(t, StatusOccupied, status)
}

func TestCache_PutOverwritesPreviousStatus(t *testing.T) {
	c := New()

	c.Put("t1", StatusAvailable)
	c.Put("t1", StatusOutOfService)

	status, ok := c.Get("t1")
	assert.True(t, ok)
	assert.Equal(t, StatusOutOfService, status)
}
