package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "dashboard:user-1", CacheKey("dashboard", "user-1"))

	a := CacheKey("dashboard", "user-1", "surgery", "30d")
	b := CacheKey("dashboard", "user-2", "surgery", "30d")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, CacheKey("dashboard", "user-1", "surgery", "30d"))
	assert.NotEqual(t, CacheKey("d", "u", "ab", "c"), CacheKey("d", "u", "a", "bc"))
}

func TestHashString(t *testing.T) {
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", HashString("hello"))
}
