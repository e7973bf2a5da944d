package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// CacheKey builds a namespaced key. The owner (usually a user id) is kept in clear text
// so entries of different owners can never collide; the remaining parts are hashed.
func CacheKey(namespace, owner string, parts ...string) string {
	if len(parts) == 0 {
		return namespace + ":" + owner
	}
	return namespace + ":" + owner + ":" + HashString(strings.Join(parts, "\x1f"))
}
