package common

import (
	"strings"

	"github.com/google/uuid"
)

// StableID returns a name-based UUID for parts, identical across runs.
func StableID(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(parts, "/"))).String()
}
