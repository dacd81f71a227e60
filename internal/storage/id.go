package storage

import (
	"crypto/sha1" //nolint:gosec
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// IDShort is the short display length used in CLI output.
	IDShort = 7
	// IDMinLen is the minimum prefix length considered for ID matching.
	IDMinLen = 4
)

// IDRegexp matches a full 32-char run ID and nothing else.
var IDRegexp = regexp.MustCompile(`^[0-9a-f]{32}$`)

// NewRunID generates an identifier for a run record.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// TopicKey returns a filesystem-safe key for an already normalized topic.
//
// This is not used for cryptographic security; it is used as an identifier.
func TopicKey(topic string) string {
	//nolint:gosec // identifier generation; not used for cryptographic security.
	return fmt.Sprintf("%x", sha1.Sum([]byte(topic)))
}
