package cmd

import (
	"io"
	"os"

	"github.com/dotcommander/yar/internal/present"
)

// maxTopicBytes bounds what is read from a pipe.
const maxTopicBytes = 16 * 1024

func drainStdin() {
	if present.IsInputTTY() {
		return
	}
	_, _ = io.Copy(io.Discard, os.Stdin)
}

// readTopic reads a topic from r, keeping at most maxTopicBytes.
func readTopic(r io.Reader) (string, error) {
	bts, err := io.ReadAll(io.LimitReader(r, maxTopicBytes))
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	_, _ = io.Copy(io.Discard, r)
	return normalizeTopic(string(bts)), nil
}
