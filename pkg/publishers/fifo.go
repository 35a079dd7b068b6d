package publishers

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// isFIFO reports whether an SQS queue URL or SNS topic ARN names a FIFO resource.
func isFIFO(target string) bool {
	return strings.HasSuffix(strings.TrimSpace(target), ".fifo")
}

// groupID orders events per site on FIFO sinks.
func groupID(evt Event) string {
	if host := evt.Host(); host != "" {
		return host
	}
	return "unknown"
}

// dedupID makes redelivered notifications for the same article collapse on FIFO sinks.
func dedupID(evt Event) string {
	sum := sha256.Sum256([]byte(evt.Article.URL))
	return hex.EncodeToString(sum[:])
}
