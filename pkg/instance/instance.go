package instance

import (
	"os"
	"strings"
)

const defaultID = "worker-0"

// GetID returns QUIZLINK_INSTANCE_ID, then the hostname, then a fixed default.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("QUIZLINK_INSTANCE_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
