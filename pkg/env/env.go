package env

import (
	"os"
	"strings"
)

// Prefix namespaces the service's variables.
const Prefix = "ARINV_"

// Get returns ARINV_<key> when set, then the bare key, then fallback.
// Bare names keep platform-provided variables such as PORT usable.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(Prefix + key)); val != "" {
		return val
	}
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
