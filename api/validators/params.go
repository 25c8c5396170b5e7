package validators

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
)

// ParseQueryInt reads an integer query parameter bounded to [min, max].
// An absent parameter yields defaultVal.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be a whole number").
			WithDetails(map[string]any{"field": key, "value": raw})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" is out of range").
			WithDetails(map[string]any{"field": key, "value": value, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryString reads an opaque token such as a page cursor. Oversized
// values are dropped so they fall through to the first page.
func ParseQueryString(r *http.Request, key string, maxLen int) string {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if maxLen > 0 && len(raw) > maxLen {
		return ""
	}
	return raw
}

// SanitizeString trims the input, collapses inner whitespace runs to a
// single space, and truncates to maxLen runes. Item names are shown on one
// line in list rows.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Join(strings.Fields(input), " ")
	if maxLen <= 0 || utf8.RuneCountInString(cleaned) <= maxLen {
		return cleaned
	}
	runes := []rune(cleaned)
	return strings.TrimSpace(string(runes[:maxLen]))
}
