package jira

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hochfrequenz/label-bulk/internal/issuestore"
)

// errorBody is Jira's error response shape
type errorBody struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

// parseAPIError turns a non-2xx response into a typed error. The message is
// the first errorMessages entry, else the field errors, else the raw body.
func parseAPIError(status int, header http.Header, body []byte) *issuestore.MutationError {
	err := &issuestore.MutationError{
		Kind:       issuestore.KindForStatus(status),
		StatusCode: status,
		Message:    errorMessage(body),
	}
	if status == http.StatusTooManyRequests {
		err.RetryAfter = retryAfter(header)
	}
	return err
}

// maxErrorBody bounds how much of a non-JSON error body ends up in a message
const maxErrorBody = 500

func errorMessage(body []byte) string {
	var parsed errorBody
	if json.Unmarshal(body, &parsed) == nil {
		if len(parsed.ErrorMessages) > 0 && parsed.ErrorMessages[0] != "" {
			return parsed.ErrorMessages[0]
		}
		if len(parsed.Errors) > 0 {
			fields := make([]string, 0, len(parsed.Errors))
			for field := range parsed.Errors {
				fields = append(fields, field)
			}
			sort.Strings(fields)
			parts := make([]string, 0, len(fields))
			for _, field := range fields {
				parts = append(parts, field+": "+parsed.Errors[field])
			}
			return strings.Join(parts, "; ")
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return truncate(text, maxErrorBody)
	}
	return "unknown error"
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// retryAfter reads the Retry-After header in either its seconds or
// HTTP-date form
func retryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
