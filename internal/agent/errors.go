package agent

import (
	"errors"
	"fmt"
	"strings"

	"charm.land/fantasy"

	"github.com/dotcommander/toolchat/internal/errs"
)

// modelError classifies a failed model turn. Callers only ever see the
// fallback answer; the details stay in the wrapped error.
func modelError(err error) errs.Error {
	return errs.New(errs.KindModelInference, fmt.Errorf("model inference: %w", err), FallbackAnswer)
}

// describeModelError renders err for the logs.
func describeModelError(err error, api string) string {
	var providerErr *fantasy.ProviderError
	if !errors.As(err, &providerErr) {
		return err.Error()
	}

	if isContextLengthExceeded(providerErr) {
		return "maximum prompt size exceeded"
	}
	reason := fantasy.ErrorTitleForStatusCode(providerErr.StatusCode)
	if reason == "" {
		reason = fmt.Sprintf("%s API request error", ifEmpty(api, "model"))
	}
	if providerErr.IsRetryable() {
		reason += " (retryable)"
	}
	if msg := strings.TrimSpace(providerErr.Message); msg != "" {
		reason += ": " + msg
	}
	return reason
}

func isContextLengthExceeded(err *fantasy.ProviderError) bool {
	if strings.Contains(strings.ToLower(err.Message), "context_length_exceeded") {
		return true
	}
	return strings.Contains(strings.ToLower(string(err.ResponseBody)), "context_length_exceeded")
}

func ifEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
