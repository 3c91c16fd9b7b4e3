package mcp

import (
	"fmt"
	"strings"

	"github.com/HyphaGroup/parker/internal/logger"
)

// internalErrorPatterns contains substrings that indicate internal errors
var internalErrorPatterns = []string{
	"database",
	"sqlite",
	"no such file",
	"permission denied",
	"context canceled",
	"EOF",
}

// userFacingPatterns mark errors that describe the state of the search
// rather than a fault in the server.
var userFacingPatterns = []string{
	"not found",
	"invalid",
	"required",
	"must be",
	"paused",
	"not active",
	"rejected",
	"not available",
	"exhausted",
}

// SanitizeError returns a client-safe error message.
// Internal details are logged but not exposed to clients.
func SanitizeError(err error, operation string) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	for _, pattern := range internalErrorPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			logger.Error("%s failed (internal): %v", operation, err)
			return fmt.Errorf("%s failed: internal error", operation)
		}
	}

	for _, pattern := range userFacingPatterns {
		if strings.Contains(lower, pattern) {
			return err
		}
	}

	logger.Error("%s failed: %v", operation, err)
	if len(errStr) < 50 {
		return fmt.Errorf("%s failed: %s", operation, errStr)
	}
	return fmt.Errorf("%s failed: an unexpected error occurred", operation)
}
