package common

import (
	"fmt"
	"slices"
	"strings"

	"atsbeaters/internal/errors"
)

// ValidateOutputFormat rejects a format that app.supportedFormats leaves out.
// An empty list allows every format the formatters know.
func ValidateOutputFormat(format string, allowed []string) error {
	if len(allowed) == 0 || slices.Contains(allowed, format) {
		return nil
	}
	return errors.NewValidationError(errors.ErrCodeInvalidFormat,
		fmt.Sprintf("format %q is not enabled; use one of %s", format, strings.Join(allowed, ", ")), nil).
		WithContext("format", format)
}
