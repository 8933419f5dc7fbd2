package scheduler

import (
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/goosehq/goose/internal/logging"
)

// NormalizeCron rewrites a cron string to the 7-field quartz form
// (seconds first, year last). 5-field input gains "0" seconds and a "*"
// year; 6-field input gains the "*" year; 7-field input passes through.
// Anything else passes through unchanged with a logged warning.
// Normalization is idempotent.
func NormalizeCron(expr string) string {
	fields := strings.Fields(expr)
	switch len(fields) {
	case 5:
		return "0 " + strings.Join(fields, " ") + " *"
	case 6:
		return strings.Join(fields, " ") + " *"
	case 7:
		return strings.Join(fields, " ")
	default:
		logging.Warn().Str("cron", expr).Int("fields", len(fields)).Msg("unrecognized cron field count; passing through")
		return expr
	}
}

// ValidateCron reports whether the normalized expression parses.
func ValidateCron(expr string) error {
	if !gronx.New().IsValid(NormalizeCron(expr)) {
		return schedErr(ErrCronParse, "", "invalid cron expression: %q", expr)
	}
	return nil
}

// NextFire computes the next fire time strictly after ref.
func NextFire(expr string, ref time.Time) (time.Time, error) {
	next, err := gronx.NextTickAfter(NormalizeCron(expr), ref, false)
	if err != nil {
		return time.Time{}, schedErr(ErrCronParse, "", "cannot compute next fire for %q: %v", expr, err)
	}
	return next, nil
}
