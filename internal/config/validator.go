package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError describes one rejected config value: which field, what
// was given, and why it was rejected.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors bundles every failure from a Validate pass so the user
// sees all problems at once instead of fixing them one reload at a time.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		return e[0].Error()
	}

	lines := make([]string, 0, len(e)+1)
	lines = append(lines, fmt.Sprintf("%d validation errors:", len(e)))
	for i, err := range e {
		lines = append(lines, fmt.Sprintf("  %d. %s", i+1, err.Error()))
	}
	return strings.Join(lines, "\n") + "\n"
}

// ValidLogLevels lists the accepted values for log.level.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// minutesPerDay is the divisibility base for report buckets.
const minutesPerDay = 24 * 60

// Validate checks every field of the Config and returns the full list of
// problems, not just the first one.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateScheduling()...)
	errors = append(errors, c.validateBuckets()...)
	errors = append(errors, c.validateGit()...)
	errors = append(errors, c.validateLog()...)

	return errors
}

// validateScheduling validates the daemon timing knobs
func (c *Config) validateScheduling() []ValidationError {
	var errors []ValidationError

	const minProcessInterval = 1 * time.Second
	if c.ProcessInterval < minProcessInterval {
		errors = append(errors, ValidationError{
			Field:   "process_interval",
			Value:   c.ProcessInterval,
			Message: fmt.Sprintf("must be at least %s", minProcessInterval),
		})
	}

	// The flush feeds daily aggregation; running it faster than once a
	// minute just churns single-entry batches.
	const minFlushInterval = 60 * time.Second
	const maxFlushInterval = 300 * time.Second
	if c.FlushInterval < minFlushInterval {
		errors = append(errors, ValidationError{
			Field:   "flush_interval",
			Value:   c.FlushInterval,
			Message: fmt.Sprintf("must be at least %s", minFlushInterval),
		})
	}
	if c.FlushInterval > maxFlushInterval {
		errors = append(errors, ValidationError{
			Field:   "flush_interval",
			Value:   c.FlushInterval,
			Message: fmt.Sprintf("exceeds maximum of %s", maxFlushInterval),
		})
	}

	const maxLockTimeout = 60 * time.Second
	if c.LockTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "lock_timeout",
			Value:   c.LockTimeout,
			Message: "must be positive",
		})
	}
	if c.LockTimeout > maxLockTimeout {
		errors = append(errors, ValidationError{
			Field:   "lock_timeout",
			Value:   c.LockTimeout,
			Message: fmt.Sprintf("exceeds maximum of %s", maxLockTimeout),
		})
	}

	return errors
}

// validateBuckets validates the report bucketing config
func (c *Config) validateBuckets() []ValidationError {
	var errors []ValidationError

	if c.BucketMinutes < 1 || c.BucketMinutes > minutesPerDay {
		errors = append(errors, ValidationError{
			Field:   "bucket_minutes",
			Value:   c.BucketMinutes,
			Message: fmt.Sprintf("must be between 1 and %d", minutesPerDay),
		})
	} else if minutesPerDay%c.BucketMinutes != 0 {
		errors = append(errors, ValidationError{
			Field:   "bucket_minutes",
			Value:   c.BucketMinutes,
			Message: "must divide a day evenly",
		})
	}

	return errors
}

// validateGit validates the commit identity
func (c *Config) validateGit() []ValidationError {
	var errors []ValidationError

	if c.Git.AuthorEmail != "" && !strings.Contains(c.Git.AuthorEmail, "@") {
		errors = append(errors, ValidationError{
			Field:   "git.author_email",
			Value:   c.Git.AuthorEmail,
			Message: "must look like an email address",
		})
	}

	return errors
}

// validateLog validates the LogConfig
func (c *Config) validateLog() []ValidationError {
	var errors []ValidationError

	if c.Log.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Log.Level)) {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Value:   c.Log.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	const maxLogSizeMB = 1000
	if c.Log.MaxSizeMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "log.max_size_mb",
			Value:   c.Log.MaxSizeMB,
			Message: "must be at least 1",
		})
	}
	if c.Log.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "log.max_size_mb",
			Value:   c.Log.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %d", maxLogSizeMB),
		})
	}

	const maxLogBackups = 100
	if c.Log.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "log.max_backups",
			Value:   c.Log.MaxBackups,
			Message: "must be non-negative",
		})
	}
	if c.Log.MaxBackups > maxLogBackups {
		errors = append(errors, ValidationError{
			Field:   "log.max_backups",
			Value:   c.Log.MaxBackups,
			Message: fmt.Sprintf("exceeds maximum of %d", maxLogBackups),
		})
	}

	return errors
}
