// Package errors defines chronicle's error taxonomy and the helpers the
// rest of the codebase uses to create, wrap, and classify failures.
//
// Three domain types cover the subsystems: StoreError for the plain-file
// queue and batch stores, GitError for operations on the versioned store,
// and QueueError for failures tied to a single operation request.
// ValidationError covers rejected input. All of them embed a shared core
// carrying a severity, a retryable flag, and a user-facing flag, which
// IsRetryable, IsUserFacing, and GetSeverity read back out through As.
//
// Sentinels such as ErrLockHeld and ErrRetriesExhausted mark the
// conditions the processing loop branches on; match them with Is. The
// stdlib helpers Is, As, Unwrap, New, and Join are re-exported so callers
// need only this import.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity grades how loudly an error should surface, from debug noise to
// conditions needing immediate attention.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

var severityNames = [...]string{"debug", "info", "warning", "error", "critical"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "unknown"
	}
	return severityNames[s]
}

// Versioned store sentinels.
var (
	// ErrRepositoryBroken marks a repository that failed its integrity probe.
	ErrRepositoryBroken = New("repository failed integrity check")
	// ErrLockHeld marks lock contention with another live process.
	ErrLockHeld = New("store lock is held by another process")
)

// Queue sentinels.
var (
	// ErrInvalidRequest marks an operation request file that would not parse.
	ErrInvalidRequest = New("operation request is malformed")
	// ErrRetriesExhausted marks a request that used up its retry budget.
	ErrRetriesExhausted = New("retry limit reached")
	// ErrEntryCorrupt marks a recorded activity entry that would not parse.
	ErrEntryCorrupt = New("queue entry is corrupt")
)

// ErrInvalidInput marks rejected input; every ValidationError matches it.
var ErrInvalidInput = New("invalid input")

// ChronicleError is the classification surface shared by the typed errors
// in this package. The package-level helpers reach it through As, so
// wrapping with fmt.Errorf("%w") keeps classification intact.
type ChronicleError interface {
	error

	Unwrap() error
	Is(target error) bool

	// Severity returns how loudly the error should surface.
	Severity() Severity

	// IsRetryable reports whether a later attempt may succeed.
	IsRetryable() bool

	// IsUserFacing reports whether the message is fit for end users.
	IsUserFacing() bool
}

// baseError holds the fields every typed error shares. The concrete types
// embed it and add their own context fields.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

// Is matches through the cause chain so typed errors build on sentinels,
// e.g. NewQueueError(msg, ErrRetriesExhausted) matches ErrRetriesExhausted.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsRetryable() bool  { return e.retryable }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

// contextPrefix renders "kind [k=v, k=v]", or just kind when no context
// was attached.
func contextPrefix(kind string, pairs []string) string {
	if len(pairs) == 0 {
		return kind
	}
	return fmt.Sprintf("%s [%s]", kind, strings.Join(pairs, ", "))
}

// StoreError reports a failure in the file-backed queue and batch stores.
// The files involved stay in place, so store errors default to retryable:
// the same operation runs again on a later processing cycle.
type StoreError struct {
	baseError
	Path string
}

// NewStoreError creates a StoreError wrapping cause.
func NewStoreError(message string, cause error) *StoreError {
	return &StoreError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityError,
			retryable: true,
		},
	}
}

// WithPath records the file or directory the failure touched.
func (e *StoreError) WithPath(path string) *StoreError {
	e.Path = path
	return e
}

// WithSeverity overrides the default severity.
func (e *StoreError) WithSeverity(s Severity) *StoreError {
	e.severity = s
	return e
}

// WithRetryable overrides the default retryable flag.
func (e *StoreError) WithRetryable(r bool) *StoreError {
	e.retryable = r
	return e
}

func (e *StoreError) Error() string {
	var ctx []string
	if e.Path != "" {
		ctx = append(ctx, "path="+e.Path)
	}
	prefix := contextPrefix("store error", ctx)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return prefix + ": " + e.message
}

// Is matches any *StoreError target, then falls through to the cause chain.
func (e *StoreError) Is(target error) bool {
	if _, ok := target.(*StoreError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// GitError reports a failed git operation on the versioned store. It is
// user-facing and carries the captured subprocess output, since git's own
// message is usually the most useful part of the diagnosis.
type GitError struct {
	baseError
	Repository string
	Remote     string
	GitOutput  string
}

// NewGitError creates a GitError wrapping cause.
func NewGitError(message string, cause error) *GitError {
	return &GitError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithRepository records the repository the command ran in.
func (e *GitError) WithRepository(path string) *GitError {
	e.Repository = path
	return e
}

// WithRemote records the remote involved.
func (e *GitError) WithRemote(remote string) *GitError {
	e.Remote = remote
	return e
}

// WithGitOutput attaches the combined output of the failed command.
func (e *GitError) WithGitOutput(output string) *GitError {
	e.GitOutput = output
	return e
}

// WithSeverity overrides the default severity.
func (e *GitError) WithSeverity(s Severity) *GitError {
	e.severity = s
	return e
}

// WithRetryable overrides the default retryable flag.
func (e *GitError) WithRetryable(r bool) *GitError {
	e.retryable = r
	return e
}

func (e *GitError) Error() string {
	var ctx []string
	if e.Repository != "" {
		ctx = append(ctx, "repo="+e.Repository)
	}
	if e.Remote != "" {
		ctx = append(ctx, "remote="+e.Remote)
	}

	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.GitOutput != "" {
		msg += "\ngit output: " + e.GitOutput
	}
	return contextPrefix("git error", ctx) + ": " + msg
}

// Is matches any *GitError target, then falls through to the cause chain.
func (e *GitError) Is(target error) bool {
	if _, ok := target.(*GitError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// QueueError reports a failure tied to a single operation request. The
// request file stays in the mailbox, so queue errors default to retryable
// with warning severity; the retry counter decides when to give up.
type QueueError struct {
	baseError
	File     string
	Attempts int
}

// NewQueueError creates a QueueError wrapping cause. Attempts starts at
// -1, meaning "not recorded".
func NewQueueError(message string, cause error) *QueueError {
	return &QueueError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityWarning,
			retryable: true,
		},
		Attempts: -1,
	}
}

// WithFile records the request file name.
func (e *QueueError) WithFile(file string) *QueueError {
	e.File = file
	return e
}

// WithAttempts records how many processing attempts have failed.
func (e *QueueError) WithAttempts(attempts int) *QueueError {
	e.Attempts = attempts
	return e
}

// WithSeverity overrides the default severity.
func (e *QueueError) WithSeverity(s Severity) *QueueError {
	e.severity = s
	return e
}

// WithRetryable overrides the default retryable flag.
func (e *QueueError) WithRetryable(r bool) *QueueError {
	e.retryable = r
	return e
}

func (e *QueueError) Error() string {
	var ctx []string
	if e.File != "" {
		ctx = append(ctx, "file="+e.File)
	}
	if e.Attempts >= 0 {
		ctx = append(ctx, fmt.Sprintf("attempts=%d", e.Attempts))
	}
	prefix := contextPrefix("queue error", ctx)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return prefix + ": " + e.message
}

// Is matches any *QueueError target, then falls through to the cause chain.
func (e *QueueError) Is(target error) bool {
	if _, ok := target.(*QueueError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError reports rejected input or state. Always user-facing,
// never retryable: resubmitting the same input cannot help.
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField names the offending field.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue records the rejected value.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause attaches an underlying error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

func (e *ValidationError) Error() string {
	var ctx []string
	if e.Field != "" {
		ctx = append(ctx, "field="+e.Field)
	}
	if e.Value != nil {
		ctx = append(ctx, fmt.Sprintf("value=%v", e.Value))
	}
	prefix := contextPrefix("validation error", ctx)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return prefix + ": " + e.message
}

// Is matches any *ValidationError target and the ErrInvalidInput
// sentinel, then falls through to the cause chain.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// IsRetryable reports whether err is transient: either a typed error
// flagged retryable, or lock contention, which resolves itself once the
// holder finishes. Retryable failures are left for the next cycle.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce ChronicleError
	if As(err, &ce) {
		return ce.IsRetryable()
	}
	return Is(err, ErrLockHeld)
}

// IsUserFacing reports whether err's message is fit to show end users.
// Anything else should be summarized for the user and logged in full.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var ce ChronicleError
	if As(err, &ce) {
		return ce.IsUserFacing()
	}
	var validation *ValidationError
	return As(err, &validation)
}

// GetSeverity returns err's severity, defaulting to SeverityError for
// plain errors and SeverityDebug for nil.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var ce ChronicleError
	if As(err, &ce) {
		return ce.Severity()
	}
	return SeverityError
}

// IsDomainError reports whether err is one of the subsystem error types
// (StoreError, GitError, QueueError).
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}
	var storeErr *StoreError
	var gitErr *GitError
	var queueErr *QueueError
	return As(err, &storeErr) || As(err, &gitErr) || As(err, &queueErr)
}

// Wrap prefixes err with message. The result still matches err through
// Is and As. A nil err stays nil, so call sites can wrap unconditionally.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
