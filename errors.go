package jobcore

import "errors"

// Sentinel errors for the engine's error taxonomy. Storage, Client, and Parse
// wrap these with context via fmt.Errorf("%w: ..."), so callers compare with
// errors.Is. ErrHandlerNotFound and ErrDeserialization are not returned as
// errors: their text is written into the failed job's ErrorMessage.
var (
	// ErrStorageError marks a backend I/O fault surfaced by a Storage implementation.
	ErrStorageError = errors.New("jobcore: storage error")

	// ErrNotFound marks an UpdateJob (or similar) call against an id that doesn't exist.
	ErrNotFound = errors.New("jobcore: not found")

	// ErrHandlerNotFound marks a job whose type_name has no registered handler.
	ErrHandlerNotFound = errors.New("jobcore: handler not found")

	// ErrDeserialization marks a job whose arguments could not be decoded into the
	// handler's declared input type.
	ErrDeserialization = errors.New("jobcore: deserialization error")

	// ErrInvalidCronExpression marks a cron string that Parse could not accept.
	ErrInvalidCronExpression = errors.New("jobcore: invalid cron expression")

	// ErrNoNextOccurrence marks a bounded cron search that found no match within the
	// search horizon.
	ErrNoNextOccurrence = errors.New("jobcore: no next occurrence found")
)
