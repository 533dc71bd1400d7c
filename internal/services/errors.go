package services

import "errors"

var (
	ErrInvalidFile      = errors.New("invalid file")
	ErrFileTooLarge     = errors.New("file too large")
	ErrCorruptedFile    = errors.New("corrupted file")
	ErrDuplicateFile    = errors.New("duplicate file")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrDocumentNotReady = errors.New("document not processed yet")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// permanentError marks a task failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the task runner does not schedule another attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
