package queue

import "errors"

// ErrorClassifier allows errors to declare their classification for status
// mapping. Errors that implement this interface can influence whether a
// dispatch failure results in StatusFailed (retryable) or StatusCancelled.
type ErrorClassifier interface {
	// ErrorKind returns a string classification of the error.
	ErrorKind() string
}

// FailureStatus maps a dispatch error to the job status the processor
// should persist after the job fails.
func FailureStatus(err error) Status {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		if classifier.ErrorKind() == "cancelled" {
			return StatusCancelled
		}
	}
	return StatusFailed
}
