package downloads

import "fmt"

// ErrNotFound reports a reference to a download id with no matching record.
type ErrNotFound struct {
	ID string
}

func (e ErrNotFound) Error() string { return fmt.Sprintf("download %q not found", e.ID) }

func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}

// ErrNetworkFailure wraps a transport-level failure fetching a file.
type ErrNetworkFailure struct {
	Repo string
	Path string
	Err  error
}

func (e ErrNetworkFailure) Error() string {
	return fmt.Sprintf("download %s/%s: %v", e.Repo, e.Path, e.Err)
}

func (e ErrNetworkFailure) Unwrap() error { return e.Err }

func IsNetworkFailure(err error) bool {
	_, ok := err.(ErrNetworkFailure)
	return ok
}

// ErrCancelled reports that a download was cancelled mid-transfer.
type ErrCancelled struct {
	ID string
}

func (e ErrCancelled) Error() string { return fmt.Sprintf("download %q cancelled", e.ID) }

func IsCancelled(err error) bool {
	_, ok := err.(ErrCancelled)
	return ok
}

// ErrIntegrityFailure reports a file whose downloaded size never matched
// the size the registry advertised.
type ErrIntegrityFailure struct {
	Path            string
	Expected, Got   int64
}

func (e ErrIntegrityFailure) Error() string {
	return fmt.Sprintf("integrity check failed for %s: expected %d bytes, got %d", e.Path, e.Expected, e.Got)
}

func IsIntegrityFailure(err error) bool {
	_, ok := err.(ErrIntegrityFailure)
	return ok
}
