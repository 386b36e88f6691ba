package platform

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound matches missing named entities and HTTP 404 responses.
	ErrNotFound = errors.New("platform: not found")
	// ErrRemote matches every RemoteError.
	ErrRemote = errors.New("platform: remote failure")
)

// NotFound builds the error returned when a named resource does not exist.
func NotFound(kind, name string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, name)
}

// RemoteError is a failed platform call: transport failure (Status 0) or a
// non-2xx response.
type RemoteError struct {
	Method string
	Path   string
	Status int
	Body   string
	Err    error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "platform: %s %s", e.Method, e.Path)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		if len(body) > 256 {
			body = body[:256] + "..."
		}
		fmt.Fprintf(&b, ": %s", body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemote:
		return true
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
