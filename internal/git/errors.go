package git

import "errors"

var (
	// ErrUnavailable is returned when the git executable is missing or too old.
	ErrUnavailable = errors.New("git executable unavailable")
	// ErrNoIndex is returned when no index can be built for the repository.
	ErrNoIndex = errors.New("repository has no working index")
	// ErrAttach wraps failures of the host mapping step in Manager.Attach.
	ErrAttach = errors.New("attach repository")
)
