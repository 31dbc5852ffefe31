package camera

import "errors"

var (
	// ErrUnknownCamera is returned when a camera id has no entry in the
	// coordinator.
	ErrUnknownCamera = errors.New("camera: unknown camera id")

	// ErrDirectory matches, under errors.Is, every *DirectoryError: a
	// camera's backing directory could not be created or removed.
	ErrDirectory = errors.New("camera: directory operation failed")
)

// DirectoryError wraps a failure to create or remove a camera's backing
// directory, naming both the camera id and the path involved.
type DirectoryError struct {
	CameraID uint32
	Path     string
	Err      error
}

func (e *DirectoryError) Error() string {
	return "camera: directory " + e.Path + ": " + e.Err.Error()
}

func (e *DirectoryError) Unwrap() error { return e.Err }

func (e *DirectoryError) Is(target error) bool { return target == ErrDirectory }
