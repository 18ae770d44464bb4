package netinstall

import "io"

// FileSpec describes one file to upload: a name as it should appear
// on the device, its size, and a reader positioned at its first byte.
// The session engine closes Reader on every exit path (success or
// abort) once it has been consumed.
type FileSpec struct {
	Name   string
	Size   int64
	Reader io.ReadCloser
}
