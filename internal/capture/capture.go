// Package capture abstracts the video source owned by a frame worker.
package capture

// Source yields a sequence of encoded frames from a stream URI or file
// path. A Source is exclusively owned by one worker; Close must be safe
// to call regardless of whether Open succeeded.
type Source interface {
	Open() error
	Read() ([]byte, error)
	Close() error
}

// Factory builds a Source for a camera source descriptor.
type Factory func(descriptor string) Source
