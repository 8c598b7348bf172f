// Package raster declares the raster I/O collaborator boundary. The engine
// never interprets raster formats itself; it opens a handle, samples one
// coordinate pair and closes the handle.
package raster

import "context"

// Sampler is the opaque raster I/O collaborator.
type Sampler interface {
	// Open resolves uri to a readable handle.
	Open(ctx context.Context, uri string) (Handle, error)
	// Close releases the handle. Safe to call once per Open.
	Close(h Handle)
}

// Handle is one opened raster file.
type Handle interface {
	// Sample reads the value at (x, y) in the file's native CRS, x being
	// the longitude-derived axis. ok is false at NoData cells.
	Sample(x, y float64) (value float64, ok bool, err error)
	// BytesRead reports the bytes transferred so far for this handle,
	// charged against the egress budget after a successful sample.
	BytesRead() int64
}
