package hhchan

// Options configure a channel's memory/disk tiers. Configuration here is
// explicit-struct-plus-functional-options, not a config file: this is a
// library channel embedded by a caller's own process, unlike the
// teacher's gk/ehaproxy CLI tools which read jsconf-formatted files (see
// DESIGN.md).
type Options struct {
	// MemCapacity is the number of frames the memory tier holds before
	// spilling to disk. Must be >= 1.
	MemCapacity int

	// SegmentMaxBytes caps the size of one segment file before rollover.
	SegmentMaxBytes int64

	// TotalDiskBytes is an optional quota across all segments. Send fails
	// with ErrDiskFull once it would be exceeded. Zero or negative means
	// unbounded.
	TotalDiskBytes int64
}

// DefaultOptions returns the channel's default configuration.
func DefaultOptions() Options {
	return Options{
		MemCapacity:     64,
		SegmentMaxBytes: 8 << 20,
		TotalDiskBytes:  0,
	}
}

// Option mutates Options during New.
type Option func(*Options)

// WithMemCapacity overrides the memory tier's frame capacity.
func WithMemCapacity(n int) Option {
	return func(o *Options) { o.MemCapacity = n }
}

// WithSegmentMaxBytes overrides the per-segment rollover threshold.
func WithSegmentMaxBytes(n int64) Option {
	return func(o *Options) { o.SegmentMaxBytes = n }
}

// WithTotalDiskBytes sets a channel-wide disk quota. n <= 0 means
// unbounded.
func WithTotalDiskBytes(n int64) Option {
	return func(o *Options) { o.TotalDiskBytes = n }
}
