package hhchan

import (
	"errors"

	"github.com/funkygao/hhchan/internal/disktier"
)

// Error kinds surfaced to callers, named after the teacher's own
// Err<Noun> sentinel convention (ErrQueueFull, ErrSegmentFull, ErrEOQ in
// funkygao/gafka's cmd/kateway/hh/disk).
var (
	// ErrIO wraps an unexpected filesystem error from a send or recv; the
	// operation's state is left unchanged.
	ErrIO = errors.New("hhchan: io error")

	// ErrDiskFull is returned by Send when the channel has a disk quota
	// and writing the frame would exceed it. The item is not enqueued.
	ErrDiskFull = disktier.ErrDiskFull

	// ErrEncode is returned by Send when the codec fails to encode a
	// payload.
	ErrEncode = errors.New("hhchan: encode error")

	// ErrDecode is returned by Recv/TryRecv when the codec fails to
	// decode a frame read back from disk. Once this happens the channel
	// is considered corrupt: every subsequent Recv/TryRecv returns the
	// same error.
	ErrDecode = errors.New("hhchan: decode error")

	// ErrDisconnected is returned by Send when the consumer is gone, and
	// by Recv/TryRecv when all producers are gone and both tiers are
	// drained.
	ErrDisconnected = errors.New("hhchan: disconnected")

	// ErrChannelCorrupt indicates a structural invariant was violated —
	// e.g. two writers collided on the same segment file, which should
	// only happen if something outside this package wrote into the
	// channel's directory.
	ErrChannelCorrupt = disktier.ErrChannelCorrupt

	// ErrEmpty is returned by TryRecv when neither tier has anything
	// ready to deliver.
	ErrEmpty = errors.New("hhchan: empty")
)
