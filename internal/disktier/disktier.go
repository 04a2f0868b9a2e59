// Package disktier implements the channel's disk-backed FIFO: a
// byte-bounded sequence of frames spread across segment files, written by
// many producers (serialized by writeMu) and drained by the single
// consumer (serialized by readMu).
//
// The write/read control flow is the teacher's hinted-handoff queue
// (funkygao/gafka, cmd/kateway/hh/disk: queue.Append/queue.Next) carried
// over almost unchanged — retry on io.EOF at an open tail, discard and
// advance on a corrupt sealed segment — generalized from gafka's
// always-spill design to the byte-quota-aware, corruption-accounted tier
// this channel's coordinator needs.
package disktier

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/funkygao/golib/sync2"
	log "github.com/funkygao/log4go"

	"github.com/funkygao/hhchan/internal/frame"
	"github.com/funkygao/hhchan/internal/segment"
)

// ErrEmpty is returned by Read when there is nothing ready to deliver —
// either no frames are outstanding, or the only candidate segment is the
// open tail and the writer hasn't finished the frame yet.
var ErrEmpty = errors.New("disktier: empty")

// ErrDiskFull is returned by Write when the tier's total-bytes quota
// would be exceeded by the frame being written.
var ErrDiskFull = errors.New("disktier: disk quota exceeded")

// ErrChannelCorrupt is returned when a structural invariant is violated,
// e.g. a segment file collision caused by two writers pointed at the same
// directory.
var ErrChannelCorrupt = errors.New("disktier: channel corrupt")

// Tier is a disk-backed FIFO of frames rooted at one directory.
type Tier struct {
	dir            *segment.Directory
	segMaxBytes    int64
	totalDiskBytes int64 // <= 0 means unbounded

	writeMu sync.Mutex
	writer  *segment.Writer

	readMu        sync.Mutex
	reader        *segment.Reader
	framesInSeg   int64 // frames read from the current reader's segment so far

	outstanding sync2.AtomicInt64
	diskBytes   sync2.AtomicInt64

	sealedFramesMu sync.Mutex
	sealedFrames   map[segment.ID]int64
}

// New returns a Tier rooted at dir, eagerly creating its first segment —
// mirroring the teacher's queue.Open(), which always ensures at least one
// segment exists before the queue is usable. dir must already exist and
// be owned exclusively by this channel. totalDiskBytes <= 0 means no
// quota.
func New(dir string, segMaxBytes, totalDiskBytes int64) (*Tier, error) {
	t := &Tier{
		dir:            segment.New(dir),
		segMaxBytes:    segMaxBytes,
		totalDiskBytes: totalDiskBytes,
		sealedFrames:   make(map[segment.ID]int64),
	}
	w, err := t.dir.EnsureOpenSegment(segMaxBytes)
	if err != nil {
		return nil, mapCorrupt(err)
	}
	t.writer = w.Writer
	return t, nil
}

// Outstanding returns the number of frames written but not yet consumed.
func (t *Tier) Outstanding() int64 {
	return t.outstanding.Get()
}

// DiskBytes returns the approximate number of bytes currently occupied by
// unconsumed and in-flight frames, for quota accounting.
func (t *Tier) DiskBytes() int64 {
	return t.diskBytes.Get()
}

// Write appends body as one frame to the tier's tail segment, rolling
// over to a new segment when the current one would exceed segMaxBytes.
//
// A frame that alone exceeds segMaxBytes is still written — into its own,
// otherwise-empty segment — and that segment is sealed immediately
// afterward so the rollover invariant (Sealed segments never grow) holds.
func (t *Tier) Write(body []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	l := frame.Len(len(body))

	if t.totalDiskBytes > 0 && t.diskBytes.Get()+l > t.totalDiskBytes {
		return ErrDiskFull
	}

	if t.writer == nil {
		w, err := t.dir.EnsureOpenSegment(t.segMaxBytes)
		if err != nil {
			return mapCorrupt(err)
		}
		t.writer = w.Writer
	} else if t.writer.Size() > 0 && t.writer.Size()+l > t.segMaxBytes {
		if err := t.sealWriterLocked(); err != nil {
			return err
		}
		w, err := t.dir.EnsureOpenSegment(t.segMaxBytes)
		if err != nil {
			return mapCorrupt(err)
		}
		t.writer = w.Writer
	}

	if err := t.writer.Append(body); err != nil {
		return fmt.Errorf("disktier: append: %w", err)
	}
	t.diskBytes.Add(l)
	t.outstanding.Add(1)

	if t.writer.Size() >= t.segMaxBytes {
		if err := t.sealWriterLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tier) sealWriterLocked() error {
	id, frames := t.writer.ID(), t.writer.Frames()
	if err := t.writer.Seal(); err != nil {
		return fmt.Errorf("disktier: seal segment %d: %w", id, err)
	}
	t.sealedFramesMu.Lock()
	t.sealedFrames[id] = frames
	t.sealedFramesMu.Unlock()
	t.writer = nil
	return nil
}

func mapCorrupt(err error) error {
	if errors.Is(err, segment.ErrExists) {
		return fmt.Errorf("%w: %v", ErrChannelCorrupt, err)
	}
	return err
}

// Read returns the next frame in FIFO order, or ErrEmpty if nothing is
// ready yet.
func (t *Tier) Read() ([]byte, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	for {
		if t.outstanding.Get() == 0 {
			return nil, ErrEmpty
		}

		if t.reader == nil {
			ids, err := t.dir.List()
			if err != nil {
				return nil, err
			}
			if len(ids) == 0 {
				return nil, ErrEmpty
			}
			r, err := segment.OpenForRead(t.dir.Dir(), ids[0], 0)
			if err != nil {
				return nil, err
			}
			t.reader = r
			t.framesInSeg = 0
		}

		body, err := t.reader.ReadFrame()
		switch {
		case err == nil:
			t.framesInSeg++
			t.outstanding.Add(-1)
			t.diskBytes.Add(-frame.Len(len(body)))
			return body, nil

		case errors.Is(err, io.EOF):
			sealed, size, serr := t.tailState()
			if serr != nil {
				return nil, serr
			}
			if sealed && t.reader.Offset() == size {
				if err := t.advancePastReaderLocked(); err != nil {
					return nil, err
				}
				continue
			}
			return nil, ErrEmpty

		case errors.Is(err, frame.ErrCorruptFrame):
			sealed, _, serr := t.tailState()
			if serr != nil {
				return nil, serr
			}
			if sealed {
				t.accountLostFramesLocked()
				if err := t.advancePastReaderLocked(); err != nil {
					return nil, err
				}
				continue
			}
			return nil, ErrEmpty

		default:
			return nil, err
		}
	}
}

func (t *Tier) tailState() (sealed bool, size int64, err error) {
	id := t.reader.ID()
	sealed, err = t.dir.IsSealed(id)
	if err != nil {
		return false, 0, err
	}
	size, err = t.dir.Size(id)
	if err != nil {
		return false, 0, err
	}
	return sealed, size, nil
}

// accountLostFramesLocked discards the remainder of the current sealed
// segment after a checksum failure: it subtracts the frames we never got
// to read in that segment from the outstanding counter, when the writer
// recorded how many frames it put there.
func (t *Tier) accountLostFramesLocked() {
	id := t.reader.ID()
	t.sealedFramesMu.Lock()
	total, ok := t.sealedFrames[id]
	t.sealedFramesMu.Unlock()
	if !ok {
		log.Warn("disktier[%s]: segment %d corrupt tail, frame count unknown, outstanding may overcount", t.dir.Dir(), id)
		return
	}
	lost := total - t.framesInSeg
	if lost > 0 {
		t.outstanding.Add(-lost)
		log.Error("disktier[%s]: segment %d corrupt tail, discarding %d unread frame(s)", t.dir.Dir(), id, lost)
	}
}

// advancePastReaderLocked closes and deletes the current reader's
// segment, now fully consumed (or corrupt-and-abandoned), and positions
// the tier to open the next one on the following Read call.
func (t *Tier) advancePastReaderLocked() error {
	id := t.reader.ID()
	if err := t.reader.Close(); err != nil {
		return err
	}
	if err := t.dir.Delete(id); err != nil {
		return err
	}
	t.sealedFramesMu.Lock()
	delete(t.sealedFrames, id)
	t.sealedFramesMu.Unlock()
	t.reader = nil
	return nil
}

// Close releases any open file handles without deleting segment data.
func (t *Tier) Close() error {
	t.writeMu.Lock()
	if t.writer != nil {
		t.writer.Close()
		t.writer = nil
	}
	t.writeMu.Unlock()

	t.readMu.Lock()
	defer t.readMu.Unlock()
	if t.reader != nil {
		err := t.reader.Close()
		t.reader = nil
		return err
	}
	return nil
}
