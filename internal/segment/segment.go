// Package segment manages the numbered, append-only files that back a
// channel's disk tier, and the directory that holds them.
//
// A segment is Open (writable) or Sealed (the filesystem read-only bit is
// set). At most one segment in a directory is ever Open; it is always the
// highest-numbered one. The layout and the sealed-via-chmod convention
// follow the teacher's hinted-handoff queue (funkygao/gafka,
// cmd/kateway/hh/disk), generalized from gafka's fixed-width
// "%020d"-named segments to plain decimal names, per spec.
package segment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	log "github.com/funkygao/log4go"

	"github.com/funkygao/hhchan/internal/frame"
)

// ID identifies a segment file by its decimal file name.
type ID uint64

// sealedMode is the permission bits a Sealed segment carries: read-only
// for everyone, matching the teacher's "set the read-only bit" seal.
const sealedMode fs.FileMode = 0o444

// openMode is the permission bits a freshly created, Open segment carries.
const openMode fs.FileMode = 0o644

// ErrExists is returned by Create when a segment with that id already
// exists — the on-disk signature of two writers racing on one directory.
var ErrExists = os.ErrExist

// ErrNotFound is returned by OpenForRead when the segment does not exist.
var ErrNotFound = os.ErrNotExist

// Path returns the path of segment id under dir.
func Path(dir string, id ID) string {
	return filepath.Join(dir, strconv.FormatUint(uint64(id), 10))
}

// IsSealed reports whether the segment's read-only bit is set.
func IsSealed(dir string, id ID) (bool, error) {
	fi, err := os.Stat(Path(dir, id))
	if err != nil {
		return false, err
	}
	return fi.Mode().Perm()&0o200 == 0, nil
}

// Size returns the segment's current byte length.
func Size(dir string, id ID) (int64, error) {
	fi, err := os.Stat(Path(dir, id))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Delete removes the segment file. It is a no-op (returns nil) if the
// file is already gone.
func Delete(dir string, id ID) error {
	err := os.Remove(Path(dir, id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Writer appends frames to one Open segment.
type Writer struct {
	id     ID
	path   string
	f      *os.File
	size   int64
	frames int64 // frames appended since Create, used by Tier to size losses on corruption
}

// Create creates segment id under dir for appending. It fails with
// ErrExists if the file is already present.
func Create(dir string, id ID) (*Writer, error) {
	path := Path(dir, id)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, openMode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("segment %d: %w", id, ErrExists)
		}
		return nil, err
	}
	return &Writer{id: id, path: path, f: f}, nil
}

// ID returns the segment's numeric id.
func (w *Writer) ID() ID { return w.id }

// Size returns the number of bytes appended to the segment so far.
func (w *Writer) Size() int64 { return w.size }

// Frames returns the number of frames appended to the segment so far.
func (w *Writer) Frames() int64 { return w.frames }

// Append writes body as one frame to the segment's tail.
func (w *Writer) Append(body []byte) error {
	n, err := frame.WriteFrame(w.f, body)
	w.size += int64(n)
	if err != nil {
		return err
	}
	w.frames++
	return nil
}

// Seal flushes the segment to the OS, closes it, and sets its read-only
// bit so no further appends are possible.
func (w *Writer) Seal() error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	if err := w.f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(w.path, sealedMode); err != nil {
		return err
	}
	log.Trace("segment[%d] sealed at %d bytes, %d frames", w.id, w.size, w.frames)
	return nil
}

// Close closes the writer without sealing the segment. Used on teardown
// of a channel that is not fully drained.
func (w *Writer) Close() error {
	return w.f.Close()
}

// Reader reads frames sequentially from one segment, starting at a given
// byte offset.
type Reader struct {
	id     ID
	path   string
	f      *os.File
	offset int64
}

// OpenForRead opens segment id under dir for sequential reading,
// positioned at the given byte offset.
func OpenForRead(dir string, id ID, offset int64) (*Reader, error) {
	path := Path(dir, id)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("segment %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, os.SEEK_SET); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &Reader{id: id, path: path, f: f, offset: offset}, nil
}

// ID returns the segment's numeric id.
func (r *Reader) ID() ID { return r.id }

// Offset returns the reader's current byte offset within the segment.
func (r *Reader) Offset() int64 { return r.offset }

// ReadFrame reads the next frame from the segment, returning io.EOF at a
// clean frame boundary and frame.ErrCorruptFrame on a torn or corrupt one.
func (r *Reader) ReadFrame() ([]byte, error) {
	body, err := frame.ReadFrame(r.f)
	if err != nil {
		return nil, err
	}
	r.offset += frame.Len(len(body))
	return body, nil
}

// Close closes the reader's underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}
