package segment

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	log "github.com/funkygao/log4go"
)

// Directory discovers, orders, creates, seals, and deletes the segments
// under a single channel's data directory. Only one goroutine (the disk
// tier's write path, under its write lock) may call EnsureOpenSegment at a
// time. List reads the directory and may also delete a stale empty Open
// segment below the highest one (see pruneStaleEmptyOpen).
type Directory struct {
	dir string
}

// New returns a Directory rooted at dir. dir must already exist.
func New(dir string) *Directory {
	return &Directory{dir: dir}
}

// Dir returns the directory path.
func (d *Directory) Dir() string { return d.dir }

// List returns the ids of segment files present under the directory, in
// ascending numeric order. Entries whose name is not a valid
// non-negative decimal integer are ignored (this is how the cursor's
// position-marker file, if any, and stray files are skipped).
func (d *Directory) List() ([]ID, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}

	ids := make([]ID, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, ID(n))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	d.pruneStaleEmptyOpen(ids)
	return ids, nil
}

// pruneStaleEmptyOpen implements spec §4.3's edge case: an Open segment
// that is empty and not the highest-numbered one should never occur in
// normal operation (the directory is exclusively owned by one channel for
// its whole lifetime, and this channel never leaves more than one Open
// segment lying around) but could follow an irregular shutdown of a
// future multi-process extension; clean it up defensively rather than let
// it wedge List/NextID's ordering assumptions.
func (d *Directory) pruneStaleEmptyOpen(ids []ID) {
	if len(ids) < 2 {
		return
	}
	highest := ids[len(ids)-1]
	for _, id := range ids[:len(ids)-1] {
		sealed, err := IsSealed(d.dir, id)
		if err != nil || sealed {
			continue
		}
		size, err := Size(d.dir, id)
		if err != nil || size != 0 {
			continue
		}
		log.Warn("segment dir[%s]: deleting stale empty open segment %d (highest is %d)", d.dir, id, highest)
		Delete(d.dir, id)
	}
}

// NextID returns one plus the maximum existing segment id, or 0 if the
// directory is empty.
func (d *Directory) NextID() (ID, error) {
	ids, err := d.List()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[len(ids)-1] + 1, nil
}

// OpenSegment is the writable tail segment returned by EnsureOpenSegment.
type OpenSegment struct {
	Writer *Writer
	Fresh  bool // true if this segment was just created (size 0, no prior appender)
}

// EnsureOpenSegment returns a writer for the current tail segment,
// creating one if none exists, or sealing the current tail and creating a
// new one if it has reached maxBytes.
//
// Callers that already hold a live Writer for the current tail should not
// call this again until they intend to roll over; EnsureOpenSegment
// always opens (or creates) a fresh *os.File.
func (d *Directory) EnsureOpenSegment(maxBytes int64) (*OpenSegment, error) {
	ids, err := d.List()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		w, err := Create(d.dir, 0)
		if err != nil {
			return nil, err
		}
		log.Trace("segment dir[%s]: created first segment 0", d.dir)
		return &OpenSegment{Writer: w, Fresh: true}, nil
	}

	tail := ids[len(ids)-1]
	sealed, err := IsSealed(d.dir, tail)
	if err != nil {
		return nil, err
	}
	if !sealed {
		size, err := Size(d.dir, tail)
		if err != nil {
			return nil, err
		}
		if size < maxBytes {
			w, err := openForAppend(d.dir, tail, size)
			if err != nil {
				return nil, err
			}
			return &OpenSegment{Writer: w}, nil
		}
		// Tail reached capacity: seal it before creating the next one.
		if err := sealExisting(d.dir, tail); err != nil {
			return nil, err
		}
	}

	next := tail + 1
	w, err := Create(d.dir, next)
	if err != nil {
		return nil, err
	}
	log.Trace("segment dir[%s]: rolled over to segment %d", d.dir, next)
	return &OpenSegment{Writer: w, Fresh: true}, nil
}

// openForAppend reopens an existing, not-yet-sealed segment for further
// writes, picking its size up from where the prior writer left off.
func openForAppend(dir string, id ID, size int64) (*Writer, error) {
	path := Path(dir, id)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, openMode)
	if err != nil {
		return nil, fmt.Errorf("segment %d: reopen for append: %w", id, err)
	}
	return &Writer{id: id, path: path, f: f, size: size}, nil
}

// sealExisting seals a segment by id when the caller does not hold a live
// Writer for it (e.g. after a fresh Directory.List discovers an unsealed
// tail at capacity).
func sealExisting(dir string, id ID) error {
	path := Path(dir, id)
	if err := os.Chmod(path, sealedMode); err != nil {
		return err
	}
	log.Trace("segment[%d] sealed via directory rollover", id)
	return nil
}

// Delete removes segment id from the directory.
func (d *Directory) Delete(id ID) error {
	return Delete(d.dir, id)
}

// IsSealed reports whether segment id is sealed.
func (d *Directory) IsSealed(id ID) (bool, error) {
	return IsSealed(d.dir, id)
}

// Size returns segment id's current byte size.
func (d *Directory) Size(id ID) (int64, error) {
	return Size(d.dir, id)
}

// TotalSize sums the byte size of every segment currently in the
// directory.
func (d *Directory) TotalSize() (int64, error) {
	ids, err := d.List()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, id := range ids {
		sz, err := Size(d.dir, id)
		if err != nil {
			return 0, err
		}
		total += sz
	}
	return total, nil
}
