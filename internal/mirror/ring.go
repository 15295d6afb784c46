package mirror

import "github.com/sharetrack/sharetrack/internal/model"

// ring is a fixed-capacity history buffer. Once full, new entries
// overwrite the oldest, bounding per-file memory regardless of traffic.
type ring struct {
	buf  []model.HistoryEntry
	head int // index of the oldest entry
	size int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]model.HistoryEntry, capacity)}
}

func (r *ring) Append(entry model.HistoryEntry) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = entry
		r.size++
		return
	}
	r.buf[r.head] = entry
	r.head = (r.head + 1) % len(r.buf)
}

// List returns entries oldest first.
func (r *ring) List() []model.HistoryEntry {
	out := make([]model.HistoryEntry, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

func (r *ring) Len() int {
	return r.size
}
