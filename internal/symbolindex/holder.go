package symbolindex

import (
	"errors"
	"sync/atomic"
	"time"
)

var errNilIndex = errors.New("cannot publish a nil index")

// Version is a published index together with the generation it was
// published as. Generations start at 1 and increase by one per Publish.
type Version struct {
	Index      *Index
	Generation uint64
	LoadedAt   time.Time
}

// Holder owns the active index. Publish swaps a single pointer, so readers
// always observe either the previous complete Version or the new one.
type Holder struct {
	current atomic.Pointer[Version]
}

// NewHolder returns an empty Holder. Current reports a nil Index until the
// first Publish.
func NewHolder() *Holder {
	return &Holder{}
}

// Current returns the active version. The zero Version means nothing has
// been published yet.
func (h *Holder) Current() Version {
	v := h.current.Load()
	if v == nil {
		return Version{}
	}
	return *v
}

// Ready reports whether an index has been published.
func (h *Holder) Ready() bool {
	return h.current.Load() != nil
}

// Publish makes idx the active index and returns the new Version.
func (h *Holder) Publish(idx *Index) (Version, error) {
	if idx == nil {
		return Version{}, errNilIndex
	}
	for {
		old := h.current.Load()
		next := &Version{Index: idx, Generation: 1, LoadedAt: time.Now()}
		if old != nil {
			next.Generation = old.Generation + 1
		}
		if h.current.CompareAndSwap(old, next) {
			return *next, nil
		}
	}
}
