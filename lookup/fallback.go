package lookup

import (
	"sync"
	"sync/atomic"

	"github.com/pilosa/wdhistory"
	"github.com/pkg/errors"
)

// Fallback wraps a Lookups so that it never fails. Errors from the wrapped
// Lookups are logged once per key and answered with a zero value.
type Fallback struct {
	Lookups Lookups
	Log     wdhistory.Logger

	mu          sync.Mutex
	seen        map[string]struct{}
	unavailable int64
}

// NewFallback wraps l.
func NewFallback(l Lookups, log wdhistory.Logger) *Fallback {
	if log == nil {
		log = wdhistory.NopLogger{}
	}
	return &Fallback{
		Lookups: l,
		Log:     log,
		seen:    make(map[string]struct{}),
	}
}

// Unavailable returns the number of lookups that failed.
func (f *Fallback) Unavailable() int64 {
	return atomic.LoadInt64(&f.unavailable)
}

func (f *Fallback) failed(key string, err error) {
	atomic.AddInt64(&f.unavailable, 1)
	f.mu.Lock()
	_, ok := f.seen[key]
	f.seen[key] = struct{}{}
	f.mu.Unlock()
	if !ok {
		f.Log.Printf("%v", errors.Wrapf(ErrUnavailable, "%s: %v", key, err))
	}
}

// PropertyLabel implements PropertyLabels.
func (f *Fallback) PropertyLabel(pid string) (string, error) {
	label, err := f.Lookups.PropertyLabel(pid)
	if err != nil {
		f.failed("property "+pid, err)
		return "", nil
	}
	return label, nil
}

// Entity implements Entities.
func (f *Fallback) Entity(id string) (EntityInfo, error) {
	info, err := f.Lookups.Entity(id)
	if err != nil {
		f.failed("entity "+id, err)
		return EntityInfo{}, nil
	}
	return info, nil
}

// IsAncestor implements Closure.
func (f *Fallback) IsAncestor(child, ancestor, relation string) (bool, error) {
	ok, err := f.Lookups.IsAncestor(child, ancestor, relation)
	if err != nil {
		f.failed("closure "+relation+" "+child, err)
		return false, nil
	}
	return ok, nil
}
