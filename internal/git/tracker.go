package git

import "context"

// MarkDirty records that the refs on disk may have changed. It is cheap and
// meant to be called from change notifications; the reload happens on the
// next ReloadIfDirty.
func (r *Repository) MarkDirty() {
	r.dirty.Store(true)
}

func (r *Repository) Dirty() bool {
	return r.dirty.Load()
}

// ReloadIfDirty reloads the refs once if MarkDirty was called since the last
// reload. A failed reload leaves the repository dirty.
func (r *Repository) ReloadIfDirty(ctx context.Context) (bool, error) {
	if !r.dirty.CompareAndSwap(true, false) {
		return false, nil
	}
	if _, err := r.Reload(ctx); err != nil {
		r.dirty.Store(true)
		return false, err
	}
	return true, nil
}
