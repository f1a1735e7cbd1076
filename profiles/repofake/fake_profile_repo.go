package repofake

import (
	"context"
	"fmt"
	"sync"

	errs "github.com/jrsteele09/go-auth-starter/internal/errors"
	"github.com/jrsteele09/go-auth-starter/profiles"
)

var _ profiles.Repo = (*FakeProfileRepo)(nil)

// FakeProfileRepo is an in-memory profiles.Repo that counts lookups.
type FakeProfileRepo struct {
	lock     sync.RWMutex
	profiles map[string]*profiles.Profile
	calls    map[string]int
	err      error
}

func NewFakeProfileRepo() *FakeProfileRepo {
	return &FakeProfileRepo{
		profiles: make(map[string]*profiles.Profile),
		calls:    make(map[string]int),
	}
}

func (r *FakeProfileRepo) Upsert(p *profiles.Profile) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.profiles[p.ID] = p
}

// FailWith makes every subsequent lookup return err (nil to stop failing).
func (r *FakeProfileRepo) FailWith(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.err = err
}

func (r *FakeProfileRepo) Calls(id string) int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.calls[id]
}

func (r *FakeProfileRepo) GetByID(_ context.Context, id string) (*profiles.Profile, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.calls[id]++
	if r.err != nil {
		return nil, r.err
	}
	p, ok := r.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, errs.ErrProfileNotFound)
	}
	copied := *p
	return &copied, nil
}
