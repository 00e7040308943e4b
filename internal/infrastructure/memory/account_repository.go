// Package memory provides an in-process AccountRepository guarded by a
// read/write mutex. Atomic units hold the write lock for their whole run;
// reads share the read lock.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oksasatya/account-management/internal/domain/entity"
	"github.com/oksasatya/account-management/internal/domain/repository"
)

type AccountRepository struct {
	mu     sync.RWMutex
	rows   map[int64]entity.Account
	nextID int64
	now    func() time.Time
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{rows: make(map[int64]entity.Account), now: time.Now}
}

func (r *AccountRepository) GetAll(ctx context.Context) ([]entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unlocked().GetAll(ctx)
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (entity.Account, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unlocked().FindByID(ctx, id)
}

func (r *AccountRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unlocked().ExistsByID(ctx, id)
}

func (r *AccountRepository) Save(ctx context.Context, a entity.Account) (entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unlocked().Save(ctx, a)
}

func (r *AccountRepository) DeleteByID(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unlocked().DeleteByID(ctx, id)
}

func (r *AccountRepository) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unlocked().DeleteAll(ctx)
}

// Atomic holds the write lock while fn runs. Changes made by fn are applied
// to a copy and only become visible if fn returns nil.
func (r *AccountRepository) Atomic(ctx context.Context, fn func(ctx context.Context, tx repository.AccountRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := &txView{parent: r, rows: make(map[int64]entity.Account, len(r.rows)), nextID: r.nextID}
	for id, a := range r.rows {
		work.rows[id] = a
	}
	if err := fn(ctx, work); err != nil {
		return err
	}
	r.rows = work.rows
	r.nextID = work.nextID
	return nil
}

func (r *AccountRepository) unlocked() *txView {
	return &txView{parent: r, rows: r.rows, nextID: r.nextID, commit: true}
}

// txView operates on rows without locking. When commit is set, id
// allocation is written straight back to the parent.
type txView struct {
	parent *AccountRepository
	rows   map[int64]entity.Account
	nextID int64
	commit bool
}

func (v *txView) GetAll(_ context.Context) ([]entity.Account, error) {
	out := make([]entity.Account, 0, len(v.rows))
	for _, a := range v.rows {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *txView) FindByID(_ context.Context, id int64) (entity.Account, bool, error) {
	a, ok := v.rows[id]
	return a, ok, nil
}

func (v *txView) ExistsByID(_ context.Context, id int64) (bool, error) {
	_, ok := v.rows[id]
	return ok, nil
}

func (v *txView) Save(_ context.Context, a entity.Account) (entity.Account, error) {
	now := v.parent.now().UTC()
	if a.ID == 0 {
		v.nextID++
		a.ID = v.nextID
		a.CreatedAt = now
	} else {
		if prev, ok := v.rows[a.ID]; ok {
			a.CreatedAt = prev.CreatedAt
		} else {
			a.CreatedAt = now
		}
		if a.ID > v.nextID {
			v.nextID = a.ID
		}
	}
	a.UpdatedAt = now
	v.rows[a.ID] = a
	if v.commit {
		v.parent.nextID = v.nextID
	}
	return a, nil
}

func (v *txView) DeleteByID(_ context.Context, id int64) error {
	if _, ok := v.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(v.rows, id)
	return nil
}

func (v *txView) DeleteAll(_ context.Context) error {
	for id := range v.rows {
		delete(v.rows, id)
	}
	return nil
}

// Atomic on a view just runs fn inline; the enclosing unit already holds the lock.
func (v *txView) Atomic(ctx context.Context, fn func(ctx context.Context, tx repository.AccountRepository) error) error {
	return fn(ctx, v)
}

var _ repository.AccountRepository = (*AccountRepository)(nil)
