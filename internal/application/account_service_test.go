package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/account-management/internal/domain/entity"
	"github.com/oksasatya/account-management/internal/domain/event"
	"github.com/oksasatya/account-management/internal/infrastructure/memory"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestService(opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(memory.NewAccountRepository(), nil, opts...)
}

func john() entity.Account {
	return entity.Account{Username: "JohnSmith", Password: "pw123", Email: "john@example.com"}
}

func assertUnique(t *testing.T, s *Service) {
	t.Helper()
	all, err := s.ListAll(context.Background())
	require.NoError(t, err)
	usernames := map[string]int64{}
	emails := map[string]int64{}
	for _, a := range all {
		if other, dup := usernames[a.Username]; dup {
			t.Fatalf("accounts %d and %d share username %q", other, a.ID, a.Username)
		}
		if other, dup := emails[a.Email]; dup {
			t.Fatalf("accounts %d and %d share email %q", other, a.ID, a.Email)
		}
		usernames[a.Username] = a.ID
		emails[a.Email] = a.ID
	}
}

func TestService_Scenario(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	created, err := s.Register(ctx, john())
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	_, err = s.Register(ctx, john())
	assert.ErrorIs(t, err, ErrAlreadyExists)

	authed, err := s.Authenticate(ctx, "john@example.com", "pw123")
	require.NoError(t, err)
	require.NotNil(t, authed.LastAuthenticatedAt)
	assert.True(t, authed.LastAuthenticatedAt.Equal(fixedNow))

	patch := john()
	patch.ID = 5555
	assert.ErrorIs(t, s.Update(ctx, created.ID, patch), ErrIDMismatch)

	require.NoError(t, s.DeleteByID(ctx, created.ID))
	_, found, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		second  entity.Account
		wantErr error
	}{
		{"same username, different email", entity.Account{Username: "JohnSmith", Password: "x", Email: "other@example.com"}, ErrAlreadyExists},
		{"same email, different username", entity.Account{Username: "Johnny", Password: "x", Email: "john@example.com"}, ErrAlreadyExists},
		{"both different", entity.Account{Username: "Jane", Password: "x", Email: "jane@example.com"}, nil},
		{"username differs only by case", entity.Account{Username: "johnsmith", Password: "x", Email: "js@example.com"}, nil},
		{"blank email", entity.Account{Username: "Jane", Password: "x"}, ErrInvalidAccount},
		{"whitespace password", entity.Account{Username: "Jane", Password: "  ", Email: "jane@example.com"}, ErrInvalidAccount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService()
			_, err := s.Register(ctx, john())
			require.NoError(t, err)

			got, err := s.Register(ctx, tt.second)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				all, _ := s.ListAll(ctx)
				assert.Len(t, all, 1)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, got.ID)
			assertUnique(t, s)
		})
	}
}

func TestService_RegisterIgnoresClientID(t *testing.T) {
	s := newTestService()
	candidate := john()
	candidate.ID = 99
	candidate.LastAuthenticatedAt = &fixedNow

	created, err := s.Register(context.Background(), candidate)
	require.NoError(t, err)
	assert.NotEqual(t, int64(99), created.ID)
	assert.Nil(t, created.LastAuthenticatedAt)
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	created, err := s.Register(ctx, john())
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"match", "john@example.com", "pw123", nil},
		{"wrong password", "john@example.com", "pw124", ErrAuthenticationFailed},
		{"unknown email", "nobody@example.com", "pw123", ErrAuthenticationFailed},
		{"email is case sensitive", "JOHN@example.com", "pw123", ErrAuthenticationFailed},
		{"blank credentials", "", "", ErrAuthenticationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Authenticate(ctx, tt.email, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	stored, found, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, stored.LastAuthenticatedAt)
	assert.Equal(t, "pw123", stored.Password)
}

func TestService_FailedAuthenticationLeavesAccountUntouched(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	created, err := s.Register(ctx, john())
	require.NoError(t, err)

	_, err = s.Authenticate(ctx, "john@example.com", "nope")
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	stored, _, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastAuthenticatedAt)
}

func TestService_UpdateIDMismatchWins(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	created, err := s.Register(ctx, john())
	require.NoError(t, err)

	patches := []entity.Account{
		{ID: created.ID + 1},
		{ID: 0, Username: "fresh"},
		{ID: 5555, Username: "JohnSmith", Email: "john@example.com"},
	}
	for _, p := range patches {
		assert.ErrorIs(t, s.Update(ctx, created.ID, p), ErrIDMismatch)
	}
	// Mismatch is checked before existence.
	assert.ErrorIs(t, s.Update(ctx, 424242, entity.Account{ID: 1}), ErrIDMismatch)
}

func TestService_UpdateNotFound(t *testing.T) {
	s := newTestService()
	err := s.Update(context.Background(), 7, entity.Account{ID: 7, Username: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_UpdateConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	a, err := s.Register(ctx, john())
	require.NoError(t, err)
	b, err := s.Register(ctx, entity.Account{Username: "Jane", Password: "pw", Email: "jane@example.com"})
	require.NoError(t, err)

	err = s.Update(ctx, b.ID, entity.Account{ID: b.ID, Username: "JohnSmith"})
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.Contains(t, err.Error(), "JohnSmith")

	err = s.Update(ctx, b.ID, entity.Account{ID: b.ID, Email: "john@example.com"})
	require.ErrorIs(t, err, ErrAlreadyExists)

	// An account never collides with its own values.
	require.NoError(t, s.Update(ctx, a.ID, entity.Account{ID: a.ID, Username: "JohnSmith", Email: "john@example.com", Password: "new"}))
	stored, _, err := s.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", stored.Password)
	assertUnique(t, s)
}

func TestService_UpdateBlankFieldsAreNoOps(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	a, err := s.Register(ctx, john())
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, a.ID, entity.Account{ID: a.ID, Username: "", Email: "new@example.com"}))

	stored, found, err := s.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "JohnSmith", stored.Username)
	assert.Equal(t, "new@example.com", stored.Email)
	assert.Equal(t, "pw123", stored.Password)
	assert.Equal(t, a.CreatedAt, stored.CreatedAt)

	// The freed email can be claimed by a new account.
	_, err = s.Register(ctx, entity.Account{Username: "Other", Password: "x", Email: "john@example.com"})
	assert.NoError(t, err)
}

func TestService_DeleteByID(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	a, err := s.Register(ctx, john())
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteByID(ctx, a.ID+100), ErrNotFound)
	require.NoError(t, s.DeleteByID(ctx, a.ID))
	assert.ErrorIs(t, s.DeleteByID(ctx, a.ID), ErrNotFound)

	// The deleted account's username and email are free again.
	_, err = s.Register(ctx, john())
	assert.NoError(t, err)
}

func TestService_DeleteAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	for i := range 3 {
		_, err := s.Register(ctx, entity.Account{Username: fmt.Sprintf("u%d", i), Password: "p", Email: fmt.Sprintf("u%d@example.com", i)})
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteAll(ctx))
	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, s.DeleteAll(ctx))
	all, err = s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_InvariantHoldsUnderRandomOperations(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	rng := rand.New(rand.NewPCG(7, 11))

	names := []string{"ann", "bob", "cat", "dan", "eve", ""}
	pick := func() string { return names[rng.IntN(len(names))] }
	email := func() string {
		n := pick()
		if n == "" {
			return ""
		}
		return n + "@example.com"
	}

	for step := range 500 {
		all, err := s.ListAll(ctx)
		require.NoError(t, err)

		switch op := rng.IntN(10); {
		case op < 4:
			_, err = s.Register(ctx, entity.Account{Username: pick(), Password: "p", Email: email()})
			if err != nil {
				require.True(t, errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrInvalidAccount), "step %d: %v", step, err)
			}
		case op < 7 && len(all) > 0:
			target := all[rng.IntN(len(all))]
			err = s.Update(ctx, target.ID, entity.Account{ID: target.ID, Username: pick(), Email: email(), Password: pick()})
			if err != nil {
				require.ErrorIs(t, err, ErrAlreadyExists, "step %d", step)
			}
		case op < 9 && len(all) > 0:
			require.NoError(t, s.DeleteByID(ctx, all[rng.IntN(len(all))].ID))
		case op == 9 && rng.IntN(5) == 0:
			require.NoError(t, s.DeleteAll(ctx))
		}
		assertUnique(t, s)
	}
}

func TestService_ConcurrentRegisterAdmitsOne(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	const n = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Same username, distinct emails: only one may win.
			_, err := s.Register(ctx, entity.Account{Username: "race", Password: "p", Email: fmt.Sprintf("r%d@example.com", i)})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrAlreadyExists)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestService_SearchWithoutIndex(t *testing.T) {
	s := newTestService()
	hits, err := s.Search(context.Background(), "john", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  bool
	held  map[int64]entity.Account
	hits  []entity.AccountMatch
	size  int

	published []event.Account
}

func (r *recorder) record(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if r.fail {
		return errors.New("backend down")
	}
	return nil
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) Get(_ context.Context, id int64) (entity.Account, bool, error) {
	if err := r.record(fmt.Sprintf("cache.get %d", id)); err != nil {
		return entity.Account{}, false, err
	}
	a, ok := r.held[id]
	return a, ok, nil
}

func (r *recorder) Set(_ context.Context, a entity.Account) error {
	return r.record(fmt.Sprintf("cache.set %d", a.ID))
}

func (r *recorder) Invalidate(_ context.Context, id int64) error {
	return r.record(fmt.Sprintf("cache.invalidate %d", id))
}

func (r *recorder) Purge(_ context.Context) error { return r.record("purge") }

func (r *recorder) Publish(_ context.Context, e event.Account) error {
	r.mu.Lock()
	r.published = append(r.published, e)
	r.mu.Unlock()
	return r.record("event " + e.Type)
}

type recordingIndex struct{ *recorder }

func (x recordingIndex) Index(_ context.Context, a entity.Account) error {
	return x.record(fmt.Sprintf("index %d", a.ID))
}

func (x recordingIndex) Delete(_ context.Context, id int64) error {
	return x.record(fmt.Sprintf("unindex %d", id))
}

func (x recordingIndex) Search(_ context.Context, q string, size int) ([]entity.AccountMatch, error) {
	x.mu.Lock()
	x.size = size
	x.mu.Unlock()
	if err := x.record("search " + q); err != nil {
		return nil, err
	}
	return x.hits, nil
}

func TestService_SideEffectsFollowCommits(t *testing.T) {
	ctx := context.Background()
	cache, index, events := &recorder{}, &recorder{}, &recorder{}
	s := newTestService(WithCache(cache), WithIndex(recordingIndex{index}), WithEvents(events))

	a, err := s.Register(ctx, john())
	require.NoError(t, err)
	_, err = s.Register(ctx, john())
	require.ErrorIs(t, err, ErrAlreadyExists)
	_, err = s.Authenticate(ctx, "john@example.com", "pw123")
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, a.ID, entity.Account{ID: a.ID, Password: "pw2"}))
	require.NoError(t, s.DeleteByID(ctx, a.ID))
	require.NoError(t, s.DeleteAll(ctx))

	id := fmt.Sprint(a.ID)
	assert.Equal(t, []string{
		"event " + event.AccountRegistered,
		"event " + event.AccountAuthenticated,
		"event " + event.AccountUpdated,
		"event " + event.AccountDeleted,
		"event " + event.AccountsPurged,
	}, events.Calls())
	require.Len(t, events.published, 5)
	assert.Equal(t, []string{"password"}, events.published[2].Changes)
	assert.Empty(t, events.published[0].Changes)
	assert.Equal(t, "john@example.com", events.published[3].Email)
	assert.Equal(t, []string{"index " + id, "index " + id, "index " + id, "unindex " + id, "purge"}, index.Calls())
	assert.Equal(t, []string{
		"cache.invalidate " + id,
		"cache.invalidate " + id,
		"cache.invalidate " + id,
		"cache.invalidate " + id,
		"purge",
	}, cache.Calls())
}

func TestService_SideEffectFailuresDoNotFailWrites(t *testing.T) {
	ctx := context.Background()
	broken := &recorder{fail: true}
	s := newTestService(WithCache(broken), WithIndex(recordingIndex{broken}), WithEvents(broken))

	a, err := s.Register(ctx, john())
	require.NoError(t, err)

	got, found, err := s.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "JohnSmith", got.Username)

	require.NoError(t, s.DeleteByID(ctx, a.ID))
	require.NoError(t, s.DeleteAll(ctx))
}

func TestService_FindByIDReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	cached := entity.Account{ID: 77, Username: "cached", Email: "cached@example.com"}
	cache := &recorder{held: map[int64]entity.Account{77: cached}}
	s := newTestService(WithCache(cache))

	got, found, err := s.FindByID(ctx, 77)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, cached, got)

	a, err := s.Register(ctx, john())
	require.NoError(t, err)
	_, found, err = s.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, cache.Calls(), fmt.Sprintf("cache.set %d", a.ID))

	_, found, err = s.FindByID(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NotContains(t, cache.Calls(), "cache.set 9999")
}

func TestService_SearchClampsSize(t *testing.T) {
	index := &recorder{hits: []entity.AccountMatch{{ID: 1, Username: "JohnSmith"}}}
	s := newTestService(WithIndex(recordingIndex{index}))

	hits, err := s.Search(context.Background(), "  john ", 500)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Equal(t, defaultSearchSize, index.size)
	assert.Equal(t, []string{"search john"}, index.Calls())

	hits, err = s.Search(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
