package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-management/internal/domain/entity"
	"github.com/oksasatya/account-management/internal/domain/event"
	repo "github.com/oksasatya/account-management/internal/domain/repository"
)

var (
	ErrAlreadyExists        = errors.New("account already exists")
	ErrNotFound             = errors.New("account not found")
	ErrIDMismatch           = errors.New("account id in body does not match the target id")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidAccount       = errors.New("invalid account")
)

const (
	defaultSearchSize = 10
	maxSearchSize     = 50
)

// AccountCache is a read-through cache keyed by account id.
type AccountCache interface {
	Get(ctx context.Context, id int64) (entity.Account, bool, error)
	Set(ctx context.Context, a entity.Account) error
	Invalidate(ctx context.Context, id int64) error
	Purge(ctx context.Context) error
}

// AccountIndex is a searchable projection of accounts.
type AccountIndex interface {
	Index(ctx context.Context, a entity.Account) error
	Delete(ctx context.Context, id int64) error
	Purge(ctx context.Context) error
	Search(ctx context.Context, q string, size int) ([]entity.AccountMatch, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, e event.Account) error
}

// Service holds the account rules: the username/email uniqueness invariant,
// the credential check and the partial-update merge. Cache, Index and
// Events are optional; a nil value disables that side effect.
type Service struct {
	Repo   repo.AccountRepository
	Cache  AccountCache
	Index  AccountIndex
	Events EventPublisher
	Logger *logrus.Logger

	now func() time.Time
}

type Option func(*Service)

func WithCache(c AccountCache) Option { return func(s *Service) { s.Cache = c } }
func WithIndex(x AccountIndex) Option { return func(s *Service) { s.Index = x } }
func WithEvents(p EventPublisher) Option { return func(s *Service) { s.Events = p } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(r repo.AccountRepository, logger *logrus.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	s := &Service{Repo: r, Logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// findCollision returns the first account other than skipID that shares a
// username or an email with candidate.
func findCollision(all []entity.Account, candidate entity.Account, skipID int64) (entity.Account, bool) {
	for _, a := range all {
		if a.ID == skipID {
			continue
		}
		if entity.Collides(a, candidate) {
			return a, true
		}
	}
	return entity.Account{}, false
}

func conflict(existing entity.Account) error {
	return fmt.Errorf("%w: username %q or email %q is taken", ErrAlreadyExists, existing.Username, existing.Email)
}

// Register stores a new account when neither its username nor its email is
// already taken.
func (s *Service) Register(ctx context.Context, candidate entity.Account) (entity.Account, error) {
	if missing := candidate.Validate(); len(missing) > 0 {
		return entity.Account{}, fmt.Errorf("%w: %s must not be empty", ErrInvalidAccount, strings.Join(missing, ", "))
	}
	candidate.ID = 0
	candidate.LastAuthenticatedAt = nil

	var created entity.Account
	err := s.Repo.Atomic(ctx, func(ctx context.Context, tx repo.AccountRepository) error {
		all, err := tx.GetAll(ctx)
		if err != nil {
			return fmt.Errorf("load accounts: %w", err)
		}
		if _, taken := findCollision(all, candidate, 0); taken {
			return ErrAlreadyExists
		}
		created, err = tx.Save(ctx, candidate)
		if err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			metrics.Add("register_conflicts", 1)
		}
		return entity.Account{}, err
	}

	metrics.Add("registered", 1)
	s.Logger.WithField("account_id", created.ID).Info("account registered")
	s.afterWrite(ctx, event.AccountRegistered, created)
	return created, nil
}

// Authenticate stamps LastAuthenticatedAt on the first account whose email
// and password both match exactly.
func (s *Service) Authenticate(ctx context.Context, email, password string) (entity.Account, error) {
	var authed entity.Account
	err := s.Repo.Atomic(ctx, func(ctx context.Context, tx repo.AccountRepository) error {
		all, err := tx.GetAll(ctx)
		if err != nil {
			return fmt.Errorf("load accounts: %w", err)
		}
		for _, a := range all {
			if a.Email != email || a.Password != password {
				continue
			}
			at := s.now().UTC()
			a.LastAuthenticatedAt = &at
			authed, err = tx.Save(ctx, a)
			if err != nil {
				return fmt.Errorf("save account: %w", err)
			}
			return nil
		}
		return ErrAuthenticationFailed
	})
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			metrics.Add("auth_failures", 1)
		}
		return entity.Account{}, err
	}

	metrics.Add("authenticated", 1)
	s.afterWrite(ctx, event.AccountAuthenticated, authed)
	return authed, nil
}

// Update merges the non-blank fields of patch into the account targetID.
// patch.ID must equal targetID.
func (s *Service) Update(ctx context.Context, targetID int64, patch entity.Account) error {
	if patch.ID != targetID {
		return ErrIDMismatch
	}

	var (
		updated entity.Account
		changed []string
	)
	err := s.Repo.Atomic(ctx, func(ctx context.Context, tx repo.AccountRepository) error {
		stored, ok, err := tx.FindByID(ctx, targetID)
		if err != nil {
			return fmt.Errorf("find account %d: %w", targetID, err)
		}
		if !ok {
			return ErrNotFound
		}
		all, err := tx.GetAll(ctx)
		if err != nil {
			return fmt.Errorf("load accounts: %w", err)
		}
		if existing, taken := findCollision(all, patch, targetID); taken {
			return conflict(existing)
		}
		changed = entity.ChangedFields(stored, patch)
		updated, err = tx.Save(ctx, entity.Merge(stored, patch))
		if err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.Add("updated", 1)
	s.Logger.WithField("account_id", targetID).Info("account updated")
	s.afterWrite(ctx, event.AccountUpdated, updated, changed...)
	return nil
}

// FindByID reports found=false when no account has the id.
func (s *Service) FindByID(ctx context.Context, id int64) (entity.Account, bool, error) {
	if s.Cache != nil {
		a, ok, err := s.Cache.Get(ctx, id)
		if err != nil {
			s.Logger.WithError(err).WithField("account_id", id).Warn("account cache read failed")
		} else if ok {
			return a, true, nil
		}
	}

	a, ok, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return entity.Account{}, false, fmt.Errorf("find account %d: %w", id, err)
	}
	if ok && s.Cache != nil {
		if err := s.Cache.Set(ctx, a); err != nil {
			s.Logger.WithError(err).WithField("account_id", id).Warn("account cache write failed")
		}
	}
	return a, ok, nil
}

func (s *Service) ListAll(ctx context.Context) ([]entity.Account, error) {
	all, err := s.Repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	return all, nil
}

func (s *Service) DeleteByID(ctx context.Context, id int64) error {
	var removed entity.Account
	err := s.Repo.Atomic(ctx, func(ctx context.Context, tx repo.AccountRepository) error {
		a, ok, err := tx.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("find account %d: %w", id, err)
		}
		if !ok {
			return ErrNotFound
		}
		if err := tx.DeleteByID(ctx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("delete account %d: %w", id, err)
		}
		removed = a
		return nil
	})
	if err != nil {
		return err
	}

	metrics.Add("deleted", 1)
	s.Logger.WithField("account_id", id).Info("account deleted")

	bg := context.WithoutCancel(ctx)
	if s.Cache != nil {
		if err := s.Cache.Invalidate(bg, id); err != nil {
			s.Logger.WithError(err).WithField("account_id", id).Warn("account cache invalidate failed")
		}
	}
	if s.Index != nil {
		if err := s.Index.Delete(bg, id); err != nil {
			s.Logger.WithError(err).WithField("account_id", id).Warn("account unindex failed")
		}
	}
	s.publish(bg, event.New(event.AccountDeleted, removed.ID, removed.Username, removed.Email, s.now()))
	return nil
}

// DeleteAll empties the store. It is idempotent.
func (s *Service) DeleteAll(ctx context.Context) error {
	err := s.Repo.Atomic(ctx, func(ctx context.Context, tx repo.AccountRepository) error {
		return tx.DeleteAll(ctx)
	})
	if err != nil {
		return fmt.Errorf("delete accounts: %w", err)
	}

	metrics.Add("purged", 1)
	s.Logger.Info("all accounts deleted")

	bg := context.WithoutCancel(ctx)
	if s.Cache != nil {
		if err := s.Cache.Purge(bg); err != nil {
			s.Logger.WithError(err).Warn("account cache purge failed")
		}
	}
	if s.Index != nil {
		if err := s.Index.Purge(bg); err != nil {
			s.Logger.WithError(err).Warn("account index purge failed")
		}
	}
	s.publish(bg, event.New(event.AccountsPurged, 0, "", "", s.now()))
	return nil
}

// Search queries the account index. Without an index it finds nothing.
func (s *Service) Search(ctx context.Context, q string, size int) ([]entity.AccountMatch, error) {
	q = strings.TrimSpace(q)
	if s.Index == nil || q == "" {
		return []entity.AccountMatch{}, nil
	}
	if size <= 0 || size > maxSearchSize {
		size = defaultSearchSize
	}
	hits, err := s.Index.Search(ctx, q, size)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// afterWrite refreshes the projections of a committed account. Failures are
// logged and never undo the write.
func (s *Service) afterWrite(ctx context.Context, eventType string, a entity.Account, changes ...string) {
	bg := context.WithoutCancel(ctx)
	if s.Cache != nil {
		if err := s.Cache.Invalidate(bg, a.ID); err != nil {
			s.Logger.WithError(err).WithField("account_id", a.ID).Warn("account cache invalidate failed")
		}
	}
	if s.Index != nil {
		if err := s.Index.Index(bg, a); err != nil {
			s.Logger.WithError(err).WithField("account_id", a.ID).Warn("account index failed")
		}
	}
	e := event.New(eventType, a.ID, a.Username, a.Email, s.now())
	e.Changes = changes
	s.publish(bg, e)
}

func (s *Service) publish(ctx context.Context, e event.Account) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, e); err != nil {
		s.Logger.WithError(err).WithFields(logrus.Fields{
			"event":      e.Type,
			"account_id": e.AccountID,
		}).Warn("account event publish failed")
	}
}
