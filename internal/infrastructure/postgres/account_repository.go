package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/oksasatya/account-management/internal/domain/entity"
	"github.com/oksasatya/account-management/internal/domain/repository"
)

const accountColumns = `id, username, password, email, last_authenticated_at, created_at, updated_at`

// lockAccounts blocks other writers for the rest of the transaction while
// plain SELECTs keep running against the last committed rows.
const lockAccounts = `LOCK TABLE accounts IN EXCLUSIVE MODE`

type AccountRepository struct {
	pool Pool
	q    Querier
	inTx bool
}

func NewAccountRepository(pool Pool) *AccountRepository {
	return &AccountRepository{pool: pool, q: pool}
}

func scanAccount(row pgx.Row) (entity.Account, error) {
	var a entity.Account
	err := row.Scan(&a.ID, &a.Username, &a.Password, &a.Email, &a.LastAuthenticatedAt, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *AccountRepository) GetAll(ctx context.Context) ([]entity.Account, error) {
	rows, err := r.q.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	defer rows.Close()

	out := make([]entity.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (entity.Account, bool, error) {
	a, err := scanAccount(r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.Account{}, false, nil
		}
		return entity.Account{}, false, fmt.Errorf("select account %d: %w", id, err)
	}
	return a, true, nil
}

func (r *AccountRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check account %d: %w", id, err)
	}
	return exists, nil
}

func (r *AccountRepository) Save(ctx context.Context, a entity.Account) (entity.Account, error) {
	if a.ID == 0 {
		row := r.q.QueryRow(ctx, `
			INSERT INTO accounts (username, password, email, last_authenticated_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at, updated_at
		`, a.Username, a.Password, a.Email, a.LastAuthenticatedAt)
		if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return entity.Account{}, fmt.Errorf("insert account: %w", err)
		}
		return a, nil
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO accounts (id, username, password, email, last_authenticated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username,
		    password = EXCLUDED.password,
		    email = EXCLUDED.email,
		    last_authenticated_at = EXCLUDED.last_authenticated_at,
		    updated_at = now()
		RETURNING created_at, updated_at
	`, a.ID, a.Username, a.Password, a.Email, a.LastAuthenticatedAt)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return entity.Account{}, fmt.Errorf("upsert account %d: %w", a.ID, err)
	}
	return a, nil
}

func (r *AccountRepository) DeleteByID(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM accounts`); err != nil {
		return fmt.Errorf("delete accounts: %w", err)
	}
	return nil
}

// Atomic runs fn in a READ COMMITTED transaction holding an EXCLUSIVE lock
// on the accounts table, so scan-then-write units never interleave.
func (r *AccountRepository) Atomic(ctx context.Context, fn func(ctx context.Context, tx repository.AccountRepository) error) (err error) {
	if r.inTx {
		return fn(ctx, r)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, lockAccounts); err != nil {
		return fmt.Errorf("lock accounts: %w", err)
	}
	if err = fn(ctx, &AccountRepository{pool: r.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ repository.AccountRepository = (*AccountRepository)(nil)
