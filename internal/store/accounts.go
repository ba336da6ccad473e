package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Account is an ad account and the user token pages are listed with.
type Account struct {
	ID          string
	Name        string
	AccessToken string
	PagesCount  int
	IsCurrent   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const accountColumns = `id, name, access_token, pages_count, is_current, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*Account, error) {
	var a Account
	var created, updated string
	if err := row.Scan(&a.ID, &a.Name, &a.AccessToken, &a.PagesCount, &a.IsCurrent, &created, &updated); err != nil {
		return nil, err
	}
	a.CreatedAt = parseTimestamp(created)
	a.UpdatedAt = parseTimestamp(updated)
	return &a, nil
}

// UpsertAccount inserts an account or updates its name and token. The
// first account stored becomes current.
func (s *Store) UpsertAccount(ctx context.Context, a Account) error {
	if a.ID == "" || a.AccessToken == "" {
		return fmt.Errorf("account id and access token are required")
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	now := s.timestamp()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
			return fmt.Errorf("count accounts: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, name, access_token, pages_count, is_current, created_at, updated_at)
			VALUES (?, ?, ?, 0, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				access_token = excluded.access_token,
				updated_at = excluded.updated_at`,
			a.ID, a.Name, a.AccessToken, n == 0, now, now)
		if isSQLiteError(err, "UNIQUE constraint failed") {
			return fmt.Errorf("upsert account %s: current account conflict: %w", a.ID, err)
		}
		if err != nil {
			return fmt.Errorf("upsert account %s: %w", a.ID, err)
		}
		return nil
	})
}

// RemoveAccount deletes an account. If it was current, the oldest
// remaining account becomes current.
func (s *Store) RemoveAccount(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var wasCurrent bool
		err := tx.QueryRowContext(ctx, `SELECT is_current FROM accounts WHERE id = ?`, id).Scan(&wasCurrent)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("account %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get account %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete account %s: %w", id, err)
		}
		if wasCurrent {
			_, err := tx.ExecContext(ctx, `
				UPDATE accounts SET is_current = 1
				WHERE id = (SELECT id FROM accounts ORDER BY created_at, id LIMIT 1)`)
			if err != nil {
				return fmt.Errorf("promote current account: %w", err)
			}
		}
		return nil
	})
}

// ListAccounts returns every account, oldest first.
func (s *Store) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetAccount returns one account or ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, id string) (*Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return a, nil
}

// SetCurrentAccount marks id as the only current account.
func (s *Store) SetCurrentAccount(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET is_current = 0 WHERE is_current = 1`); err != nil {
			return fmt.Errorf("clear current account: %w", err)
		}
		res, err := tx.ExecContext(ctx, `UPDATE accounts SET is_current = 1, updated_at = ? WHERE id = ?`, s.timestamp(), id)
		if err != nil {
			return fmt.Errorf("set current account %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("account %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// UpdatePagesCount records how many pages the account's token can see.
func (s *Store) UpdatePagesCount(ctx context.Context, id string, n int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET pages_count = ?, updated_at = ? WHERE id = ?`, n, s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("update pages count %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return nil
}

// CurrentAccount returns the account marked current, or ErrNotFound when
// no accounts are stored.
func (s *Store) CurrentAccount(ctx context.Context) (*Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE is_current = 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("current account: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("current account: %w", err)
	}
	return a, nil
}
