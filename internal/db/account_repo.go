package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"eduplatform/internal/types"
)

// AccountRepository provides the inactivity lifecycle's view of the
// accounts table.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new AccountRepository backed by the given
// database connection (pool or transaction).
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// accountColumns must stay in the order scanAccount reads them.
const accountColumns = `id, role, email, name, created_at, email_opt_out,
	inactivity_warned_at, scheduled_deletion_at`

func scanAccount(row pgx.Row) (types.Account, error) {
	var (
		a    types.Account
		role string
		name *string
	)
	err := row.Scan(
		&a.ID,
		&role,
		&a.Email,
		&name,
		&a.CreatedAt,
		&a.EmailOptOut,
		&a.InactivityWarnedAt,
		&a.ScheduledDeletionAt,
	)
	if err != nil {
		return types.Account{}, err
	}
	a.Role = types.Role(role)
	if name != nil {
		a.Name = *name
	}
	return a, nil
}

// FindAccountsByRoles returns every account whose role is in roles, ordered
// by id so repeated scans visit accounts in the same order.
func (r *AccountRepository) FindAccountsByRoles(ctx context.Context, roles []types.Role) ([]types.Account, error) {
	if len(roles) == 0 {
		return []types.Account{}, nil
	}

	roleNames := make([]string, len(roles))
	for i, role := range roles {
		roleNames[i] = string(role)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts
		 WHERE role = ANY($1)
		 ORDER BY id`,
		roleNames,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query accounts by role", err)
	}
	defer rows.Close()

	accounts := []types.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan account row", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating account rows", err)
	}

	return accounts, nil
}

// GetCreatedAt re-reads the creation timestamp of one account. A NULL
// column returns the zero time without error.
func (r *AccountRepository) GetCreatedAt(ctx context.Context, id string) (time.Time, error) {
	var createdAt *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT created_at FROM accounts WHERE id = $1`,
		id,
	).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
		}
		return time.Time{}, types.NewAppError(types.ErrCodeInternalDB, "failed to read account created_at", err)
	}
	if createdAt == nil {
		return time.Time{}, nil
	}
	return createdAt.UTC(), nil
}

// WriteWarnAndSchedule sets inactivity_warned_at and scheduled_deletion_at
// in one statement, and only on a row where both are still NULL. It returns
// false when the row is gone or another writer already set the pair.
func (r *AccountRepository) WriteWarnAndSchedule(ctx context.Context, id string, warnedAt, scheduledAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts
		 SET inactivity_warned_at = $2, scheduled_deletion_at = $3
		 WHERE id = $1
		   AND inactivity_warned_at IS NULL
		   AND scheduled_deletion_at IS NULL`,
		id,
		warnedAt.UTC(),
		scheduledAt.UTC(),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to write inactivity warning state", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteAccount hard-deletes an account. Rooms, tasks and essays owned by
// it go with it through ON DELETE CASCADE. It returns false when no row
// matched.
func (r *AccountRepository) DeleteAccount(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM accounts WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to delete account", err)
	}
	return tag.RowsAffected() > 0, nil
}
