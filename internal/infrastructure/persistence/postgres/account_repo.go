package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

// AccountRepository implements graph.AccountRepository.
type AccountRepository struct {
	q Querier
}

// NewAccountRepository creates a repository over a pool or a transaction.
func NewAccountRepository(q Querier) *AccountRepository {
	return &AccountRepository{q: q}
}

const accountColumns = `
	id, username, password_hash, display_name, email, phone, avatar_url,
	followers_count, following_count, likes_count, created_at, updated_at`

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, account *graph.Account) error {
	query := `
		INSERT INTO accounts (
			id, username, password_hash, display_name, email, phone, avatar_url,
			followers_count, following_count, likes_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.q.Exec(ctx, query,
		account.ID,
		account.Username,
		account.PasswordHash,
		account.DisplayName,
		account.Email,
		account.Phone,
		account.AvatarURL,
		account.FollowersCount,
		account.FollowingCount,
		account.LikesCount,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrUsernameTaken
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by id.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*graph.Account, error) {
	return r.get(ctx, `SELECT`+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetForUpdate retrieves an account and locks its row until the surrounding
// transaction ends.
func (r *AccountRepository) GetForUpdate(ctx context.Context, id string) (*graph.Account, error) {
	return r.get(ctx, `SELECT`+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
}

func (r *AccountRepository) get(ctx context.Context, query, id string) (*graph.Account, error) {
	account, err := scanAccount(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetByIDs returns the accounts found among ids, keyed by id.
func (r *AccountRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*graph.Account, error) {
	result := make(map[string]*graph.Account, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT` + accountColumns + ` FROM accounts WHERE id = ANY($1::uuid[])`

	rows, err := r.q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		result[account.ID] = account
	}

	return result, rows.Err()
}

// ListIDs returns every account id in ascending order.
func (r *AccountRepository) ListIDs(ctx context.Context) ([]string, error) {
	return listIDs(ctx, r.q, "accounts")
}

// AdjustCounter adds delta to a counter, flooring the stored value at zero.
func (r *AccountRepository) AdjustCounter(ctx context.Context, id string, kind graph.CounterKind, delta int) error {
	return adjustCounter(ctx, r.q, "accounts", graph.FamilyAccount, shared.ErrAccountNotFound, id, kind, delta)
}

// SetCounter overwrites a counter.
func (r *AccountRepository) SetCounter(ctx context.Context, id string, kind graph.CounterKind, value int) error {
	return setCounter(ctx, r.q, "accounts", graph.FamilyAccount, shared.ErrAccountNotFound, id, kind, value)
}

func scanAccount(row pgx.Row) (*graph.Account, error) {
	var a graph.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.PasswordHash,
		&a.DisplayName,
		&a.Email,
		&a.Phone,
		&a.AvatarURL,
		&a.FollowersCount,
		&a.FollowingCount,
		&a.LikesCount,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED COUNTER HELPERS
// Column names come from graph.CounterKind and are checked against the
// family's whitelist before being spliced into SQL.
// ══════════════════════════════════════════════════════════════════════════════

func adjustCounter(ctx context.Context, q Querier, table string, family graph.Family, notFound error,
	id string, kind graph.CounterKind, delta int) error {
	if !family.Carries(kind) {
		return shared.ErrCounterNotSupported
	}

	query := fmt.Sprintf(`
		UPDATE %[1]s
		SET %[2]s = GREATEST(%[2]s + $2, 0), updated_at = NOW()
		WHERE id = $1`, table, kind)

	tag, err := q.Exec(ctx, query, id, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust %s.%s: %w", table, kind, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}

	return nil
}

func setCounter(ctx context.Context, q Querier, table string, family graph.Family, notFound error,
	id string, kind graph.CounterKind, value int) error {
	if !family.Carries(kind) {
		return shared.ErrCounterNotSupported
	}

	query := fmt.Sprintf(`
		UPDATE %[1]s
		SET %[2]s = GREATEST($2, 0), updated_at = NOW()
		WHERE id = $1`, table, kind)

	tag, err := q.Exec(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("failed to set %s.%s: %w", table, kind, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}

	return nil
}

func listIDs(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.Query(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY id", table))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// limitArg maps "no limit" to NULL, which Postgres treats as LIMIT ALL.
func limitArg(opts graph.ListOptions) interface{} {
	if opts.Limit == 0 {
		return nil
	}
	return opts.Limit
}
