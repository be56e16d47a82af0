package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/pkg/retry"
)

// Store implements graph.Store on a connection pool. Transactions that fail
// with a serialization failure or deadlock are re-run from the start.
type Store struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewStore creates a store over conn.
func NewStore(conn *Connection) *Store {
	return &Store{
		conn:    conn,
		retrier: retry.DatabaseRetrier(IsSerializationFailure),
	}
}

// Repositories returns repositories bound to the pool.
func (s *Store) Repositories() graph.Repositories {
	return repositories(s.conn)
}

// WithinTx runs fn in a read-committed transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(repos graph.Repositories) error) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			return fn(repositories(tx))
		})
	})
}

func repositories(q Querier) graph.Repositories {
	return graph.Repositories{
		Accounts: NewAccountRepository(q),
		Profiles: NewProfileRepository(q),
		Follows:  NewFollowRepository(q),
		Likes:    NewLikeRepository(q),
		Reviews:  NewReviewRepository(q),
	}
}
