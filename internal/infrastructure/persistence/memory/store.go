// Package memory implements graph.Store in process memory. Transactions take
// a copy of the whole state and swap it in on commit, so a failed unit of
// work leaves nothing behind. Used by tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
)

type pairKey struct {
	source string
	target string
}

type followRow struct {
	graph.Follow
	seq uint64
}

type likeRow struct {
	graph.Like
	seq uint64
}

type reviewRow struct {
	graph.Review
	seq uint64
}

type state struct {
	seq       uint64
	accounts  map[string]graph.Account
	usernames map[string]string
	profiles  map[string]graph.Profile
	slugs     map[string]string
	follows   map[pairKey]followRow
	likes     map[pairKey]likeRow
	reviews   map[string]reviewRow
}

func newState() *state {
	return &state{
		accounts:  make(map[string]graph.Account),
		usernames: make(map[string]string),
		profiles:  make(map[string]graph.Profile),
		slugs:     make(map[string]string),
		follows:   make(map[pairKey]followRow),
		likes:     make(map[pairKey]likeRow),
		reviews:   make(map[string]reviewRow),
	}
}

func (s *state) clone() *state {
	c := &state{
		seq:       s.seq,
		accounts:  make(map[string]graph.Account, len(s.accounts)),
		usernames: make(map[string]string, len(s.usernames)),
		profiles:  make(map[string]graph.Profile, len(s.profiles)),
		slugs:     make(map[string]string, len(s.slugs)),
		follows:   make(map[pairKey]followRow, len(s.follows)),
		likes:     make(map[pairKey]likeRow, len(s.likes)),
		reviews:   make(map[string]reviewRow, len(s.reviews)),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.usernames {
		c.usernames[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.slugs {
		c.slugs[k] = v
	}
	for k, v := range s.follows {
		c.follows[k] = v
	}
	for k, v := range s.likes {
		c.likes[k] = v
	}
	for k, v := range s.reviews {
		c.reviews[k] = v
	}
	return c
}

func (s *state) next() uint64 {
	s.seq++
	return s.seq
}

// Store is an in-memory graph.Store.
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ graph.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Repositories returns repositories that lock the store per call.
func (s *Store) Repositories() graph.Repositories {
	return reposFor(&access{store: s})
}

// WithinTx runs fn against a private copy of the state and publishes the copy
// only when fn succeeds. Transactions are serialized.
func (s *Store) WithinTx(ctx context.Context, fn func(repos graph.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.state.clone()
	if err := fn(reposFor(&access{tx: tx})); err != nil {
		return err
	}
	s.state = tx
	return nil
}

// access routes a repository call either to a transaction's copy or to the
// live state under the store mutex.
type access struct {
	store *Store
	tx    *state
}

func (a *access) do(ctx context.Context, fn func(s *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.tx != nil {
		return fn(a.tx)
	}
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	return fn(a.store.state)
}

func reposFor(a *access) graph.Repositories {
	return graph.Repositories{
		Accounts: &accountRepo{a},
		Profiles: &profileRepo{a},
		Follows:  &followRepo{a},
		Likes:    &likeRepo{a},
		Reviews:  &reviewRepo{a},
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func page[T any](items []T, opts graph.ListOptions) ([]T, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	start, end := opts.Window(len(items))
	out := make([]T, 0, end-start)
	return append(out, items[start:end]...), nil
}

func newestFirst(aCreated, bCreated time.Time, aSeq, bSeq uint64) bool {
	if !aCreated.Equal(bCreated) {
		return aCreated.After(bCreated)
	}
	return aSeq > bSeq
}

// ─── Accounts ───────────────────────────────────────────────────────────────

type accountRepo struct{ a *access }

func (r *accountRepo) Create(ctx context.Context, account *graph.Account) error {
	return r.a.do(ctx, func(s *state) error {
		if _, taken := s.usernames[account.Username]; taken {
			return shared.ErrUsernameTaken
		}
		if _, exists := s.accounts[account.ID]; exists {
			return shared.NewDomainError("graph", "CreateAccount", shared.ErrAlreadyExists, "account already exists")
		}
		s.accounts[account.ID] = *account
		s.usernames[account.Username] = account.ID
		return nil
	})
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (*graph.Account, error) {
	var out *graph.Account
	err := r.a.do(ctx, func(s *state) error {
		acc, ok := s.accounts[id]
		if !ok {
			return shared.ErrAccountNotFound
		}
		out = &acc
		return nil
	})
	return out, err
}

func (r *accountRepo) GetForUpdate(ctx context.Context, id string) (*graph.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *accountRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*graph.Account, error) {
	out := make(map[string]*graph.Account, len(ids))
	err := r.a.do(ctx, func(s *state) error {
		for _, id := range ids {
			if acc, ok := s.accounts[id]; ok {
				acc := acc
				out[id] = &acc
			}
		}
		return nil
	})
	return out, err
}

func (r *accountRepo) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.a.do(ctx, func(s *state) error {
		for id := range s.accounts {
			ids = append(ids, id)
		}
		return nil
	})
	sort.Strings(ids)
	return ids, err
}

func (r *accountRepo) AdjustCounter(ctx context.Context, id string, kind graph.CounterKind, delta int) error {
	if !graph.FamilyAccount.Carries(kind) {
		return shared.ErrCounterNotSupported
	}
	return r.a.do(ctx, func(s *state) error {
		acc, ok := s.accounts[id]
		if !ok {
			return shared.ErrAccountNotFound
		}
		acc.SetCounter(kind, clamp(acc.Counter(kind)+delta))
		acc.UpdatedAt = time.Now().UTC()
		s.accounts[id] = acc
		return nil
	})
}

func (r *accountRepo) SetCounter(ctx context.Context, id string, kind graph.CounterKind, value int) error {
	if !graph.FamilyAccount.Carries(kind) {
		return shared.ErrCounterNotSupported
	}
	return r.a.do(ctx, func(s *state) error {
		acc, ok := s.accounts[id]
		if !ok {
			return shared.ErrAccountNotFound
		}
		acc.SetCounter(kind, clamp(value))
		acc.UpdatedAt = time.Now().UTC()
		s.accounts[id] = acc
		return nil
	})
}

// ─── Profiles ───────────────────────────────────────────────────────────────

type profileRepo struct{ a *access }

func (r *profileRepo) Create(ctx context.Context, profile *graph.Profile) error {
	return r.a.do(ctx, func(s *state) error {
		if _, taken := s.slugs[profile.Slug]; taken {
			return shared.ErrSlugTaken
		}
		if _, exists := s.profiles[profile.ID]; exists {
			return shared.NewDomainError("graph", "CreateProfile", shared.ErrAlreadyExists, "profile already exists")
		}
		s.profiles[profile.ID] = *profile
		s.slugs[profile.Slug] = profile.ID
		return nil
	})
}

func (r *profileRepo) GetByID(ctx context.Context, id string) (*graph.Profile, error) {
	var out *graph.Profile
	err := r.a.do(ctx, func(s *state) error {
		p, ok := s.profiles[id]
		if !ok {
			return shared.ErrProfileNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock: transactions are already serialized.
func (r *profileRepo) GetForUpdate(ctx context.Context, id string) (*graph.Profile, error) {
	return r.GetByID(ctx, id)
}

func (r *profileRepo) SetReviewAggregate(ctx context.Context, id string, count int, rating float64) error {
	return r.a.do(ctx, func(s *state) error {
		p, ok := s.profiles[id]
		if !ok {
			return shared.ErrProfileNotFound
		}
		p.ReviewsCount = clamp(count)
		p.Rating = rating
		p.UpdatedAt = time.Now().UTC()
		s.profiles[id] = p
		return nil
	})
}

func (r *profileRepo) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.a.do(ctx, func(s *state) error {
		for id := range s.profiles {
			ids = append(ids, id)
		}
		return nil
	})
	sort.Strings(ids)
	return ids, err
}

func (r *profileRepo) AdjustCounter(ctx context.Context, id string, kind graph.CounterKind, delta int) error {
	if !graph.FamilyProfile.Carries(kind) {
		return shared.ErrCounterNotSupported
	}
	return r.a.do(ctx, func(s *state) error {
		p, ok := s.profiles[id]
		if !ok {
			return shared.ErrProfileNotFound
		}
		p.SetCounter(kind, clamp(p.Counter(kind)+delta))
		p.UpdatedAt = time.Now().UTC()
		s.profiles[id] = p
		return nil
	})
}

func (r *profileRepo) SetCounter(ctx context.Context, id string, kind graph.CounterKind, value int) error {
	if !graph.FamilyProfile.Carries(kind) {
		return shared.ErrCounterNotSupported
	}
	return r.a.do(ctx, func(s *state) error {
		p, ok := s.profiles[id]
		if !ok {
			return shared.ErrProfileNotFound
		}
		p.SetCounter(kind, clamp(value))
		p.UpdatedAt = time.Now().UTC()
		s.profiles[id] = p
		return nil
	})
}

// ─── Follows ────────────────────────────────────────────────────────────────

type followRepo struct{ a *access }

func (r *followRepo) Get(ctx context.Context, followerID, targetID string) (*graph.Follow, error) {
	var out *graph.Follow
	err := r.a.do(ctx, func(s *state) error {
		if row, ok := s.follows[pairKey{followerID, targetID}]; ok {
			f := row.Follow
			out = &f
		}
		return nil
	})
	return out, err
}

func (r *followRepo) Insert(ctx context.Context, follow *graph.Follow) (bool, error) {
	created := false
	err := r.a.do(ctx, func(s *state) error {
		key := pairKey{follow.FollowerID, follow.TargetID}
		if _, exists := s.follows[key]; exists {
			return nil
		}
		s.follows[key] = followRow{Follow: *follow, seq: s.next()}
		created = true
		return nil
	})
	return created, err
}

func (r *followRepo) Delete(ctx context.Context, followerID, targetID string) (*graph.Follow, bool, error) {
	var out *graph.Follow
	err := r.a.do(ctx, func(s *state) error {
		key := pairKey{followerID, targetID}
		row, ok := s.follows[key]
		if !ok {
			return nil
		}
		delete(s.follows, key)
		f := row.Follow
		out = &f
		return nil
	})
	return out, out != nil, err
}

func (r *followRepo) list(ctx context.Context, match func(graph.Follow) bool, opts graph.ListOptions) ([]*graph.Follow, error) {
	var rows []followRow
	err := r.a.do(ctx, func(s *state) error {
		for _, row := range s.follows {
			if match(row.Follow) {
				rows = append(rows, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		return newestFirst(rows[i].CreatedAt, rows[j].CreatedAt, rows[i].seq, rows[j].seq)
	})
	out := make([]*graph.Follow, len(rows))
	for i := range rows {
		f := rows[i].Follow
		out[i] = &f
	}
	return page(out, opts)
}

func (r *followRepo) ListByTarget(ctx context.Context, targetID string, opts graph.ListOptions) ([]*graph.Follow, error) {
	return r.list(ctx, func(f graph.Follow) bool { return f.TargetID == targetID }, opts)
}

func (r *followRepo) ListBySource(ctx context.Context, followerID string, opts graph.ListOptions) ([]*graph.Follow, error) {
	return r.list(ctx, func(f graph.Follow) bool { return f.FollowerID == followerID }, opts)
}

func (r *followRepo) Exists(ctx context.Context, followerID, targetID string) (bool, error) {
	f, err := r.Get(ctx, followerID, targetID)
	return f != nil, err
}

func (r *followRepo) CountByTarget(ctx context.Context, targetID string) (int, error) {
	n := 0
	err := r.a.do(ctx, func(s *state) error {
		for key := range s.follows {
			if key.target == targetID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *followRepo) CountBySource(ctx context.Context, followerID string) (int, error) {
	n := 0
	err := r.a.do(ctx, func(s *state) error {
		for key := range s.follows {
			if key.source == followerID {
				n++
			}
		}
		return nil
	})
	return n, err
}

// ─── Likes ──────────────────────────────────────────────────────────────────

type likeRepo struct{ a *access }

func (r *likeRepo) Get(ctx context.Context, userID, targetID string) (*graph.Like, error) {
	var out *graph.Like
	err := r.a.do(ctx, func(s *state) error {
		if row, ok := s.likes[pairKey{userID, targetID}]; ok {
			l := row.Like
			out = &l
		}
		return nil
	})
	return out, err
}

func (r *likeRepo) Insert(ctx context.Context, like *graph.Like) (bool, error) {
	created := false
	err := r.a.do(ctx, func(s *state) error {
		key := pairKey{like.UserID, like.TargetID}
		if _, exists := s.likes[key]; exists {
			return nil
		}
		s.likes[key] = likeRow{Like: *like, seq: s.next()}
		created = true
		return nil
	})
	return created, err
}

func (r *likeRepo) Delete(ctx context.Context, userID, targetID string) (*graph.Like, bool, error) {
	var out *graph.Like
	err := r.a.do(ctx, func(s *state) error {
		key := pairKey{userID, targetID}
		row, ok := s.likes[key]
		if !ok {
			return nil
		}
		delete(s.likes, key)
		l := row.Like
		out = &l
		return nil
	})
	return out, out != nil, err
}

func (r *likeRepo) list(ctx context.Context, match func(graph.Like) bool, opts graph.ListOptions) ([]*graph.Like, error) {
	var rows []likeRow
	err := r.a.do(ctx, func(s *state) error {
		for _, row := range s.likes {
			if match(row.Like) {
				rows = append(rows, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		return newestFirst(rows[i].CreatedAt, rows[j].CreatedAt, rows[i].seq, rows[j].seq)
	})
	out := make([]*graph.Like, len(rows))
	for i := range rows {
		l := rows[i].Like
		out[i] = &l
	}
	return page(out, opts)
}

func (r *likeRepo) ListByTarget(ctx context.Context, targetID string, opts graph.ListOptions) ([]*graph.Like, error) {
	return r.list(ctx, func(l graph.Like) bool { return l.TargetID == targetID }, opts)
}

func (r *likeRepo) ListBySource(ctx context.Context, userID string, opts graph.ListOptions) ([]*graph.Like, error) {
	return r.list(ctx, func(l graph.Like) bool { return l.UserID == userID }, opts)
}

func (r *likeRepo) Exists(ctx context.Context, userID, targetID string) (bool, error) {
	l, err := r.Get(ctx, userID, targetID)
	return l != nil, err
}

func (r *likeRepo) CountByTarget(ctx context.Context, targetID string) (int, error) {
	n := 0
	err := r.a.do(ctx, func(s *state) error {
		for key := range s.likes {
			if key.target == targetID {
				n++
			}
		}
		return nil
	})
	return n, err
}

// ─── Reviews ────────────────────────────────────────────────────────────────

type reviewRepo struct{ a *access }

func (r *reviewRepo) Create(ctx context.Context, review *graph.Review) error {
	return r.a.do(ctx, func(s *state) error {
		if _, exists := s.reviews[review.ID]; exists {
			return shared.NewDomainError("review", "Create", shared.ErrAlreadyExists, "review already exists")
		}
		s.reviews[review.ID] = reviewRow{Review: *review, seq: s.next()}
		return nil
	})
}

func (r *reviewRepo) GetByID(ctx context.Context, id string) (*graph.Review, error) {
	var out *graph.Review
	err := r.a.do(ctx, func(s *state) error {
		row, ok := s.reviews[id]
		if !ok {
			return shared.ErrReviewNotFound
		}
		rv := row.Review
		out = &rv
		return nil
	})
	return out, err
}

func (r *reviewRepo) Delete(ctx context.Context, id string) (*graph.Review, bool, error) {
	var out *graph.Review
	err := r.a.do(ctx, func(s *state) error {
		row, ok := s.reviews[id]
		if !ok {
			return nil
		}
		delete(s.reviews, id)
		rv := row.Review
		out = &rv
		return nil
	})
	return out, out != nil, err
}

func (r *reviewRepo) ListByTarget(ctx context.Context, targetID string, opts graph.ListOptions) ([]*graph.Review, error) {
	var rows []reviewRow
	err := r.a.do(ctx, func(s *state) error {
		for _, row := range s.reviews {
			if row.TargetID == targetID {
				rows = append(rows, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		return newestFirst(rows[i].CreatedAt, rows[j].CreatedAt, rows[i].seq, rows[j].seq)
	})
	out := make([]*graph.Review, len(rows))
	for i := range rows {
		rv := rows[i].Review
		out[i] = &rv
	}
	return page(out, opts)
}

func (r *reviewRepo) RatingsByTarget(ctx context.Context, targetID string) ([]int, error) {
	var ratings []int
	err := r.a.do(ctx, func(s *state) error {
		for _, row := range s.reviews {
			if row.TargetID == targetID {
				ratings = append(ratings, row.Rating)
			}
		}
		return nil
	})
	return ratings, err
}
