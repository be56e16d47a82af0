// Package jobs contains the scheduled jobs of the social graph service.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
	"github.com/alem-hub/socialgraph/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE COUNTERS JOB
// Counters are maintained incrementally by the command handlers. This job
// recounts them from the edge and review tables and repairs any drift left
// by writes that bypassed the service.
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileCountersConfig contains configuration for the job.
type ReconcileCountersConfig struct {
	// DryRun reports drift without writing corrections.
	DryRun bool
}

// Correction is one counter that did not match its recount.
type Correction struct {
	Family  string  `json:"family"`
	ID      string  `json:"id"`
	Counter string  `json:"counter"`
	Stored  float64 `json:"stored"`
	Actual  float64 `json:"actual"`
}

// ReconcileStats summarizes one run.
type ReconcileStats struct {
	StartedAt       time.Time     `json:"startedAt"`
	CompletedAt     time.Time     `json:"completedAt"`
	Duration        time.Duration `json:"duration"`
	AccountsChecked int           `json:"accountsChecked"`
	ProfilesChecked int           `json:"profilesChecked"`
	Corrections     []Correction  `json:"corrections"`
	Applied         bool          `json:"applied"`
	Failures        int           `json:"failures"`
}

// ReconcileCountersJob recomputes denormalized counters and review aggregates.
type ReconcileCountersJob struct {
	store          graph.Store
	eventPublisher shared.EventPublisher
	log            *logger.Logger
	config         ReconcileCountersConfig

	lastStats atomic.Pointer[ReconcileStats]
}

// NewReconcileCountersJob creates a new reconcile job.
func NewReconcileCountersJob(
	store graph.Store,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	config ReconcileCountersConfig,
) *ReconcileCountersJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ReconcileCountersJob{
		store:          store,
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("reconcile_counters")),
		config:         config,
	}
}

// Name returns the job name.
func (j *ReconcileCountersJob) Name() string {
	return "reconcile_counters"
}

// Description returns a human-readable description.
func (j *ReconcileCountersJob) Description() string {
	return "Recounts follower, following, like, member and review counters from the edge tables"
}

// LastStats returns the stats of the most recent run, or nil.
func (j *ReconcileCountersJob) LastStats() *ReconcileStats {
	return j.lastStats.Load()
}

// Run executes the job.
func (j *ReconcileCountersJob) Run(ctx context.Context) error {
	_, err := j.Reconcile(ctx)
	return err
}

// Reconcile checks every account and profile. Each entity is handled in its
// own transaction with its row locked, so concurrent follows and reviews are
// either fully counted or not at all. A failure on one entity does not stop
// the run; all failures are returned joined.
func (j *ReconcileCountersJob) Reconcile(ctx context.Context) (*ReconcileStats, error) {
	stats := &ReconcileStats{StartedAt: time.Now(), Applied: !j.config.DryRun}
	var errs []error

	repos := j.store.Repositories()

	accountIDs, err := repos.Accounts.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list accounts: %w", err)
	}
	for _, id := range accountIDs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		fixes, err := j.reconcileAccount(ctx, id)
		if err != nil {
			stats.Failures++
			errs = append(errs, fmt.Errorf("account %s: %w", id, err))
			continue
		}
		stats.AccountsChecked++
		stats.Corrections = append(stats.Corrections, fixes...)
	}

	profileIDs, err := repos.Profiles.ListIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("reconcile: list profiles: %w", err)
	}
	for _, id := range profileIDs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		fixes, err := j.reconcileProfile(ctx, id)
		if err != nil {
			stats.Failures++
			errs = append(errs, fmt.Errorf("profile %s: %w", id, err))
			continue
		}
		stats.ProfilesChecked++
		stats.Corrections = append(stats.Corrections, fixes...)
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastStats.Store(stats)

	for _, c := range stats.Corrections {
		j.log.Warn("counter drift",
			logger.String("family", c.Family),
			logger.String("id", c.ID),
			logger.Counter(c.Counter),
			logger.Float64("stored", c.Stored),
			logger.Float64("actual", c.Actual),
			logger.Bool("applied", stats.Applied),
		)
	}
	j.log.Info("reconciliation finished",
		logger.Int("accounts", stats.AccountsChecked),
		logger.Int("profiles", stats.ProfilesChecked),
		logger.Int("corrections", len(stats.Corrections)),
		logger.Int("failures", stats.Failures),
		logger.Duration("duration", stats.Duration),
	)

	if j.eventPublisher != nil {
		event := shared.NewCountersReconciledEvent(uuid.NewString(),
			stats.AccountsChecked+stats.ProfilesChecked, len(stats.Corrections))
		_ = j.eventPublisher.Publish(event)
	}

	return stats, errors.Join(errs...)
}

func (j *ReconcileCountersJob) reconcileAccount(ctx context.Context, id string) ([]Correction, error) {
	var fixes []Correction
	err := j.store.WithinTx(ctx, func(repos graph.Repositories) error {
		fixes = nil
		account, err := repos.Accounts.GetForUpdate(ctx, id)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		followers, err := repos.Follows.CountByTarget(ctx, id)
		if err != nil {
			return err
		}
		following, err := repos.Follows.CountBySource(ctx, id)
		if err != nil {
			return err
		}
		likes, err := repos.Likes.CountByTarget(ctx, id)
		if err != nil {
			return err
		}

		actual := map[graph.CounterKind]int{
			graph.CounterFollowers: followers,
			graph.CounterFollowing: following,
			graph.CounterLikes:     likes,
		}
		for _, kind := range graph.FamilyAccount.Counters() {
			stored := account.Counter(kind)
			if stored == actual[kind] {
				continue
			}
			fixes = append(fixes, Correction{
				Family:  graph.FamilyAccount.String(),
				ID:      id,
				Counter: string(kind),
				Stored:  float64(stored),
				Actual:  float64(actual[kind]),
			})
			if !j.config.DryRun {
				if err := repos.Accounts.SetCounter(ctx, id, kind, actual[kind]); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return fixes, err
}

func (j *ReconcileCountersJob) reconcileProfile(ctx context.Context, id string) ([]Correction, error) {
	var fixes []Correction
	err := j.store.WithinTx(ctx, func(repos graph.Repositories) error {
		fixes = nil
		profile, err := repos.Profiles.GetForUpdate(ctx, id)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		followers, err := repos.Follows.CountByTarget(ctx, id)
		if err != nil {
			return err
		}
		likes, err := repos.Likes.CountByTarget(ctx, id)
		if err != nil {
			return err
		}
		ratings, err := repos.Reviews.RatingsByTarget(ctx, id)
		if err != nil {
			return err
		}
		reviews, rating := graph.AggregateRating(ratings)

		// Members are the accounts following the profile.
		actual := map[graph.CounterKind]int{
			graph.CounterFollowers: followers,
			graph.CounterMembers:   followers,
			graph.CounterLikes:     likes,
		}
		for _, kind := range []graph.CounterKind{graph.CounterFollowers, graph.CounterMembers, graph.CounterLikes} {
			stored := profile.Counter(kind)
			if stored == actual[kind] {
				continue
			}
			fixes = append(fixes, Correction{
				Family:  graph.FamilyProfile.String(),
				ID:      id,
				Counter: string(kind),
				Stored:  float64(stored),
				Actual:  float64(actual[kind]),
			})
			if !j.config.DryRun {
				if err := repos.Profiles.SetCounter(ctx, id, kind, actual[kind]); err != nil {
					return err
				}
			}
		}

		aggregateDrift := false
		if profile.ReviewsCount != reviews {
			aggregateDrift = true
			fixes = append(fixes, Correction{
				Family:  graph.FamilyProfile.String(),
				ID:      id,
				Counter: string(graph.CounterReviews),
				Stored:  float64(profile.ReviewsCount),
				Actual:  float64(reviews),
			})
		}
		if math.Abs(profile.Rating-rating) > 1e-9 {
			aggregateDrift = true
			fixes = append(fixes, Correction{
				Family:  graph.FamilyProfile.String(),
				ID:      id,
				Counter: "rating",
				Stored:  profile.Rating,
				Actual:  rating,
			})
		}
		if aggregateDrift && !j.config.DryRun {
			return repos.Profiles.SetReviewAggregate(ctx, id, reviews, rating)
		}
		return nil
	})
	return fixes, err
}
