// Package matching turns swipes into matches. A right swipe records a like
// edge; the swipe that finds the reciprocal like creates the match and
// notifies both users exactly once.
package matching

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/flicker/match-app/internal/apperr"
	"github.com/flicker/match-app/internal/metrics"
	"github.com/flicker/match-app/internal/models"
	"github.com/flicker/match-app/internal/notify"
	"github.com/flicker/match-app/internal/profile"
)

// DefaultCandidateLimit caps Candidates when the caller passes no limit.
const DefaultCandidateLimit = 100

// Notifier delivers match events.
type Notifier interface {
	Notify(ctx context.Context, target string, ev notify.Event)
}

// SwipeResult is the actor's profile after a swipe and whether the swipe
// created a match.
type SwipeResult struct {
	User    *models.User `json:"user"`
	Matched bool         `json:"matched"`
}

// Engine applies swipes against the user store.
type Engine struct {
	store    profile.Store
	notifier Notifier
	log      zerolog.Logger
}

// NewEngine creates an Engine.
func NewEngine(store profile.Store, notifier Notifier, logger zerolog.Logger) *Engine {
	return &Engine{store: store, notifier: notifier, log: logger}
}

// SwipeRight likes target on behalf of actor. Repeating a swipe changes
// nothing and reports matched=false. When the reciprocal like exists the
// store records the match on both profiles atomically with the like, and
// only that call notifies.
func (e *Engine) SwipeRight(ctx context.Context, actor, target string) (*SwipeResult, error) {
	a, t, err := e.load(ctx, actor, target)
	if err != nil {
		return nil, err
	}

	res, err := e.store.Like(ctx, actor, target)
	if err != nil {
		return nil, err
	}
	if !res.Added {
		return &SwipeResult{User: a, Matched: false}, nil
	}
	metrics.SwipesTotal.WithLabelValues("right").Inc()

	if res.Matched {
		metrics.MatchesTotal.Inc()
		e.log.Info().Str("user_id", actor).Str("target_id", target).Msg("match created")

		// Summaries come from the profiles read before the like.
		e.notifier.Notify(ctx, target, notify.MatchEvent{Counterpart: a.Summary()})
		e.notifier.Notify(ctx, actor, notify.MatchEvent{Counterpart: t.Summary()})
	}

	updated, err := e.store.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	return &SwipeResult{User: updated, Matched: res.Matched}, nil
}

// SwipeLeft dislikes target on behalf of actor. It never notifies.
func (e *Engine) SwipeLeft(ctx context.Context, actor, target string) (*models.User, error) {
	a, _, err := e.load(ctx, actor, target)
	if err != nil {
		return nil, err
	}

	added, err := e.store.Dislike(ctx, actor, target)
	if err != nil {
		return nil, err
	}
	if !added {
		return a, nil
	}
	metrics.SwipesTotal.WithLabelValues("left").Inc()
	return e.store.Get(ctx, actor)
}

// Matches lists the public summaries of actor's matches.
func (e *Engine) Matches(ctx context.Context, actor string) ([]models.Summary, error) {
	if err := e.requireActor(ctx, actor); err != nil {
		return nil, err
	}
	return e.store.Matches(ctx, actor)
}

// Candidates lists profiles actor has not swiped on and who fit actor's
// gender preference both ways.
func (e *Engine) Candidates(ctx context.Context, actor string, limit int) ([]models.User, error) {
	if limit <= 0 || limit > DefaultCandidateLimit {
		limit = DefaultCandidateLimit
	}
	users, err := e.store.Candidates(ctx, actor, limit)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Unauthenticated("user not found")
	}
	return users, err
}

// load fetches both parties of a swipe. A missing target is NotFound; a
// missing actor means the caller's identity is stale.
func (e *Engine) load(ctx context.Context, actor, target string) (*models.User, *models.User, error) {
	t, err := e.store.Get(ctx, target)
	if err != nil {
		return nil, nil, err
	}
	a, err := e.store.Get(ctx, actor)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil, apperr.Unauthenticated("user not found")
	}
	if err != nil {
		return nil, nil, err
	}
	if actor == target {
		return nil, nil, apperr.InvalidAction("cannot swipe on yourself")
	}
	return a, t, nil
}

func (e *Engine) requireActor(ctx context.Context, actor string) error {
	ok, err := e.store.Exists(ctx, actor)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Unauthenticated("user not found")
	}
	return nil
}
