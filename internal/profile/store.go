// Package profile stores dating profiles and the swipe edges between them.
// The Like operation is atomic: it records the edge and, when the reciprocal
// like already exists, records the match on both profiles in the same step.
package profile

import (
	"context"
	"net/mail"
	"strings"

	"github.com/flicker/match-app/internal/apperr"
	"github.com/flicker/match-app/internal/models"
)

// MinAge is the youngest age a profile may declare.
const MinAge = 18

// LikeResult reports what a Like changed. Added is false when the edge
// already existed, in which case nothing else happened. Matched is true only
// for the call that created the match.
type LikeResult struct {
	Added   bool
	Matched bool
}

// Store is the user store.
type Store interface {
	// Create validates u, assigns an ID if it has none and persists it.
	Create(ctx context.Context, u *models.User) error
	// Get returns the profile with its edges, or a NotFound error.
	Get(ctx context.Context, id string) (*models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Like records from->to. Both users must exist.
	Like(ctx context.Context, from, to string) (LikeResult, error)
	// Dislike records from->to and reports whether the edge is new.
	Dislike(ctx context.Context, from, to string) (bool, error)
	// Matches returns summaries of id's matches in match order.
	Matches(ctx context.Context, id string) ([]models.Summary, error)
	// Candidates returns up to limit profiles id has not swiped on whose
	// gender id prefers and who prefer id's gender.
	Candidates(ctx context.Context, id string, limit int) ([]models.User, error)
}

// Validate checks the fields required to create a profile.
func Validate(u *models.User) error {
	if strings.TrimSpace(u.Name) == "" {
		return apperr.InvalidAction("name is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return apperr.InvalidAction("email is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return apperr.InvalidAction("email is invalid")
	}
	if u.Age < MinAge {
		return apperr.InvalidAction("you must be at least 18 years old")
	}
	switch u.Gender {
	case models.GenderMale, models.GenderFemale:
	default:
		return apperr.InvalidAction("gender must be male or female")
	}
	switch u.GenderPreference {
	case models.GenderMale, models.GenderFemale, models.PreferenceBoth:
	default:
		return apperr.InvalidAction("gender preference must be male, female or both")
	}
	return nil
}

// preferredGenders expands a preference into the genders it admits.
func preferredGenders(pref string) []string {
	if pref == models.PreferenceBoth {
		return []string{models.GenderMale, models.GenderFemale}
	}
	return []string{pref}
}
