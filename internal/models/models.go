// Package models holds the domain types shared by the profile, matching,
// chat and notification packages.
package models

import "time"

// Gender values.
const (
	GenderMale   = "male"
	GenderFemale = "female"

	// PreferenceBoth is only valid as a GenderPreference.
	PreferenceBoth = "both"
)

// User is a dating profile together with its swipe edges. Likes, Dislikes
// and Matches hold UIDs; Matches is ordered by match time.
type User struct {
	ID               string    `json:"_id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Age              int       `json:"age"`
	Gender           string    `json:"gender"`
	GenderPreference string    `json:"genderPreference"`
	Bio              string    `json:"bio"`
	Image            string    `json:"image"`
	Likes            []string  `json:"likes"`
	Dislikes         []string  `json:"dislikes"`
	Matches          []string  `json:"matches"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Summary is the public profile view sent with match events and listed by
// getMatches.
type Summary struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Summary returns the public view of u.
func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Image: u.Image}
}

// Public returns a copy of u without the private swipe edges and email, for
// listing other users' profiles.
func (u *User) Public() User {
	return User{
		ID:               u.ID,
		Name:             u.Name,
		Age:              u.Age,
		Gender:           u.Gender,
		GenderPreference: u.GenderPreference,
		Bio:              u.Bio,
		Image:            u.Image,
		CreatedAt:        u.CreatedAt,
	}
}

// Accepts reports whether u's gender preference admits gender.
func (u *User) Accepts(gender string) bool {
	return u.GenderPreference == PreferenceBoth || u.GenderPreference == gender
}

// Message is an immutable direct message between two users.
type Message struct {
	ID        string    `json:"_id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConversationKey returns the order-independent key of the conversation
// between a and b.
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
