package main

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/flicker/match-app/internal/models"
)

var (
	maleNames   = []string{"James", "John", "Robert", "Michael", "William", "David", "Richard", "Joseph", "Thomas"}
	femaleNames = []string{"Mary", "Patricia", "Jennifer", "Linda", "Elizabeth", "Barbara", "Susan", "Jessica", "Sarah", "Karen", "Nancy", "Lisa"}

	preferences = []string{models.GenderMale, models.GenderFemale, models.PreferenceBoth}

	bioDescriptors = []string{
		"Coffee addict", "Cat lover", "Dog person", "Foodie", "Gym rat",
		"Bookworm", "Movie buff", "Music lover", "Travel junkie", "Beach bum",
		"City slicker", "Outdoor enthusiast", "Netflix binger", "Yoga enthusiast",
		"Craft beer connoisseur", "Sushi fanatic", "Adventure seeker",
		"Night owl", "Early bird", "Aspiring chef",
	}
)

const (
	minSeedAge = 21
	maxSeedAge = 45
)

type generator struct {
	rng *rand.Rand
}

func newGenerator(seed uint64) *generator {
	return &generator{rng: rand.New(rand.NewPCG(seed, seed>>1))}
}

func (g *generator) users() []models.User {
	out := make([]models.User, 0, len(maleNames)+len(femaleNames))
	for i, name := range maleNames {
		out = append(out, g.user(name, models.GenderMale, i))
	}
	for i, name := range femaleNames {
		out = append(out, g.user(name, models.GenderFemale, i))
	}
	return out
}

// user builds one profile. Emails depend only on the name so reruns hit the
// uniqueness check instead of creating duplicates.
func (g *generator) user(name, gender string, index int) models.User {
	return models.User{
		Name:             name,
		Email:            strings.ToLower(name) + "@example.com",
		Age:              minSeedAge + g.rng.IntN(maxSeedAge-minSeedAge+1),
		Gender:           gender,
		GenderPreference: preferences[g.rng.IntN(len(preferences))],
		Bio:              g.bio(),
		Image:            fmt.Sprintf("/%s/%d.jpg", gender, index+1),
	}
}

func (g *generator) bio() string {
	picked := make([]string, len(bioDescriptors))
	copy(picked, bioDescriptors)
	g.rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	return strings.Join(picked[:3], " | ")
}
