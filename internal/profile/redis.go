package profile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flicker/match-app/internal/apperr"
	"github.com/flicker/match-app/internal/models"
)

// Redis key layout.
const (
	userPrefix   = "user:"
	emailPrefix  = "user:email:"
	genderPrefix = "users:gender:"
)

func userKey(id string) string     { return userPrefix + id }
func likesKey(id string) string    { return userPrefix + id + ":likes" }
func dislikesKey(id string) string { return userPrefix + id + ":dislikes" }
func matchesKey(id string) string  { return userPrefix + id + ":matches" }
func emailKey(email string) string { return emailPrefix + strings.ToLower(email) }
func genderKey(g string) string    { return genderPrefix + g }

// record is the hash stored at user:<id>.
type record struct {
	ID               string `redis:"id"`
	Name             string `redis:"name"`
	Email            string `redis:"email"`
	Age              int    `redis:"age"`
	Gender           string `redis:"gender"`
	GenderPreference string `redis:"gender_preference"`
	Bio              string `redis:"bio"`
	Image            string `redis:"image"`
	CreatedAt        int64  `redis:"created_at"` // unix millis
}

func (r *record) user() *models.User {
	return &models.User{
		ID:               r.ID,
		Name:             r.Name,
		Email:            r.Email,
		Age:              r.Age,
		Gender:           r.Gender,
		GenderPreference: r.GenderPreference,
		Bio:              r.Bio,
		Image:            r.Image,
		CreatedAt:        time.UnixMilli(r.CreatedAt).UTC(),
	}
}

// likeLua appends the like edge and, if the reciprocal like exists, the
// match on both sides.
//
// KEYS: from hash, to hash, from likes, to likes, from matches, to matches
// ARGV: from id, to id, now (unix millis)
// Returns -1 if either user is missing, 0 if the edge already existed,
// 1 if it was added without a match, 2 if it created the match.
const likeLua = `
if redis.call('EXISTS', KEYS[1]) == 0 or redis.call('EXISTS', KEYS[2]) == 0 then
    return -1
end

if redis.call('SADD', KEYS[3], ARGV[2]) == 0 then
    return 0
end

if redis.call('SISMEMBER', KEYS[4], ARGV[1]) == 0 then
    return 1
end

if not redis.call('ZSCORE', KEYS[5], ARGV[2]) then
    redis.call('ZADD', KEYS[5], ARGV[3], ARGV[2])
end
if not redis.call('ZSCORE', KEYS[6], ARGV[1]) then
    redis.call('ZADD', KEYS[6], ARGV[3], ARGV[1])
end
return 2
`

// createLua claims the email and writes the profile in one step. The gender
// index is written first because it is the only write that can fail on a
// key of the wrong type, so a failure leaves nothing behind.
//
// KEYS: user hash, email claim, gender index
// ARGV: id, name, email, age, gender, gender preference, bio, image,
// created_at (unix millis)
// Returns -1 if the id is taken, -2 if the email is taken, 1 on success.
const createLua = `
if redis.call('EXISTS', KEYS[1]) == 1 then
    return -1
end
if redis.call('EXISTS', KEYS[2]) == 1 then
    return -2
end

redis.call('SADD', KEYS[3], ARGV[1])
redis.call('HSET', KEYS[1],
    'id', ARGV[1],
    'name', ARGV[2],
    'email', ARGV[3],
    'age', ARGV[4],
    'gender', ARGV[5],
    'gender_preference', ARGV[6],
    'bio', ARGV[7],
    'image', ARGV[8],
    'created_at', ARGV[9])
redis.call('SET', KEYS[2], ARGV[1])
return 1
`

// RedisStore keeps each profile in a hash with sets for its edges and a
// sorted set of matches scored by match time.
type RedisStore struct {
	rdb          *redis.Client
	likeScript   *redis.Script
	createScript *redis.Script
}

// NewRedisStore creates a user store on rdb.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{
		rdb:          rdb,
		likeScript:   redis.NewScript(likeLua),
		createScript: redis.NewScript(createLua),
	}
}

// Create persists u. The email must not belong to another profile.
func (s *RedisStore) Create(ctx context.Context, u *models.User) error {
	if err := Validate(u); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	keys := []string{userKey(u.ID), emailKey(u.Email), genderKey(u.Gender)}
	res, err := s.createScript.Run(ctx, s.rdb, keys,
		u.ID, u.Name, u.Email, u.Age, u.Gender, u.GenderPreference,
		u.Bio, u.Image, u.CreatedAt.UnixMilli(),
	).Int()
	if err != nil {
		return apperr.Store("profile: create user", err)
	}

	switch res {
	case -1:
		return apperr.InvalidAction("user already exists")
	case -2:
		return apperr.InvalidAction("email already registered")
	case 1:
		return nil
	default:
		return apperr.Store("profile: create user", fmt.Errorf("unexpected script result %d", res))
	}
}

// Get loads the profile and its edges.
func (s *RedisStore) Get(ctx context.Context, id string) (*models.User, error) {
	var rec record
	if err := s.rdb.HGetAll(ctx, userKey(id)).Scan(&rec); err != nil {
		return nil, apperr.Store("profile: get user", err)
	}
	if rec.ID == "" {
		return nil, apperr.NotFound("user not found")
	}
	u := rec.user()

	pipe := s.rdb.Pipeline()
	likes := pipe.SMembers(ctx, likesKey(id))
	dislikes := pipe.SMembers(ctx, dislikesKey(id))
	matches := pipe.ZRange(ctx, matchesKey(id), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.Store("profile: get edges", err)
	}

	u.Likes = sorted(likes.Val())
	u.Dislikes = sorted(dislikes.Val())
	u.Matches = nonNil(matches.Val())
	return u, nil
}

// Exists reports whether a profile with id exists.
func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, userKey(id)).Result()
	if err != nil {
		return false, apperr.Store("profile: exists", err)
	}
	return n > 0, nil
}

// Like runs the like script.
func (s *RedisStore) Like(ctx context.Context, from, to string) (LikeResult, error) {
	keys := []string{
		userKey(from), userKey(to),
		likesKey(from), likesKey(to),
		matchesKey(from), matchesKey(to),
	}
	res, err := s.likeScript.Run(ctx, s.rdb, keys, from, to, time.Now().UnixMilli()).Int()
	if err != nil {
		return LikeResult{}, apperr.Store("profile: like", err)
	}

	switch res {
	case -1:
		return LikeResult{}, apperr.NotFound("user not found")
	case 0:
		return LikeResult{}, nil
	case 1:
		return LikeResult{Added: true}, nil
	case 2:
		return LikeResult{Added: true, Matched: true}, nil
	default:
		return LikeResult{}, apperr.Store("profile: like", fmt.Errorf("unexpected script result %d", res))
	}
}

// Dislike records from->to.
func (s *RedisStore) Dislike(ctx context.Context, from, to string) (bool, error) {
	n, err := s.rdb.SAdd(ctx, dislikesKey(from), to).Result()
	if err != nil {
		return false, apperr.Store("profile: dislike", err)
	}
	return n > 0, nil
}

// Matches returns summaries in match order. Profiles deleted since the match
// are skipped.
func (s *RedisStore) Matches(ctx context.Context, id string) ([]models.Summary, error) {
	ids, err := s.rdb.ZRange(ctx, matchesKey(id), 0, -1).Result()
	if err != nil {
		return nil, apperr.Store("profile: list matches", err)
	}
	if len(ids) == 0 {
		return []models.Summary{}, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.SliceCmd, len(ids))
	for i, mid := range ids {
		cmds[i] = pipe.HMGet(ctx, userKey(mid), "name", "image")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, apperr.Store("profile: load matches", err)
	}

	out := make([]models.Summary, 0, len(ids))
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 2 || vals[0] == nil {
			continue
		}
		image, _ := vals[1].(string)
		name, _ := vals[0].(string)
		out = append(out, models.Summary{ID: ids[i], Name: name, Image: image})
	}
	return out, nil
}

// Candidates diffs the preferred gender sets against id's likes and dislikes.
// Matches need no separate exclusion since every match starts with a like.
func (s *RedisStore) Candidates(ctx context.Context, id string, limit int) ([]models.User, error) {
	self, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	genders := preferredGenders(self.GenderPreference)
	pipe := s.rdb.Pipeline()
	diffs := make([]*redis.StringSliceCmd, len(genders))
	for i, g := range genders {
		diffs[i] = pipe.SDiff(ctx, genderKey(g), likesKey(id), dislikesKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.Store("profile: candidate ids", err)
	}

	var ids []string
	for _, cmd := range diffs {
		for _, cid := range cmd.Val() {
			if cid != id {
				ids = append(ids, cid)
			}
		}
	}
	if len(ids) == 0 {
		return []models.User{}, nil
	}

	pipe = s.rdb.Pipeline()
	recs := make([]*redis.MapStringStringCmd, len(ids))
	for i, cid := range ids {
		recs[i] = pipe.HGetAll(ctx, userKey(cid))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.Store("profile: load candidates", err)
	}

	out := make([]models.User, 0, len(ids))
	for _, cmd := range recs {
		var rec record
		if err := cmd.Scan(&rec); err != nil || rec.ID == "" {
			continue
		}
		cand := rec.user()
		if !cand.Accepts(self.Gender) {
			continue
		}
		out = append(out, cand.Public())
	}

	sortCandidates(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortCandidates(users []models.User) {
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
}

func sorted(ids []string) []string {
	out := nonNil(ids)
	sort.Strings(out)
	return out
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
