package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DirectoryPrefix is the Redis key prefix for presence entries.
	DirectoryPrefix = "presence:"

	// DirectoryTTL bounds how long an entry survives without a ping, so a
	// crashed instance's users age out.
	DirectoryTTL = 1 * time.Hour
)

// Directory records which gateway instance holds each online UID.
type Directory interface {
	Server() string
	Claim(ctx context.Context, uid string) error
	Refresh(ctx context.Context, uid string) error
	Locate(ctx context.Context, uid string) (string, bool, error)
	Release(ctx context.Context, uid string) error
}

// refreshScript extends the TTL only if this server still owns the entry.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the entry only if this server still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisDirectory stores presence:<uid> -> server name with a TTL.
type RedisDirectory struct {
	client     *redis.Client
	serverName string
}

// NewRedisDirectory creates a directory for the named server instance.
func NewRedisDirectory(client *redis.Client, serverName string) *RedisDirectory {
	return &RedisDirectory{client: client, serverName: serverName}
}

// Server returns this instance's name.
func (d *RedisDirectory) Server() string {
	return d.serverName
}

// Claim records that uid is connected to this instance.
func (d *RedisDirectory) Claim(ctx context.Context, uid string) error {
	if err := d.client.Set(ctx, DirectoryPrefix+uid, d.serverName, DirectoryTTL).Err(); err != nil {
		return fmt.Errorf("presence: claim %s: %w", uid, err)
	}
	return nil
}

// Refresh extends uid's entry if this instance still owns it.
func (d *RedisDirectory) Refresh(ctx context.Context, uid string) error {
	err := refreshScript.Run(ctx, d.client, []string{DirectoryPrefix + uid},
		d.serverName, int(DirectoryTTL.Seconds())).Err()
	if err != nil {
		return fmt.Errorf("presence: refresh %s: %w", uid, err)
	}
	return nil
}

// Locate returns the instance holding uid.
func (d *RedisDirectory) Locate(ctx context.Context, uid string) (string, bool, error) {
	server, err := d.client.Get(ctx, DirectoryPrefix+uid).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("presence: locate %s: %w", uid, err)
	}
	return server, true, nil
}

// Release deletes uid's entry if this instance still owns it.
func (d *RedisDirectory) Release(ctx context.Context, uid string) error {
	if err := releaseScript.Run(ctx, d.client, []string{DirectoryPrefix + uid}, d.serverName).Err(); err != nil {
		return fmt.Errorf("presence: release %s: %w", uid, err)
	}
	return nil
}
