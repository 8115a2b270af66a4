package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCapacityExceeded is an exported constant or variable used by the session store.
var ErrCapacityExceeded = errors.New("session capacity exceeded")

// ErrNotFound is an exported constant or variable used by the session store.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable is an exported constant or variable used by the session store.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrRecordCorrupt is returned when a stored hash is missing required fields.
var ErrRecordCorrupt = errors.New("session record corrupt")

const activityWindow = 24 * time.Hour

const putStatusCapacity int64 = 0

// putScript inserts a record only if the user's active-set cardinality is
// below the cap. Check and insert run as one script, so no interleaving of
// concurrent puts can push a user past the cap.
//
// KEYS: record hash, user active set, users set, active counter,
// second-factor counter, creation zset.
// ARGV: cap, user id, secret, phone, tfa flag, created unix, session id.
const putScript = `
local cap = tonumber(ARGV[1])
if redis.call("SCARD", KEYS[2]) >= cap then
  return 0
end
redis.call("HSET", KEYS[1],
  "user", ARGV[2],
  "secret", ARGV[3],
  "phone", ARGV[4],
  "tfa", ARGV[5],
  "created", ARGV[6],
  "revoked", "0")
redis.call("SADD", KEYS[2], ARGV[7])
redis.call("SADD", KEYS[3], ARGV[2])
redis.call("INCR", KEYS[4])
if ARGV[5] == "1" then
  redis.call("INCR", KEYS[5])
end
redis.call("ZADD", KEYS[6], tonumber(ARGV[6]), ARGV[7])
return 1
`

var putLua = redis.NewScript(putScript)

// revokeScript flips revoked to 1 exactly once and keeps the counters and
// the user's active set consistent in the same script. Returns -1 when the
// record does not exist, 0 when it was already revoked, 1 when this call
// revoked it.
//
// KEYS: record hash, active counter, second-factor counter.
// ARGV: session id, user active-set prefix.
const revokeScript = `
local rev = redis.call("HGET", KEYS[1], "revoked")
if rev == false then
  return -1
end
if rev == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
local user = redis.call("HGET", KEYS[1], "user")
redis.call("SREM", ARGV[2] .. user, ARGV[1])
local count = tonumber(redis.call("GET", KEYS[2]) or "0")
if count > 1 then
  redis.call("DECR", KEYS[2])
elseif count == 1 then
  redis.call("DEL", KEYS[2])
end
if redis.call("HGET", KEYS[1], "tfa") == "1" then
  local tfa = tonumber(redis.call("GET", KEYS[3]) or "0")
  if tfa > 1 then
    redis.call("DECR", KEYS[3])
  elseif tfa == 1 then
    redis.call("DEL", KEYS[3])
  end
end
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// Store is a Redis-backed session store that enforces the per-user capacity
// invariant atomically and keeps revocation idempotent and monotonic.
type Store struct {
	redis      redis.UniversalClient
	prefix     string
	maxPerUser int
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the key namespace; maxPerUser caps non-revoked records per
// user.
func NewStore(client redis.UniversalClient, prefix string, maxPerUser int) *Store {
	return &Store{
		redis:      client,
		prefix:     prefix,
		maxPerUser: maxPerUser,
	}
}

func (s *Store) recordKey(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userSetKey(userID int64) string {
	return s.prefix + ":u:" + strconv.FormatInt(userID, 10)
}

func (s *Store) userSetPrefix() string {
	return s.prefix + ":u:"
}

func (s *Store) usersKey() string {
	return s.prefix + ":users"
}

func (s *Store) activeCountKey() string {
	return s.prefix + ":count:active"
}

func (s *Store) tfaCountKey() string {
	return s.prefix + ":count:tfa"
}

func (s *Store) recentKey() string {
	return s.prefix + ":recent"
}

// Put persists a record, enforcing the per-user cap inside a single Lua
// script. Returns [ErrCapacityExceeded], and writes nothing, when the user
// already holds the maximum number of non-revoked sessions.
func (s *Store) Put(ctx context.Context, rec *Record) error {
	tfa := "0"
	if rec.HasSecondFactor {
		tfa = "1"
	}

	keys := []string{
		s.recordKey(rec.SessionID),
		s.userSetKey(rec.UserID),
		s.usersKey(),
		s.activeCountKey(),
		s.tfaCountKey(),
		s.recentKey(),
	}
	argv := []interface{}{
		s.maxPerUser,
		strconv.FormatInt(rec.UserID, 10),
		string(rec.Secret),
		string(rec.Phone),
		tfa,
		rec.CreatedAt,
		rec.SessionID,
	}

	res, err := putLua.Run(ctx, s.redis, keys, argv...).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if res == putStatusCapacity {
		return ErrCapacityExceeded
	}
	return nil
}

// Get retrieves a single record by session ID.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeRecord(sessionID, fields)
}

// ListActive returns the user's non-revoked records, newest first.
func (s *Store) ListActive(ctx context.Context, userID int64) ([]*Record, error) {
	ids, err := s.redis.SMembers(ctx, s.userSetKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	pipe := s.redis.Pipeline()
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	records := make([]*Record, 0, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			// Set membership can outlive a deleted record; skip strays.
			continue
		}
		rec, err := decodeRecord(ids[i], fields)
		if err != nil {
			return nil, err
		}
		if rec.Revoked {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt > records[j].CreatedAt
		}
		return records[i].SessionID > records[j].SessionID
	})
	return records, nil
}

// CountActive returns the user's non-revoked session count.
func (s *Store) CountActive(ctx context.Context, userID int64) (int, error) {
	n, err := s.redis.SCard(ctx, s.userSetKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// Revoke marks a session revoked. Idempotent: revoking an unknown or
// already-revoked session returns false and changes nothing. The revoked
// flag never transitions back to false.
func (s *Store) Revoke(ctx context.Context, sessionID string) (bool, error) {
	keys := []string{
		s.recordKey(sessionID),
		s.activeCountKey(),
		s.tfaCountKey(),
	}
	res, err := revokeLua.Run(ctx, s.redis, keys, sessionID, s.userSetPrefix()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

// RevokeAllForUser revokes every active session of a user and returns how
// many this call revoked.
//
// ATOMICITY NOTE: the member list is read first and each session is then
// revoked individually. A session stored between the read and the revokes is
// not captured by this call; each individual revoke stays atomic, so the
// only consequence is one stray active session caught by the next call.
func (s *Store) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userSetKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := 0
	for _, id := range ids {
		ok, err := s.Revoke(ctx, id)
		if err != nil {
			return revoked, err
		}
		if ok {
			revoked++
		}
	}
	return revoked, nil
}

// Stats aggregates the store. The creation zset is pruned to the trailing
// 24h window on every call, so the zset never grows unbounded.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	cutoff := time.Now().Add(-activityWindow).Unix()
	if err := s.redis.ZRemRangeByScore(
		ctx, s.recentKey(), "-inf", strconv.FormatInt(cutoff, 10),
	).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	pipe := s.redis.Pipeline()
	usersCmd := pipe.SCard(ctx, s.usersKey())
	activeCmd := pipe.Get(ctx, s.activeCountKey())
	tfaCmd := pipe.Get(ctx, s.tfaCountKey())
	recentCmd := pipe.ZCard(ctx, s.recentKey())
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	stats := &Stats{
		TotalUsers:     usersCmd.Val(),
		CreatedLast24h: recentCmd.Val(),
	}
	if n, err := activeCmd.Int64(); err == nil {
		stats.ActiveSessions = n
	}
	if n, err := tfaCmd.Int64(); err == nil {
		stats.SecondFactorSessions = n
	}
	return stats, nil
}

func decodeRecord(sessionID string, fields map[string]string) (*Record, error) {
	userField, ok := fields["user"]
	if !ok {
		return nil, ErrRecordCorrupt
	}
	userID, err := strconv.ParseInt(userField, 10, 64)
	if err != nil {
		return nil, ErrRecordCorrupt
	}
	created, err := strconv.ParseInt(fields["created"], 10, 64)
	if err != nil {
		return nil, ErrRecordCorrupt
	}

	return &Record{
		SessionID:       sessionID,
		UserID:          userID,
		Secret:          []byte(fields["secret"]),
		Phone:           []byte(fields["phone"]),
		HasSecondFactor: fields["tfa"] == "1",
		CreatedAt:       created,
		Revoked:         fields["revoked"] == "1",
	}, nil
}
