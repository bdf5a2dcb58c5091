package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"heimdall/internal/models"

	"github.com/redis/go-redis/v9"
)

// upsertScript keeps the forward index, reverse index and timestamp in one
// atomic step so the bijection invariant can never be observed half-updated.
// If the member re-verifies under a new subject, the stale reverse entry of
// the old subject is deleted in the same step.
//
// The stale reverse key is built inside the script rather than declared in
// KEYS, which requires a single-node Redis (one shared keyspace); the key
// cannot be declared up front because the previous subject is only known
// after the script reads the forward index.
var upsertScript = redis.NewScript(`
local forward = KEYS[1]
local reverse = KEYS[2]
local stamp = KEYS[3]
local member = ARGV[1]
local subject = ARGV[2]
local verified_at = ARGV[3]

local owner = redis.call("GET", reverse)
if owner and owner ~= member then
  return {"conflict", owner}
end

local prev_subject = redis.call("GET", forward)
local prev_stamp = redis.call("GET", stamp)
if prev_subject and prev_subject ~= subject then
  redis.call("DEL", "keycloak:" .. prev_subject .. ":discord")
end

redis.call("SET", forward, subject)
redis.call("SET", reverse, member)
redis.call("SET", stamp, verified_at)

if prev_subject then
  return {"replaced", prev_subject, prev_stamp or ""}
end
return {"created"}
`)

type IdentityMappingRedis struct {
	rdb *redis.Client
}

func NewIdentityMappingRedis(rdb *redis.Client) *IdentityMappingRedis {
	return &IdentityMappingRedis{rdb: rdb}
}

func forwardKey(memberID string) string {
	return fmt.Sprintf("discord:%s:keycloak", memberID)
}

func reverseKey(subjectID string) string {
	return fmt.Sprintf("keycloak:%s:discord", subjectID)
}

func verifiedAtKey(memberID string) string {
	return fmt.Sprintf("discord:%s:verified_at", memberID)
}

func (r *IdentityMappingRedis) Upsert(ctx context.Context, memberID, subjectID string, verifiedAt time.Time) (*models.IdentityMapping, error) {
	keys := []string{forwardKey(memberID), reverseKey(subjectID), verifiedAtKey(memberID)}
	raw, err := upsertScript.Run(ctx, r.rdb, keys,
		memberID, subjectID, strconv.FormatInt(verifiedAt.Unix(), 10)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to upsert identity mapping: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) == 0 {
		return nil, fmt.Errorf("unexpected upsert script result: %v", raw)
	}

	switch asString(values[0]) {
	case "conflict":
		return nil, ErrIdentityConflict
	case "created":
		return nil, nil
	case "replaced":
		if len(values) < 3 {
			return nil, fmt.Errorf("unexpected upsert replace payload: %v", raw)
		}
		prev := &models.IdentityMapping{
			MemberID:  memberID,
			SubjectID: asString(values[1]),
		}
		if ts, err := strconv.ParseInt(asString(values[2]), 10, 64); err == nil {
			prev.VerifiedAt = time.Unix(ts, 0).UTC()
		}
		return prev, nil
	default:
		return nil, fmt.Errorf("unknown upsert script status %q", asString(values[0]))
	}
}

func (r *IdentityMappingRedis) GetByMember(ctx context.Context, memberID string) (*models.IdentityMapping, error) {
	subjectID, err := r.rdb.Get(ctx, forwardKey(memberID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping by member: %w", err)
	}
	return r.withVerifiedAt(ctx, &models.IdentityMapping{MemberID: memberID, SubjectID: subjectID})
}

func (r *IdentityMappingRedis) GetBySubject(ctx context.Context, subjectID string) (*models.IdentityMapping, error) {
	memberID, err := r.rdb.Get(ctx, reverseKey(subjectID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping by subject: %w", err)
	}
	return r.withVerifiedAt(ctx, &models.IdentityMapping{MemberID: memberID, SubjectID: subjectID})
}

func (r *IdentityMappingRedis) withVerifiedAt(ctx context.Context, m *models.IdentityMapping) (*models.IdentityMapping, error) {
	raw, err := r.rdb.Get(ctx, verifiedAtKey(m.MemberID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get verification timestamp: %w", err)
	}
	if ts, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
		m.VerifiedAt = time.Unix(ts, 0).UTC()
	}
	return m, nil
}

func (r *IdentityMappingRedis) Remove(ctx context.Context, memberID string) error {
	subjectID, err := r.rdb.Get(ctx, forwardKey(memberID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up mapping for removal: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, forwardKey(memberID))
	pipe.Del(ctx, reverseKey(subjectID))
	pipe.Del(ctx, verifiedAtKey(memberID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove identity mapping: %w", err)
	}
	return nil
}

func asString(v interface{}) string {
	switch typed := v.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprint(v)
	}
}
