package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"heimdall/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// VerificationTTL is how long a member has to finish the OAuth flow.
const VerificationTTL = 10 * time.Minute

type PendingVerificationRedis struct {
	rdb *redis.Client
	ttl time.Duration

	// now is swappable in tests.
	now func() time.Time
}

func NewPendingVerificationRedis(rdb *redis.Client, ttl time.Duration) *PendingVerificationRedis {
	return &PendingVerificationRedis{rdb: rdb, ttl: ttl, now: time.Now}
}

func pendingKey(token string) string {
	return fmt.Sprintf("verify:%s", token)
}

func (r *PendingVerificationRedis) Create(ctx context.Context, guildID, memberID, username string) (*models.PendingVerification, error) {
	now := r.now()
	pending := &models.PendingVerification{
		Token:      uuid.NewString(),
		GuildID:    guildID,
		MemberID:   memberID,
		Username:   username,
		OAuthState: uuid.NewString(),
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(r.ttl).Unix(),
	}

	data, err := json.Marshal(pending)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pending verification: %w", err)
	}

	// NX guards against the astronomically unlikely token collision; a
	// collision surfaces as an error instead of overwriting a live session.
	ok, err := r.rdb.SetNX(ctx, pendingKey(pending.Token), data, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to store pending verification: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("verification token collision")
	}

	return pending, nil
}

func (r *PendingVerificationRedis) Get(ctx context.Context, token string) (*models.PendingVerification, error) {
	data, err := r.rdb.Get(ctx, pendingKey(token)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending verification: %w", err)
	}
	return r.decode(token, data)
}

func (r *PendingVerificationRedis) Consume(ctx context.Context, token string) (*models.PendingVerification, error) {
	// GETDEL makes consumption at-most-once: two concurrent callbacks for
	// the same token cannot both observe the record.
	data, err := r.rdb.GetDel(ctx, pendingKey(token)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume pending verification: %w", err)
	}
	return r.decode(token, data)
}

func (r *PendingVerificationRedis) decode(token string, data []byte) (*models.PendingVerification, error) {
	var pending models.PendingVerification
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("failed to decode pending verification: %w", err)
	}
	pending.Token = token

	// Redis evicts the key on TTL; the deadline check covers clock skew and
	// stores that expire lazily.
	if pending.Expired(r.now()) {
		return nil, nil
	}

	return &pending, nil
}
