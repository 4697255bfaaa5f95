package stores

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const capabilityRecordVersionV1 = 1

var (
	ErrCapabilityNotFound         = errors.New("capability record not found")
	ErrCapabilityExpired          = errors.New("capability record expired")
	ErrCapabilityMismatch         = errors.New("capability secret mismatch")
	ErrCapabilityRedisUnavailable = errors.New("capability redis unavailable")
)

// CapabilityRecord is a single-use password-reset authorization. UserID
// may be empty when the identity never resolved to a principal; the
// capability is then syntactically valid but can never be redeemed.
type CapabilityRecord struct {
	UserID     string
	SecretHash [32]byte
	ExpiresAt  int64
}

// CapabilityStore persists capability records keyed by capability id.
type CapabilityStore struct {
	redis  *redis.Client
	prefix string
}

func NewCapabilityStore(client *redis.Client, prefix string) *CapabilityStore {
	if prefix == "" {
		prefix = "ac"
	}
	return &CapabilityStore{redis: client, prefix: prefix}
}

func (s *CapabilityStore) key(capabilityID string) string {
	return s.prefix + ":cap:" + capabilityID
}

func (s *CapabilityStore) Save(ctx context.Context, capabilityID string, rec *CapabilityRecord, ttl time.Duration) error {
	encoded, err := encodeCapabilityRecord(rec)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(capabilityID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCapabilityRedisUnavailable, err)
	}
	return nil
}

// Consume compares providedHash in constant time and deletes the record
// on a match. A mismatch does not consume: the secret space is large
// enough that burning the record would only help an attacker deny the
// legitimate holder.
func (s *CapabilityStore) Consume(ctx context.Context, capabilityID string, providedHash [32]byte, now time.Time) (*CapabilityRecord, error) {
	key := s.key(capabilityID)

	for i := 0; i < consumeMaxRetries; i++ {
		var matched *CapabilityRecord
		var verdict error

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			rec, err := decodeCapabilityRecord(data)
			if err != nil {
				return err
			}

			if now.Unix() >= rec.ExpiresAt {
				verdict = ErrCapabilityExpired
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			if subtle.ConstantTimeCompare(rec.SecretHash[:], providedHash[:]) != 1 {
				verdict = ErrCapabilityMismatch
				return nil
			}

			matched = rec
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			if verdict != nil {
				return nil, verdict
			}
			return matched, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return nil, ErrCapabilityNotFound
		default:
			return nil, fmt.Errorf("%w: %v", ErrCapabilityRedisUnavailable, err)
		}
	}

	return nil, fmt.Errorf("%w: consume contention", ErrCapabilityRedisUnavailable)
}

func encodeCapabilityRecord(rec *CapabilityRecord) ([]byte, error) {
	if len(rec.UserID) > 255 {
		return nil, errors.New("capability user id too long")
	}

	buf := make([]byte, 1+32+8+1+len(rec.UserID))
	buf[0] = capabilityRecordVersionV1
	copy(buf[1:33], rec.SecretHash[:])
	binary.BigEndian.PutUint64(buf[33:41], uint64(rec.ExpiresAt))
	buf[41] = byte(len(rec.UserID))
	copy(buf[42:], rec.UserID)
	return buf, nil
}

func decodeCapabilityRecord(data []byte) (*CapabilityRecord, error) {
	if len(data) < 42 || data[0] != capabilityRecordVersionV1 {
		return nil, errors.New("invalid capability record encoding")
	}

	uidLen := int(data[41])
	if len(data) != 42+uidLen {
		return nil, errors.New("invalid capability record encoding")
	}

	rec := &CapabilityRecord{UserID: string(data[42:])}
	copy(rec.SecretHash[:], data[1:33])
	rec.ExpiresAt = int64(binary.BigEndian.Uint64(data[33:41]))
	return rec, nil
}
