// Package stores holds the redis-backed single-use record stores for
// one-time codes and reset capabilities. Both rely on optimistic WATCH
// transactions so that exactly one concurrent consumer can win.
package stores

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpRecordVersionV1 = 1
	consumeMaxRetries  = 4
)

var (
	ErrOTPNotFound         = errors.New("otp record not found")
	ErrOTPExpired          = errors.New("otp record expired")
	ErrOTPMismatch         = errors.New("otp code mismatch")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
)

// OTPRecord is one outstanding code. Provider-verified channels store a
// marker record with no local hash; the provider owns the secret.
type OTPRecord struct {
	CodeHash [32]byte
	Provider bool
	Attempts uint16
	ExpiresAt int64
}

// OTPStore keys records by identity+channel+purpose, so there is exactly
// one outstanding code per identity per channel per purpose and a lookup
// can never cross identities.
type OTPStore struct {
	redis  *redis.Client
	prefix string
}

func NewOTPStore(client *redis.Client, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "ac"
	}
	return &OTPStore{redis: client, prefix: prefix}
}

func (s *OTPStore) key(purpose, channel, identity string) string {
	idHash := sha256.Sum256([]byte(identity))
	return fmt.Sprintf("%s:otp:%s:%s:%x", s.prefix, purpose, channel, idHash[:16])
}

// Save persists the record, replacing any previous outstanding code for
// the same identity+channel+purpose.
func (s *OTPStore) Save(ctx context.Context, purpose, channel, identity string, rec *OTPRecord, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(purpose, channel, identity), encodeOTPRecord(rec), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// Consume verifies providedHash against the stored record and deletes it
// on success. Wrong codes burn an attempt; once maxAttempts is reached the
// record is destroyed. Only one concurrent caller can consume.
func (s *OTPStore) Consume(ctx context.Context, purpose, channel, identity string, providedHash [32]byte, maxAttempts int, now time.Time) error {
	key := s.key(purpose, channel, identity)

	for i := 0; i < consumeMaxRetries; i++ {
		var verdict error

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			rec, err := decodeOTPRecord(data)
			if err != nil {
				return err
			}

			if now.Unix() >= rec.ExpiresAt {
				verdict = ErrOTPExpired
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			if rec.Provider {
				// Provider markers carry no local hash to compare.
				verdict = ErrOTPMismatch
				return nil
			}

			if subtle.ConstantTimeCompare(rec.CodeHash[:], providedHash[:]) != 1 {
				rec.Attempts++
				if maxAttempts > 0 && int(rec.Attempts) >= maxAttempts {
					verdict = ErrOTPAttemptsExceeded
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					return err
				}

				verdict = ErrOTPMismatch
				remaining := time.Duration(rec.ExpiresAt-now.Unix()) * time.Second
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, encodeOTPRecord(rec), remaining)
					return nil
				})
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return verdict
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return ErrOTPNotFound
		default:
			return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
		}
	}

	return fmt.Errorf("%w: consume contention", ErrOTPRedisUnavailable)
}

// ConsumeMarker removes the provider marker for a provider-verified
// channel after the provider approved the code. Exactly one caller wins.
func (s *OTPStore) ConsumeMarker(ctx context.Context, purpose, channel, identity string, now time.Time) error {
	key := s.key(purpose, channel, identity)

	for i := 0; i < consumeMaxRetries; i++ {
		var verdict error

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			rec, err := decodeOTPRecord(data)
			if err != nil {
				return err
			}

			if now.Unix() >= rec.ExpiresAt {
				verdict = ErrOTPExpired
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return verdict
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return ErrOTPNotFound
		default:
			return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
		}
	}

	return fmt.Errorf("%w: consume contention", ErrOTPRedisUnavailable)
}

func encodeOTPRecord(rec *OTPRecord) []byte {
	buf := make([]byte, 1+32+8+2+1)
	buf[0] = otpRecordVersionV1
	copy(buf[1:33], rec.CodeHash[:])
	binary.BigEndian.PutUint64(buf[33:41], uint64(rec.ExpiresAt))
	binary.BigEndian.PutUint16(buf[41:43], rec.Attempts)
	if rec.Provider {
		buf[43] = 1
	}
	return buf
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	if len(data) != 44 || data[0] != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record encoding")
	}

	rec := &OTPRecord{}
	copy(rec.CodeHash[:], data[1:33])
	rec.ExpiresAt = int64(binary.BigEndian.Uint64(data[33:41]))
	rec.Attempts = binary.BigEndian.Uint16(data[41:43])
	rec.Provider = data[43] == 1
	return rec, nil
}
