package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/go-redis/redis/v8"
)

const verificationCodeTTL = 5 * time.Minute

var ErrCodeMismatch = errors.New("verification code mismatch")

// VerificationService stores short-lived verification codes per delivery
// target (a phone number or an email address). Codes expire on their own via
// redis TTL, no sweeping needed.
type VerificationService struct {
	redisClient *redis.Client
}

func NewVerificationService(redisClient *redis.Client) *VerificationService {
	return &VerificationService{
		redisClient: redisClient,
	}
}

func verificationCodeKey(target string) string {
	return "verification_code::" + target
}

// GenerateCode creates a 6 digit code for the given target and stores it with
// a 5 minute expiry, replacing any previous code.
func (vs *VerificationService) GenerateCode(ctx context.Context, target string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())

	if err := vs.redisClient.Set(ctx, verificationCodeKey(target), code, verificationCodeTTL).Err(); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}

	return code, nil
}

// CheckCode compares the submitted code against the stored one and consumes
// it on success. Expired or absent codes fail with ErrCodeMismatch.
func (vs *VerificationService) CheckCode(ctx context.Context, target, code string) error {
	stored, err := vs.redisClient.Get(ctx, verificationCodeKey(target)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCodeMismatch
		}
		return fmt.Errorf("get code: %w", err)
	}
	if stored != code {
		return ErrCodeMismatch
	}

	if err := vs.redisClient.Del(ctx, verificationCodeKey(target)).Err(); err != nil {
		return fmt.Errorf("delete code: %w", err)
	}

	return nil
}
