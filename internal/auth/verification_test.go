package auth

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain will run goleak after all tests have been run in the package
// to detect any goroutine leaks
func TestMain(m *testing.M) {
	m.Run()
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

func TestVerificationService_GenerateCode(t *testing.T) {
	db, mock := redismock.NewClientMock()
	vs := NewVerificationService(db)

	mock.Regexp().ExpectSet(
		verificationCodeKey("13800138000"),
		`^\d{6}$`,
		5*time.Minute,
	).SetVal("OK")

	code, err := vs.GenerateCode(context.Background(), "13800138000")
	require.NoError(t, err)
	assert.Len(t, code, 6)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerificationService_CheckCode(t *testing.T) {
	db, mock := redismock.NewClientMock()
	vs := NewVerificationService(db)

	key := verificationCodeKey("13800138000")
	mock.ExpectGet(key).SetVal("123456")
	mock.ExpectDel(key).SetVal(1)

	err := vs.CheckCode(context.Background(), "13800138000", "123456")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerificationService_CheckCode_Mismatch(t *testing.T) {
	db, mock := redismock.NewClientMock()
	vs := NewVerificationService(db)

	mock.ExpectGet(verificationCodeKey("13800138000")).SetVal("123456")

	err := vs.CheckCode(context.Background(), "13800138000", "654321")
	assert.ErrorIs(t, err, ErrCodeMismatch)
}

func TestVerificationService_CheckCode_Absent(t *testing.T) {
	db, mock := redismock.NewClientMock()
	vs := NewVerificationService(db)

	mock.ExpectGet(verificationCodeKey("13800138000")).RedisNil()

	err := vs.CheckCode(context.Background(), "13800138000", "123456")
	assert.ErrorIs(t, err, ErrCodeMismatch)
}
