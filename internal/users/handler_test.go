package users

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitrack-app/fitrack-backend/internal/auth"
	"github.com/fitrack-app/fitrack-backend/internal/telemetry/metrics"
	"github.com/fitrack-app/fitrack-backend/pkg"
)

type repoFake struct {
	users map[string]*User
}

func newRepoFake() *repoFake {
	return &repoFake{
		users: map[string]*User{},
	}
}

func (r *repoFake) Add(_ context.Context, user User) (*User, error) {
	r.users[user.ID] = &user
	return &user, nil
}

func (r *repoFake) Get(_ context.Context, id string) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (r *repoFake) GetByPhone(_ context.Context, phone string) (*User, error) {
	return r.findBy(func(u *User) bool { return u.Phone == phone })
}

func (r *repoFake) GetByEmail(_ context.Context, email string) (*User, error) {
	return r.findBy(func(u *User) bool { return u.Email == email })
}

func (r *repoFake) GetByWechatOpenID(_ context.Context, openID string) (*User, error) {
	return r.findBy(func(u *User) bool { return u.WechatOpenID == openID })
}

func (r *repoFake) findBy(match func(*User) bool) (*User, error) {
	for _, u := range r.users {
		if match(u) {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *repoFake) Update(_ context.Context, user *User) error {
	if _, ok := r.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	r.users[user.ID] = user
	return nil
}

type verificationFake struct {
	lastTarget string
	consumed   []string
}

func (v *verificationFake) GenerateCode(_ context.Context, target string) (string, error) {
	v.lastTarget = target
	return "123456", nil
}

func (v *verificationFake) CheckCode(_ context.Context, target, code string) error {
	if code != "123456" {
		return auth.ErrCodeMismatch
	}
	v.consumed = append(v.consumed, target)
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *repoFake) {
	t.Helper()
	repo := newRepoFake()
	tokens := auth.NewTokenService("test-secret", time.Hour)
	return NewHandler(repo, tokens, &verificationFake{}, metrics.NewTestManager()), repo
}

func addTestUser(repo *repoFake, phone, email, openID, password string) *User {
	hash, _ := pkg.HashPassword(password)
	now := time.Now()
	u := &User{
		ID:           uuid.NewString(),
		Username:     gofakeit.Username(),
		Phone:        phone,
		Email:        email,
		WechatOpenID: openID,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	repo.users[u.ID] = u
	return u
}

func jsonReq(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleRegister(t *testing.T) {
	handler, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.HandleRegister(rr, jsonReq(t, "POST", "/api/auth/register", RegisterRequest{
		Username: "runner",
		Password: "s3cret1",
		Phone:    "13800138000",
	}))

	require.Equal(t, http.StatusCreated, rr.Code)

	var created User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "runner", created.Username)
	assert.Equal(t, "13800138000", created.Phone)
	assert.True(t, created.IsActive)
	assert.NotContains(t, rr.Body.String(), "password")
}

func TestHandleRegister_Validation(t *testing.T) {
	handler, repo := newTestHandler(t)
	addTestUser(repo, "13800138000", "", "", "s3cret1")

	testCases := []struct {
		name string
		req  RegisterRequest
	}{
		{name: "no phone or email", req: RegisterRequest{Username: "u", Password: "s3cret1"}},
		{name: "bad phone", req: RegisterRequest{Username: "u", Password: "s3cret1", Phone: "12345"}},
		{name: "short password", req: RegisterRequest{Username: "u", Password: "abc", Phone: "13911112222"}},
		{name: "phone taken", req: RegisterRequest{Username: "u", Password: "s3cret1", Phone: "13800138000"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.HandleRegister(rr, jsonReq(t, "POST", "/api/auth/register", tc.req))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), "error")
		})
	}
}

func TestHandleLogin(t *testing.T) {
	handler, repo := newTestHandler(t)
	addTestUser(repo, "13800138000", "runner@example.com", "openid-abc", "s3cret1")

	for _, req := range []LoginRequest{
		{Phone: "13800138000", Password: "s3cret1"},
		{Email: "runner@example.com", Password: "s3cret1"},
		{WechatOpenID: "openid-abc"},
	} {
		rr := httptest.NewRecorder()
		handler.HandleLogin(rr, jsonReq(t, "POST", "/api/auth/login", req))
		require.Equal(t, http.StatusOK, rr.Code, "login via %+v", req)

		var resp LoginResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.AccessToken)
		assert.Equal(t, "bearer", resp.TokenType)
		assert.Equal(t, 3600, resp.ExpiresIn)
	}
}

func TestHandleLogin_PhoneTakesPrecedence(t *testing.T) {
	handler, repo := newTestHandler(t)
	phoneUser := addTestUser(repo, "13800138000", "", "", "phone-pass1")
	addTestUser(repo, "", "runner@example.com", "", "email-pass1")

	// phone credentials win even when an email is also given
	rr := httptest.NewRecorder()
	handler.HandleLogin(rr, jsonReq(t, "POST", "/api/auth/login", LoginRequest{
		Phone:    phoneUser.Phone,
		Email:    "runner@example.com",
		Password: "phone-pass1",
	}))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleLogin_Failures(t *testing.T) {
	handler, repo := newTestHandler(t)
	addTestUser(repo, "13800138000", "", "openid-abc", "s3cret1")
	deactivated := addTestUser(repo, "13911112222", "", "", "s3cret1")
	deactivated.IsActive = false

	testCases := []struct {
		name     string
		req      LoginRequest
		wantCode int
	}{
		{name: "no identity", req: LoginRequest{Password: "s3cret1"}, wantCode: http.StatusBadRequest},
		{name: "unknown phone", req: LoginRequest{Phone: "13900000000", Password: "s3cret1"}, wantCode: http.StatusUnauthorized},
		{name: "wrong password", req: LoginRequest{Phone: "13800138000", Password: "wrong-pass"}, wantCode: http.StatusUnauthorized},
		{name: "unknown openid", req: LoginRequest{WechatOpenID: "openid-xyz"}, wantCode: http.StatusUnauthorized},
		{name: "deactivated", req: LoginRequest{Phone: "13911112222", Password: "s3cret1"}, wantCode: http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.HandleLogin(rr, jsonReq(t, "POST", "/api/auth/login", tc.req))
			assert.Equal(t, tc.wantCode, rr.Code)
		})
	}
}

func TestHandleGetMe(t *testing.T) {
	handler, repo := newTestHandler(t)
	user := addTestUser(repo, "13800138000", "", "", "s3cret1")

	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	req = req.WithContext(auth.SetUserID(req.Context(), user.ID))

	rr := httptest.NewRecorder()
	handler.HandleGetMe(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var got User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, user.ID, got.ID)
}

func TestHandleGetMe_NoUser(t *testing.T) {
	handler, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.HandleGetMe(rr, httptest.NewRequest("GET", "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleUpdateMe(t *testing.T) {
	handler, repo := newTestHandler(t)
	user := addTestUser(repo, "13800138000", "", "", "s3cret1")
	other := addTestUser(repo, "13911112222", "", "", "s3cret1")

	newUsername := "sprinter"
	req := jsonReq(t, "PUT", "/api/auth/me", UpdateMeRequest{Username: &newUsername})
	req = req.WithContext(auth.SetUserID(req.Context(), user.ID))

	rr := httptest.NewRecorder()
	handler.HandleUpdateMe(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "sprinter", repo.users[user.ID].Username)

	// taking another user's phone is a conflict
	req = jsonReq(t, "PUT", "/api/auth/me", UpdateMeRequest{Phone: &other.Phone})
	req = req.WithContext(auth.SetUserID(req.Context(), user.ID))

	rr = httptest.NewRecorder()
	handler.HandleUpdateMe(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleBind(t *testing.T) {
	handler, repo := newTestHandler(t)
	user := addTestUser(repo, "13800138000", "", "", "s3cret1")
	addTestUser(repo, "", "", "openid-taken", "s3cret1")

	req := jsonReq(t, "POST", "/api/auth/bind", BindRequest{WechatOpenID: "openid-new"})
	req = req.WithContext(auth.SetUserID(req.Context(), user.ID))

	rr := httptest.NewRecorder()
	handler.HandleBind(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "openid-new", repo.users[user.ID].WechatOpenID)

	req = jsonReq(t, "POST", "/api/auth/bind", BindRequest{WechatOpenID: "openid-taken"})
	req = req.WithContext(auth.SetUserID(req.Context(), user.ID))

	rr = httptest.NewRecorder()
	handler.HandleBind(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = jsonReq(t, "POST", "/api/auth/bind", BindRequest{})
	req = req.WithContext(auth.SetUserID(req.Context(), user.ID))

	rr = httptest.NewRecorder()
	handler.HandleBind(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleBind_VerificationCode(t *testing.T) {
	repo := newRepoFake()
	verification := &verificationFake{}
	tokens := auth.NewTokenService("test-secret", time.Hour)
	handler := NewHandler(repo, tokens, verification, metrics.NewTestManager())
	user := addTestUser(repo, "", "runner@example.com", "", "s3cret1")

	req := jsonReq(t, "POST", "/api/auth/bind", BindRequest{
		Phone:            "13800138000",
		VerificationCode: "123456",
	})
	req = req.WithContext(auth.SetUserID(req.Context(), user.ID))

	rr := httptest.NewRecorder()
	handler.HandleBind(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "13800138000", repo.users[user.ID].Phone)
	// the code was consumed for the phone being bound
	assert.Equal(t, []string{"13800138000"}, verification.consumed)

	// wrong code rejects the bind without touching the user
	req = jsonReq(t, "POST", "/api/auth/bind", BindRequest{
		Phone:            "13911112222",
		VerificationCode: "000000",
	})
	req = req.WithContext(auth.SetUserID(req.Context(), user.ID))

	rr = httptest.NewRecorder()
	handler.HandleBind(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid verification code")
	assert.Equal(t, "13800138000", repo.users[user.ID].Phone)

	// a code with nothing to verify it against is a bad request
	req = jsonReq(t, "POST", "/api/auth/bind", BindRequest{
		WechatOpenID:     "openid-new",
		VerificationCode: "123456",
	})
	req = req.WithContext(auth.SetUserID(req.Context(), user.ID))

	rr = httptest.NewRecorder()
	handler.HandleBind(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleSendVerificationCode(t *testing.T) {
	handler, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.HandleSendVerificationCode(rr, jsonReq(t, "POST", "/api/auth/send-verification-code", SendCodeRequest{
		Phone: "13800138000",
	}))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp SendCodeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "123456", resp.Code)

	rr = httptest.NewRecorder()
	handler.HandleSendVerificationCode(rr, jsonReq(t, "POST", "/api/auth/send-verification-code", SendCodeRequest{
		Email: "runner@example.com",
	}))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.HandleSendVerificationCode(rr, jsonReq(t, "POST", "/api/auth/send-verification-code", SendCodeRequest{
		Phone: "12345",
	}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	handler.HandleSendVerificationCode(rr, jsonReq(t, "POST", "/api/auth/send-verification-code", SendCodeRequest{}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPhoneValid(t *testing.T) {
	valid := []string{"13800138000", "15912345678", "19900001111"}
	invalid := []string{"", "12800138000", "1380013800", "138001380001", "abc", "+8613800138000"}

	for _, p := range valid {
		assert.True(t, PhoneValid(p), fmt.Sprintf("expected valid: %s", p))
	}
	for _, p := range invalid {
		assert.False(t, PhoneValid(p), fmt.Sprintf("expected invalid: %s", p))
	}
}
