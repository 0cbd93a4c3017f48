package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/fitrack-app/fitrack-backend/internal/auth"
	"github.com/fitrack-app/fitrack-backend/internal/telemetry/metrics"
	"github.com/fitrack-app/fitrack-backend/internal/telemetry/tracing"
	"github.com/fitrack-app/fitrack-backend/pkg"
)

type usersRepo interface {
	Add(ctx context.Context, user User) (*User, error)
	Get(ctx context.Context, id string) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByWechatOpenID(ctx context.Context, openID string) (*User, error)
	Update(ctx context.Context, user *User) error
}

type tokenService interface {
	CreateToken(userID string) (string, error)
	TTL() time.Duration
}

type verificationService interface {
	GenerateCode(ctx context.Context, target string) (string, error)
	CheckCode(ctx context.Context, target, code string) error
}

type RegisterRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	WechatOpenID string `json:"wechat_openid"`
	Gender       string `json:"gender"`
	Birthday     string `json:"birthday"`
	Avatar       string `json:"avatar"`
}

type LoginRequest struct {
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	WechatOpenID string `json:"wechat_openid"`
	Password     string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type UpdateMeRequest struct {
	Username *string `json:"username"`
	Gender   *string `json:"gender"`
	Birthday *string `json:"birthday"`
	Avatar   *string `json:"avatar"`
	Phone    *string `json:"phone"`
	Email    *string `json:"email"`
}

type BindRequest struct {
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	WechatOpenID     string `json:"wechat_openid"`
	VerificationCode string `json:"verification_code"`
}

type SendCodeRequest struct {
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type SendCodeResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type Handler struct {
	repo         usersRepo
	tokens       tokenService
	verification verificationService
	metrics      *metrics.Manager
}

func NewHandler(
	repo usersRepo,
	tokens tokenService,
	verification verificationService,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		repo:         repo,
		tokens:       tokens,
		verification: verification,
		metrics:      metricsManager,
	}
}

func (handler *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.auth.register")
	defer span.End()

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("register, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Phone == "" && req.Email == "" {
		pkg.WriteJSONError(w, "phone or email required", http.StatusBadRequest)
		return
	}
	if req.Phone != "" && !PhoneValid(req.Phone) {
		pkg.WriteJSONError(w, "invalid phone number", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 6 {
		pkg.WriteJSONError(w, "password too short", http.StatusBadRequest)
		return
	}

	if req.Phone != "" {
		if _, err := handler.repo.GetByPhone(ctx, req.Phone); err == nil {
			pkg.WriteJSONError(w, "phone already registered", http.StatusBadRequest)
			return
		} else if !errors.Is(err, ErrUserNotFound) {
			log.Errorf("register, check phone: %s", err)
			pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}
	if req.Email != "" {
		if _, err := handler.repo.GetByEmail(ctx, req.Email); err == nil {
			pkg.WriteJSONError(w, "email already registered", http.StatusBadRequest)
			return
		} else if !errors.Is(err, ErrUserNotFound) {
			log.Errorf("register, check email: %s", err)
			pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}

	passwordHash, err := pkg.HashPassword(req.Password)
	if err != nil {
		log.Errorf("register, hash password: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	user := User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Phone:        req.Phone,
		Email:        req.Email,
		WechatOpenID: req.WechatOpenID,
		PasswordHash: passwordHash,
		Gender:       req.Gender,
		Birthday:     req.Birthday,
		Avatar:       req.Avatar,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	added, err := handler.repo.Add(ctx, user)
	if err != nil {
		log.Errorf("register, add user: %s", err)
		pkg.WriteJSONError(w, "failed to register user", http.StatusInternalServerError)
		return
	}

	userJson, err := json.Marshal(added)
	if err != nil {
		log.Errorf("register, marshal user: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Debugf("new user registered: %s", added.ID)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, userJson, http.StatusCreated)
}

func (handler *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.auth.login")
	defer span.End()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("login, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var (
		user      *User
		err       error
		viaOpenID bool
	)
	switch {
	case req.Phone != "":
		user, err = handler.repo.GetByPhone(ctx, req.Phone)
	case req.Email != "":
		user, err = handler.repo.GetByEmail(ctx, req.Email)
	case req.WechatOpenID != "":
		user, err = handler.repo.GetByWechatOpenID(ctx, req.WechatOpenID)
		viaOpenID = true
	default:
		pkg.WriteJSONError(w, "phone, email or wechat openid required", http.StatusBadRequest)
		return
	}

	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			handler.metrics.CounterFailedLogins.Inc()
			pkg.WriteJSONError(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		log.Errorf("login, get user: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if !viaOpenID && !pkg.CheckPasswordHash(req.Password, user.PasswordHash) {
		handler.metrics.CounterFailedLogins.Inc()
		pkg.WriteJSONError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	if !user.IsActive {
		handler.metrics.CounterFailedLogins.Inc()
		pkg.WriteJSONError(w, "user deactivated", http.StatusForbidden)
		return
	}

	token, err := handler.tokens.CreateToken(user.ID)
	if err != nil {
		log.Errorf("login, create token for %s: %s", user.ID, err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterLogins.Inc()
	log.Debugf("user %s logged in", user.ID)

	respJson, err := json.Marshal(LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(handler.tokens.TTL().Seconds()),
	})
	if err != nil {
		log.Errorf("login, marshal response: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

// currentUser loads the user behind the request token and enforces the
// active flag. Writes the error response itself when it returns nil.
func (handler *Handler) currentUser(ctx context.Context, w http.ResponseWriter) *User {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return nil
	}

	user, err := handler.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
			return nil
		}
		log.Errorf("get current user %s: %s", userID, err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return nil
	}

	if !user.IsActive {
		pkg.WriteJSONError(w, "user deactivated", http.StatusForbidden)
		return nil
	}

	return user
}

func (handler *Handler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.auth.me")
	defer span.End()

	user := handler.currentUser(ctx, w)
	if user == nil {
		return
	}

	userJson, err := json.Marshal(user)
	if err != nil {
		log.Errorf("get me, marshal user: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, userJson, http.StatusOK)
}

func (handler *Handler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.auth.update-me")
	defer span.End()

	user := handler.currentUser(ctx, w)
	if user == nil {
		return
	}

	var req UpdateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("update me, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Phone != nil && *req.Phone != user.Phone {
		if !PhoneValid(*req.Phone) {
			pkg.WriteJSONError(w, "invalid phone number", http.StatusBadRequest)
			return
		}
		if taken, err := handler.takenByOther(ctx, user.ID, handler.repo.GetByPhone, *req.Phone); err != nil {
			log.Errorf("update me, check phone: %s", err)
			pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
			return
		} else if taken {
			pkg.WriteJSONError(w, "phone already registered", http.StatusBadRequest)
			return
		}
		user.Phone = *req.Phone
	}
	if req.Email != nil && *req.Email != user.Email {
		if taken, err := handler.takenByOther(ctx, user.ID, handler.repo.GetByEmail, *req.Email); err != nil {
			log.Errorf("update me, check email: %s", err)
			pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
			return
		} else if taken {
			pkg.WriteJSONError(w, "email already registered", http.StatusBadRequest)
			return
		}
		user.Email = *req.Email
	}
	if req.Username != nil {
		user.Username = *req.Username
	}
	if req.Gender != nil {
		user.Gender = *req.Gender
	}
	if req.Birthday != nil {
		user.Birthday = *req.Birthday
	}
	if req.Avatar != nil {
		user.Avatar = *req.Avatar
	}
	user.UpdatedAt = time.Now()

	if err := handler.repo.Update(ctx, user); err != nil {
		log.Errorf("update me, update user %s: %s", user.ID, err)
		pkg.WriteJSONError(w, "failed to update user", http.StatusInternalServerError)
		return
	}

	userJson, err := json.Marshal(user)
	if err != nil {
		log.Errorf("update me, marshal user: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, userJson, http.StatusOK)
}

func (handler *Handler) HandleBind(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.auth.bind")
	defer span.End()

	user := handler.currentUser(ctx, w)
	if user == nil {
		return
	}

	var req BindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("bind, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Phone == "" && req.Email == "" && req.WechatOpenID == "" {
		pkg.WriteJSONError(w, "nothing to bind", http.StatusBadRequest)
		return
	}

	// the code is optional; when sent, it must match the one issued for the
	// phone or email being bound
	if req.VerificationCode != "" {
		target := req.Phone
		if target == "" {
			target = req.Email
		}
		if target == "" {
			pkg.WriteJSONError(w, "verification code requires a phone or email", http.StatusBadRequest)
			return
		}
		if err := handler.verification.CheckCode(ctx, target, req.VerificationCode); err != nil {
			if errors.Is(err, auth.ErrCodeMismatch) {
				pkg.WriteJSONError(w, "invalid verification code", http.StatusBadRequest)
				return
			}
			log.Errorf("bind, check verification code: %s", err)
			pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}

	if req.Phone != "" {
		if !PhoneValid(req.Phone) {
			pkg.WriteJSONError(w, "invalid phone number", http.StatusBadRequest)
			return
		}
		if taken, err := handler.takenByOther(ctx, user.ID, handler.repo.GetByPhone, req.Phone); err != nil {
			log.Errorf("bind, check phone: %s", err)
			pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
			return
		} else if taken {
			pkg.WriteJSONError(w, "phone already bound to another user", http.StatusBadRequest)
			return
		}
		user.Phone = req.Phone
	}
	if req.Email != "" {
		if taken, err := handler.takenByOther(ctx, user.ID, handler.repo.GetByEmail, req.Email); err != nil {
			log.Errorf("bind, check email: %s", err)
			pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
			return
		} else if taken {
			pkg.WriteJSONError(w, "email already bound to another user", http.StatusBadRequest)
			return
		}
		user.Email = req.Email
	}
	if req.WechatOpenID != "" {
		if taken, err := handler.takenByOther(ctx, user.ID, handler.repo.GetByWechatOpenID, req.WechatOpenID); err != nil {
			log.Errorf("bind, check wechat openid: %s", err)
			pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
			return
		} else if taken {
			pkg.WriteJSONError(w, "wechat account already bound to another user", http.StatusBadRequest)
			return
		}
		user.WechatOpenID = req.WechatOpenID
	}

	user.UpdatedAt = time.Now()
	if err := handler.repo.Update(ctx, user); err != nil {
		log.Errorf("bind, update user %s: %s", user.ID, err)
		pkg.WriteJSONError(w, "failed to bind account", http.StatusInternalServerError)
		return
	}

	userJson, err := json.Marshal(user)
	if err != nil {
		log.Errorf("bind, marshal user: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Debugf("user %s bound new channel", user.ID)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, userJson, http.StatusOK)
}

func (handler *Handler) HandleSendVerificationCode(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.auth.send-verification-code")
	defer span.End()

	var req SendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("send verification code, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var target string
	switch {
	case req.Phone != "":
		if !PhoneValid(req.Phone) {
			pkg.WriteJSONError(w, "invalid phone number", http.StatusBadRequest)
			return
		}
		target = req.Phone
	case req.Email != "":
		target = req.Email
	default:
		pkg.WriteJSONError(w, "phone or email required", http.StatusBadRequest)
		return
	}

	code, err := handler.verification.GenerateCode(ctx, target)
	if err != nil {
		log.Errorf("send verification code for %s: %s", target, err)
		pkg.WriteJSONError(w, "failed to send verification code", http.StatusInternalServerError)
		return
	}

	// TODO: hook up an SMS / email provider; until then the code is echoed back
	respJson, err := json.Marshal(SendCodeResponse{
		Message: "verification code sent",
		Code:    code,
	})
	if err != nil {
		log.Errorf("send verification code, marshal response: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

// takenByOther reports whether the given identity value belongs to a user
// other than userID.
func (handler *Handler) takenByOther(
	ctx context.Context,
	userID string,
	getBy func(context.Context, string) (*User, error),
	value string,
) (bool, error) {
	existing, err := getBy(ctx, value)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return existing.ID != userID, nil
}
