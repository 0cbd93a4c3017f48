package users

import (
	"regexp"
	"time"
)

var phoneRegex = regexp.MustCompile(`^1[3-9]\d{9}$`)

// PhoneValid reports whether the given string is a valid mainland mobile number.
func PhoneValid(phone string) bool {
	return phoneRegex.MatchString(phone)
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
	WechatOpenID string    `json:"wechat_openid,omitempty"`
	PasswordHash string    `json:"-"`
	Gender       string    `json:"gender,omitempty"`
	Birthday     string    `json:"birthday,omitempty"`
	Avatar       string    `json:"avatar,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
