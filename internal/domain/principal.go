// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxNicknameLen = 36
	MaxDeptNameLen = 36
)

var (
	ErrNicknameTooLong = errors.New("nickname too long")
	ErrNicknameEmpty   = errors.New("nickname empty")
	ErrDeptNameEmpty   = errors.New("department name empty")
	ErrDeptNameTooLong = errors.New("department name too long")
)

type (
	// UserID is the server-assigned identity, stable for the life of a
	// principal and never reused.
	UserID string
	// ClientID is the client-chosen handle persisted by the browser
	// across reconnects.
	ClientID string
)

type Role int

const (
	RoleMember Role = iota
	RoleOwner
)

// Principal is one real or anonymous user, independent of any single
// connection.
type Principal struct {
	UserID      UserID         `json:"userId"`
	ClientID    ClientID       `json:"-"`
	Nickname    string         `json:"nickname,omitempty"`
	Department  DepartmentName `json:"department,omitempty"`
	Role        Role           `json:"-"`
	IsAnonymous bool           `json:"isAnonymous"`
	// Passkey is a low-entropy recovery token, not a credential. Only
	// set for non-anonymous principals.
	Passkey string `json:"-"`
}

func NewUserID() UserID {
	return UserID("user_" + uuid.NewString())
}

// NewPasskey mints the recovery token handed to the user on a
// first-time claim. It is never retrievable afterwards.
func NewPasskey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// NewAnonymousPrincipal avoids ad-hoc struct literals in the stores.
func NewAnonymousPrincipal(clientID ClientID) *Principal {
	return &Principal{
		UserID:      NewUserID(),
		ClientID:    clientID,
		Department:  DefaultDepartment,
		IsAnonymous: true,
	}
}

func ValidateNickname(nickname string) error {
	if len(nickname) == 0 {
		return ErrNicknameEmpty
	}
	if len(nickname) > MaxNicknameLen {
		return ErrNicknameTooLong
	}
	return nil
}

// SameNickname compares nicknames the way uniqueness is enforced:
// case-insensitively.
func SameNickname(a, b string) bool {
	return strings.EqualFold(a, b)
}
