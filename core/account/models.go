package account

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aurraa/classroom/core"
)

// Account is an identity kept by the self-hosted directory, with the user record stored alongside it.
type Account struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Institution  string    `json:"institution"`
	TeacherName  string    `json:"teacherName"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"isActive"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"` // UTC
	UpdatedAt    time.Time `json:"updatedAt"` // UTC
	LastLogin    time.Time `json:"lastLogin"` // UTC
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

// NewAccount contains information needed to create a new Account.
type NewAccount struct {
	Name            string `json:"name"`
	Username        string `json:"username" validate:"omitempty,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	Institution     string `json:"institution"`
	TeacherName     string `json:"teacherName"`
	Role            string `json:"role" validate:"omitempty,oneof=student teacher"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"omitempty,eqfield=Password"`
}

func (na *NewAccount) Clean() {
	na.Name = core.CleanString(na.Name)
	na.Username = core.CleanString(na.Username, true /* lower */)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Institution = core.CleanString(na.Institution)
	na.TeacherName = core.CleanString(na.TeacherName)
	na.Role = core.CleanString(na.Role, true /* lower */)
}

type ResetPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm,omitempty" validate:"required,eqfield=Password"`
}

// GetFilter selects a single Account; the first non-empty field wins.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}
