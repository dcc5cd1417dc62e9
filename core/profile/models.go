package profile

import (
	"github.com/pkg/errors"

	"github.com/aurraa/classroom/core"
)

// Role tags a profile with the portal it belongs to.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

var (
	Roles = []Role{RoleStudent, RoleTeacher}

	// errors
	ErrNotFound    = errors.New("profile not found")
	ErrUnknownRole = errors.New("unknown role")
)

// ParseRole returns the Role named by s ("student" | "teacher").
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownRole, "%q", s)
}

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

func (r Role) String() string { return string(r) }

// Profile is the locally cached record identifying a signed-in user of one portal.
// JSON keys match the records written by the dashboard pages.
type Profile struct {
	Identifier  string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	Institution string `json:"institution,omitempty"`
	DisplayName string `json:"name,omitempty"`
	TeacherName string `json:"teacherName,omitempty"`
	Role        Role   `json:"role,omitempty"`
	RemoteID    string `json:"uid,omitempty"`
	IsGuest     bool   `json:"isGuest,omitempty"`

	// Password is only kept when no identity service is configured.
	// It is stored and compared in plaintext.
	Password string `json:"password,omitempty"`
}

// Matches reports whether id is the profile's identifier or email, ignoring case.
func (p Profile) Matches(id string) bool {
	if id == "" {
		return false
	}
	return (p.Identifier != "" && core.SameFold(p.Identifier, id)) ||
		(p.Email != "" && core.SameFold(p.Email, id))
}

// Public returns a copy of the profile that is safe to hand out.
func (p Profile) Public() Profile {
	p.Password = ""
	return p
}

// Remembered holds the login fields kept for the next visit when "remember me" is checked.
type Remembered struct {
	Identifier  string `json:"username"`
	Institution string `json:"institution"`
}
