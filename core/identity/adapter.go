package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrNoRecord is returned by Adapter.GetUserData when the user has no stored record.
var ErrNoRecord = errors.New("no user record")

type (
	// User is the remote identity of a signed-in user.
	User struct {
		UID           string `json:"uid"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"emailVerified"`
	}

	Credential struct {
		User    User
		IDToken string
	}

	// Record is the user document kept by the identity service next to the identity.
	Record struct {
		ID          string    `json:"id"`
		Email       string    `json:"email"`
		Username    string    `json:"username,omitempty"`
		Name        string    `json:"name,omitempty"`
		Institution string    `json:"institution,omitempty"`
		TeacherName string    `json:"teacherName,omitempty"`
		Role        string    `json:"role,omitempty"`
		CreatedAt   time.Time `json:"createdAt,omitempty"`
		LastLoginAt time.Time `json:"lastLoginAt,omitempty"`
	}

	// AuthChangeFunc receives the signed-in user, or nil once signed out.
	AuthChangeFunc func(usr *User)

	// Adapter is a remote identity + user document service.
	// Errors returned by an Adapter are turned into an *AuthError by MapError.
	Adapter interface {
		SignIn(ctx context.Context, email, secret string) (Credential, error)
		// SignUp creates the identity and stores fields as its user record.
		SignUp(ctx context.Context, email, secret string, fields Record) (Credential, error)
		SignOut(ctx context.Context) error
		GetUserData(ctx context.Context, uid string) (Record, error)
		GetAllUsers(ctx context.Context) ([]Record, error)
		SendPasswordReset(ctx context.Context, email string) error
		// OnAuthChange registers fn for auth-state changes and returns a func removing it.
		OnAuthChange(fn AuthChangeFunc) (unsubscribe func())
	}
)

// Listeners is a set of AuthChangeFunc that adapters embed to implement OnAuthChange.
// The zero value is ready for use.
type Listeners struct {
	mu    sync.Mutex
	next  int
	funcs map[int]AuthChangeFunc
}

func (l *Listeners) OnAuthChange(fn AuthChangeFunc) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.funcs == nil {
		l.funcs = make(map[int]AuthChangeFunc)
	}
	id := l.next
	l.next++
	l.funcs[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.funcs, id)
	}
}

// Notify calls every registered func with usr, in registration order and outside of the lock.
func (l *Listeners) Notify(usr *User) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.funcs))
	for id := range l.funcs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	funcs := make([]AuthChangeFunc, 0, len(ids))
	for _, id := range ids {
		funcs = append(funcs, l.funcs[id])
	}
	l.mu.Unlock()

	for _, fn := range funcs {
		fn(usr)
	}
}
