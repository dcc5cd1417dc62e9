package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/identity"
	"github.com/aurraa/classroom/core/profile"
	inmemkv "github.com/aurraa/classroom/storage/kv/inmem"
)

// Logger is a core.Logger that records messages instead of printing them.
type Logger struct {
	mu       sync.Mutex
	Messages []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, level+": "+msg)
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("DEBUG", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("INFO", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("WARN", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("ERROR", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.log("FATAL", msg) }

// NewProfileStore returns a profile store over a fresh in-memory key-value store.
func NewProfileStore() (*profile.Store, core.KeyValueStore) {
	kv := inmemkv.NewStore()
	return profile.NewStore(kv, &Logger{}), kv
}

// SetProfile stores p under role or fails the test.
func SetProfile(t *testing.T, store *profile.Store, role profile.Role, p profile.Profile) {
	t.Helper()
	if err := store.Set(context.Background(), role, p); err != nil {
		t.Fatalf("SetProfile() failed: %v", err)
	}
}

// AdapterUser is an identity known to an Adapter.
type AdapterUser struct {
	UID    string
	Email  string
	Secret string
	Record *identity.Record // nil: the user has no record
}

// Adapter is an in-process identity.Adapter with call counters and injectable failures.
type Adapter struct {
	identity.Listeners

	mu    sync.Mutex
	users map[string]AdapterUser // by lowercased email

	SignInErr, SignUpErr, SignOutErr, GetUserDataErr, GetAllUsersErr, ResetErr error

	SignInCalls, SignUpCalls, SignOutCalls, GetUserDataCalls, GetAllUsersCalls int
	ResetRequests                                                              []string
}

var _ identity.Adapter = (*Adapter)(nil)

func NewAdapter(users ...AdapterUser) *Adapter {
	a := &Adapter{users: make(map[string]AdapterUser)}
	for _, u := range users {
		a.AddUser(u)
	}
	return a
}

func (a *Adapter) AddUser(u AdapterUser) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[core.CleanString(u.Email, true)] = u
}

func (a *Adapter) byUID(uid string) (AdapterUser, bool) {
	for _, u := range a.users {
		if u.UID == uid {
			return u, true
		}
	}
	return AdapterUser{}, false
}

func (a *Adapter) SignIn(_ context.Context, email, secret string) (identity.Credential, error) {
	a.mu.Lock()
	a.SignInCalls++
	if a.SignInErr != nil {
		a.mu.Unlock()
		return identity.Credential{}, a.SignInErr
	}
	u, ok := a.users[core.CleanString(email, true)]
	a.mu.Unlock()

	if !ok {
		return identity.Credential{}, &identity.CodeError{Code: "auth/user-not-found"}
	}
	if u.Secret != secret {
		return identity.Credential{}, &identity.CodeError{Code: "auth/wrong-password"}
	}
	usr := identity.User{UID: u.UID, Email: email}
	a.Notify(&usr)
	return identity.Credential{User: usr, IDToken: "token-" + u.UID}, nil
}

func (a *Adapter) SignUp(_ context.Context, email, secret string, fields identity.Record) (identity.Credential, error) {
	a.mu.Lock()
	a.SignUpCalls++
	if a.SignUpErr != nil {
		a.mu.Unlock()
		return identity.Credential{}, a.SignUpErr
	}
	key := core.CleanString(email, true)
	if _, exists := a.users[key]; exists {
		a.mu.Unlock()
		return identity.Credential{}, &identity.CodeError{Code: "auth/email-already-in-use"}
	}
	uid := "uid-" + key
	rec := fields
	rec.ID = uid
	rec.Email = email
	a.users[key] = AdapterUser{UID: uid, Email: email, Secret: secret, Record: &rec}
	a.mu.Unlock()

	usr := identity.User{UID: uid, Email: email}
	a.Notify(&usr)
	return identity.Credential{User: usr, IDToken: "token-" + uid}, nil
}

func (a *Adapter) SignOut(context.Context) error {
	a.mu.Lock()
	a.SignOutCalls++
	err := a.SignOutErr
	a.mu.Unlock()
	if err != nil {
		return err
	}
	a.Notify(nil)
	return nil
}

func (a *Adapter) GetUserData(_ context.Context, uid string) (identity.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.GetUserDataCalls++
	if a.GetUserDataErr != nil {
		return identity.Record{}, a.GetUserDataErr
	}
	u, ok := a.byUID(uid)
	if !ok || u.Record == nil {
		return identity.Record{}, identity.ErrNoRecord
	}
	rec := *u.Record
	rec.ID = uid
	return rec, nil
}

func (a *Adapter) GetAllUsers(context.Context) ([]identity.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.GetAllUsersCalls++
	if a.GetAllUsersErr != nil {
		return nil, a.GetAllUsersErr
	}
	recs := make([]identity.Record, 0, len(a.users))
	for _, u := range a.users {
		if u.Record != nil {
			rec := *u.Record
			rec.ID = u.UID
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (a *Adapter) SendPasswordReset(_ context.Context, email string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ResetErr != nil {
		return a.ResetErr
	}
	a.ResetRequests = append(a.ResetRequests, email)
	return nil
}
