package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/identity"
	"github.com/aurraa/classroom/core/profile"
	testutil "github.com/aurraa/classroom/tests"
)

func newTestReconciler(adapter identity.Adapter) (*Reconciler, *profile.Store, *testutil.Logger) {
	store, _ := testutil.NewProfileStore()
	logger := &testutil.Logger{}
	validate, translator := core.NewValidator()
	return NewReconciler(store, adapter, logger, validate, translator), store, logger
}

func wantKind(t *testing.T, err error, kind identity.ErrorKind) {
	t.Helper()
	got, ok := identity.KindOf(err)
	if !ok {
		t.Fatalf("error = %v, want *identity.AuthError of kind %s", err, kind)
	}
	if got != kind {
		t.Errorf("error kind = %s, want %s", got, kind)
	}
}

func teacherRecord() *identity.Record {
	return &identity.Record{
		Email:       "ada@school.edu",
		Username:    "ada",
		Name:        "Ada Lovelace",
		Institution: "Analytical School",
		Role:        "teacher",
	}
}

func TestResolveCredential(t *testing.T) {
	adapter := testutil.NewAdapter(
		testutil.AdapterUser{UID: "1", Email: "bob@a.edu", Record: &identity.Record{Email: "bob@a.edu", Username: "bob", Institution: "A"}},
		testutil.AdapterUser{UID: "2", Email: "bob@b.edu", Record: &identity.Record{Email: "bob@b.edu", Username: "Bob", Institution: "B"}},
		testutil.AdapterUser{UID: "3", Email: "eve@c.edu", Record: &identity.Record{Email: "eve@c.edu", Username: "eve"}},
	)
	rcl, _, _ := newTestReconciler(adapter)

	tests := []struct {
		name        string
		credential  string
		institution string
		want        string
		wantKind    identity.ErrorKind
		wantErr     bool
	}{
		{name: "email used as is", credential: "Someone@Else.org", want: "Someone@Else.org"},
		{name: "username in institution", credential: "BOB", institution: "b", want: "bob@b.edu"},
		{name: "username, record without institution", credential: "eve", institution: "Z", want: "eve@c.edu"},
		{name: "username in other institution", credential: "bob", institution: "C", wantErr: true, wantKind: identity.UnresolvedIdentifier},
		{name: "unknown username", credential: "mallory", wantErr: true, wantKind: identity.UnresolvedIdentifier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rcl.ResolveCredential(context.Background(), tt.credential, tt.institution)
			if tt.wantErr {
				wantKind(t, err, tt.wantKind)
				return
			}
			if err != nil {
				t.Fatalf("ResolveCredential() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveCredential() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveCredential_ListingFails(t *testing.T) {
	adapter := testutil.NewAdapter()
	adapter.GetAllUsersErr = &identity.CodeError{Code: "permission-denied", Message: "Missing or insufficient permissions."}
	rcl, _, _ := newTestReconciler(adapter)

	_, err := rcl.ResolveCredential(context.Background(), "bob", "")
	wantKind(t, err, identity.PermissionDenied)
}

func TestAuthenticate_EmailNeverListsUsers(t *testing.T) {
	adapter := testutil.NewAdapter(testutil.AdapterUser{
		UID: "u1", Email: "stu@school.edu", Secret: "pw",
		Record: &identity.Record{Email: "stu@school.edu", Username: "stu", Role: "student"},
	})
	rcl, _, _ := newTestReconciler(adapter)

	_, err := rcl.Authenticate(context.Background(), Login{Role: profile.RoleStudent, Credential: "stu@school.edu", Secret: "pw"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if adapter.GetAllUsersCalls != 0 {
		t.Errorf("GetAllUsers called %d times, want 0", adapter.GetAllUsersCalls)
	}
}

func TestAuthenticate_Remote(t *testing.T) {
	ctx := context.Background()
	newAdapter := func() *testutil.Adapter {
		return testutil.NewAdapter(
			testutil.AdapterUser{
				UID: "s1", Email: "stu@school.edu", Secret: "pw",
				Record: &identity.Record{Email: "stu@school.edu", Username: "stu", Name: "Stu", Institution: "School", Role: "student"},
			},
			testutil.AdapterUser{UID: "t1", Email: "ada@school.edu", Secret: "pw", Record: teacherRecord()},
			testutil.AdapterUser{
				UID: "t2", Email: "fake@school.edu", Secret: "pw",
				Record: &identity.Record{Email: "fake@school.edu", Institution: "Analytical School", Role: "student"},
			},
			testutil.AdapterUser{UID: "n1", Email: "norecord@school.edu", Secret: "pw"},
		)
	}

	tests := []struct {
		name        string
		login       Login
		wantKind    identity.ErrorKind
		wantErr     bool
		wantSignOut bool
		wantUID     string
	}{
		{
			name:    "student by username",
			login:   Login{Role: profile.RoleStudent, Credential: "STU", Secret: "pw", Institution: "school"},
			wantUID: "s1",
		},
		{
			name:     "student wrong password",
			login:    Login{Role: profile.RoleStudent, Credential: "stu@school.edu", Secret: "nope"},
			wantErr:  true,
			wantKind: identity.WrongSecret,
		},
		{
			name:     "student unknown email",
			login:    Login{Role: profile.RoleStudent, Credential: "who@school.edu", Secret: "pw"},
			wantErr:  true,
			wantKind: identity.NotFound,
		},
		{
			name:    "teacher matching",
			login:   Login{Role: profile.RoleTeacher, Credential: "ada@school.edu", Secret: "pw", Institution: "analytical school", DisplayName: "ada lovelace"},
			wantUID: "t1",
		},
		{
			name:    "teacher without display name",
			login:   Login{Role: profile.RoleTeacher, Credential: "ada@school.edu", Secret: "pw", Institution: "Analytical School"},
			wantUID: "t1",
		},
		{
			name:        "teacher wrong institution",
			login:       Login{Role: profile.RoleTeacher, Credential: "ada@school.edu", Secret: "pw", Institution: "Other"},
			wantErr:     true,
			wantKind:    identity.ProfileMismatch,
			wantSignOut: true,
		},
		{
			name:        "teacher wrong name",
			login:       Login{Role: profile.RoleTeacher, Credential: "ada@school.edu", Secret: "pw", Institution: "Analytical School", DisplayName: "Charles"},
			wantErr:     true,
			wantKind:    identity.ProfileMismatch,
			wantSignOut: true,
		},
		{
			name:        "student record on teacher portal",
			login:       Login{Role: profile.RoleTeacher, Credential: "fake@school.edu", Secret: "pw", Institution: "Analytical School"},
			wantErr:     true,
			wantKind:    identity.ProfileMismatch,
			wantSignOut: true,
		},
		{
			name:        "teacher without record",
			login:       Login{Role: profile.RoleTeacher, Credential: "norecord@school.edu", Secret: "pw", Institution: "Analytical School"},
			wantErr:     true,
			wantKind:    identity.ProfileMismatch,
			wantSignOut: true,
		},
		{
			name:    "student without record uses the form fields",
			login:   Login{Role: profile.RoleStudent, Credential: "norecord@school.edu", Secret: "pw", Institution: "School"},
			wantUID: "n1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newAdapter()
			rcl, store, _ := newTestReconciler(adapter)

			got, err := rcl.Authenticate(ctx, tt.login)
			if gotSignOut := adapter.SignOutCalls > 0; gotSignOut != tt.wantSignOut {
				t.Errorf("signed out = %v, want %v", gotSignOut, tt.wantSignOut)
			}
			if tt.wantErr {
				wantKind(t, err, tt.wantKind)
				if store.Exists(ctx, tt.login.Role) {
					t.Error("profile stored after failed login")
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if got.RemoteID != tt.wantUID {
				t.Errorf("RemoteID = %q, want %q", got.RemoteID, tt.wantUID)
			}
			stored, err := store.Get(ctx, tt.login.Role)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if stored != got {
				t.Errorf("stored = %+v, want %+v", stored, got)
			}
		})
	}
}

func TestAuthenticate_DegradedFetch(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewAdapter(testutil.AdapterUser{UID: "t1", Email: "ada@school.edu", Secret: "pw", Record: teacherRecord()})
	adapter.GetUserDataErr = errors.New("firestore unavailable")
	rcl, store, logger := newTestReconciler(adapter)

	login := Login{Role: profile.RoleTeacher, Credential: "ada@school.edu", Secret: "pw", Institution: "Somewhere", DisplayName: "Ada"}
	got, err := rcl.Authenticate(ctx, login)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	want := profile.Profile{
		Identifier:  "ada@school.edu",
		Email:       "ada@school.edu",
		Institution: "Somewhere",
		DisplayName: "Ada",
		Role:        profile.RoleTeacher,
		RemoteID:    "t1",
	}
	if got != want {
		t.Errorf("Authenticate() = %+v, want %+v", got, want)
	}
	if stored, _ := store.Get(ctx, profile.RoleTeacher); stored != want {
		t.Errorf("stored = %+v, want %+v", stored, want)
	}
	if len(logger.Messages) == 0 {
		t.Error("degraded fetch was not logged")
	}
}

func TestAuthenticate_Local(t *testing.T) {
	ctx := context.Background()
	alice := profile.Profile{Identifier: "alice", Email: "jane@x.com", Institution: "School", Role: profile.RoleStudent, Password: "pw1"}

	tests := []struct {
		name     string
		stored   *profile.Profile
		login    Login
		wantKind identity.ErrorKind
		wantErr  bool
	}{
		{name: "empty store", login: Login{Credential: "alice", Secret: "pw1", Institution: "School"}, wantErr: true, wantKind: identity.NoLocalAccount},
		{name: "matching", stored: &alice, login: Login{Credential: "alice", Secret: "pw1", Institution: "School"}},
		{name: "case-insensitive identifier and institution", stored: &alice, login: Login{Credential: "ALICE", Secret: "pw1", Institution: "school"}},
		{name: "email matches case-insensitively", stored: &alice, login: Login{Credential: "Jane@X.com", Secret: "pw1", Institution: "School"}},
		{name: "wrong secret", stored: &alice, login: Login{Credential: "alice", Secret: "PW1", Institution: "School"}, wantErr: true, wantKind: identity.InvalidCredentials},
		{name: "wrong institution", stored: &alice, login: Login{Credential: "alice", Secret: "pw1", Institution: "College"}, wantErr: true, wantKind: identity.InvalidCredentials},
		{name: "wrong identifier", stored: &alice, login: Login{Credential: "bob", Secret: "pw1", Institution: "School"}, wantErr: true, wantKind: identity.InvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rcl, store, _ := newTestReconciler(nil)
			if tt.stored != nil {
				testutil.SetProfile(t, store, profile.RoleStudent, *tt.stored)
			}
			tt.login.Role = profile.RoleStudent

			got, err := rcl.Authenticate(ctx, tt.login)
			if tt.wantErr {
				wantKind(t, err, tt.wantKind)
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if got != *tt.stored {
				t.Errorf("Authenticate() = %+v, want %+v", got, *tt.stored)
			}
		})
	}
}

func TestAuthenticate_MissingFields(t *testing.T) {
	rcl, _, _ := newTestReconciler(nil)
	_, err := rcl.Authenticate(context.Background(), Login{Role: profile.RoleStudent, Credential: "  "})

	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Authenticate() error = %v, want *core.ValidationError", err)
	}
	if len(verr.Fields) != 2 {
		t.Errorf("Fields = %v, want username and password", verr.Fields)
	}
}

func TestAuthenticate_RememberMe(t *testing.T) {
	ctx := context.Background()
	rcl, store, _ := newTestReconciler(nil)
	testutil.SetProfile(t, store, profile.RoleTeacher, profile.Profile{Email: "t@x.com", Institution: "X", Password: "secret"})

	lgn := Login{Role: profile.RoleTeacher, Credential: "t@x.com", Secret: "secret", Institution: "X", RememberMe: true}
	if _, err := rcl.Authenticate(ctx, lgn); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	got, ok, err := rcl.Remembered(ctx, profile.RoleTeacher)
	if err != nil || !ok {
		t.Fatalf("Remembered() = %v, %v", ok, err)
	}
	if want := (profile.Remembered{Identifier: "t@x.com", Institution: "X"}); got != want {
		t.Errorf("Remembered() = %+v, want %+v", got, want)
	}

	lgn.RememberMe = false
	if _, err = rcl.Authenticate(ctx, lgn); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if _, ok, _ = rcl.Remembered(ctx, profile.RoleTeacher); ok {
		t.Error("Remembered() still set after login without remember me")
	}
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	student := Registration{
		Role:            profile.RoleStudent,
		Name:            "Stu Dent",
		Username:        "stu",
		Email:           "Stu@School.edu",
		Institution:     "School",
		TeacherName:     "Ms Ada",
		Password:        "password1",
		ConfirmPassword: "password1",
	}

	t.Run("local", func(t *testing.T) {
		rcl, store, _ := newTestReconciler(nil)
		got, err := rcl.SignUp(ctx, student)
		if err != nil {
			t.Fatalf("SignUp() error = %v", err)
		}
		if got.Password != "password1" || got.Email != "stu@school.edu" || got.TeacherName != "Ms Ada" {
			t.Errorf("SignUp() = %+v", got)
		}
		if _, err = rcl.Authenticate(ctx, Login{Role: profile.RoleStudent, Credential: "stu", Secret: "password1", Institution: "School"}); err != nil {
			t.Errorf("Authenticate() after SignUp() error = %v", err)
		}
		if !store.Exists(ctx, profile.RoleStudent) {
			t.Error("profile not stored")
		}
	})

	t.Run("remote", func(t *testing.T) {
		adapter := testutil.NewAdapter()
		rcl, store, _ := newTestReconciler(adapter)
		got, err := rcl.SignUp(ctx, student)
		if err != nil {
			t.Fatalf("SignUp() error = %v", err)
		}
		if got.RemoteID == "" || got.Password != "" {
			t.Errorf("SignUp() = %+v, want a remote id and no password", got)
		}
		if stored, _ := store.Get(ctx, profile.RoleStudent); stored != got {
			t.Errorf("stored = %+v, want %+v", stored, got)
		}

		_, err = rcl.SignUp(ctx, student)
		wantKind(t, err, identity.EmailExists)
	})

	t.Run("validation", func(t *testing.T) {
		rcl, _, _ := newTestReconciler(nil)
		tests := []struct {
			name      string
			mutate    func(r *Registration)
			wantField string
		}{
			{name: "short password", mutate: func(r *Registration) { r.Password, r.ConfirmPassword = "short", "short" }, wantField: "password"},
			{name: "mismatch", mutate: func(r *Registration) { r.ConfirmPassword = "password2" }, wantField: "confirmPassword"},
			{name: "bad email", mutate: func(r *Registration) { r.Email = "nope" }, wantField: "email"},
			{name: "no teacher name", mutate: func(r *Registration) { r.TeacherName = " " }, wantField: "teacherName"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				reg := student
				tt.mutate(&reg)
				_, err := rcl.SignUp(ctx, reg)
				var verr *core.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("SignUp() error = %v, want *core.ValidationError", err)
				}
				if len(verr.Fields) != 1 || verr.Fields[0].Field != tt.wantField {
					t.Errorf("Fields = %v, want %s", verr.Fields, tt.wantField)
				}
			})
		}
	})

	t.Run("teacher needs no username", func(t *testing.T) {
		rcl, _, _ := newTestReconciler(nil)
		got, err := rcl.SignUp(ctx, Registration{
			Role: profile.RoleTeacher, Name: "Ada", Email: "ada@school.edu", Institution: "School", Password: "password1",
		})
		if err != nil {
			t.Fatalf("SignUp() error = %v", err)
		}
		if got.Identifier != "ada@school.edu" {
			t.Errorf("Identifier = %q, want the email", got.Identifier)
		}
	})
}

func TestSignOut(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewAdapter()
	adapter.SignOutErr = &identity.CodeError{Code: "auth/network-request-failed"}
	rcl, store, _ := newTestReconciler(adapter)
	testutil.SetProfile(t, store, profile.RoleStudent, profile.Profile{Identifier: "stu"})

	err := rcl.SignOut(ctx, profile.RoleStudent)
	wantKind(t, err, identity.NetworkError)
	if store.Exists(ctx, profile.RoleStudent) {
		t.Error("profile not cleared")
	}
}

func TestGuestLogin(t *testing.T) {
	ctx := context.Background()
	rcl, store, _ := newTestReconciler(nil)

	stu, err := rcl.GuestLogin(ctx, profile.RoleStudent)
	if err != nil {
		t.Fatalf("GuestLogin() error = %v", err)
	}
	if !strings.HasPrefix(stu.Identifier, "guest_") || len(stu.Identifier) != len("guest_")+6 || !stu.IsGuest || stu.Institution != "Guest" {
		t.Errorf("GuestLogin(student) = %+v", stu)
	}

	tch, err := rcl.GuestLogin(ctx, profile.RoleTeacher)
	if err != nil {
		t.Fatalf("GuestLogin() error = %v", err)
	}
	want := profile.Profile{
		Identifier:  "guest@example.com",
		Email:       "guest@example.com",
		Institution: "Guest Institution",
		DisplayName: "Guest Teacher",
		Role:        profile.RoleTeacher,
		IsGuest:     true,
	}
	if tch != want {
		t.Errorf("GuestLogin(teacher) = %+v, want %+v", tch, want)
	}
	if stored, _ := store.Get(ctx, profile.RoleTeacher); stored != want {
		t.Errorf("stored = %+v, want %+v", stored, want)
	}
}

func TestRequestPasswordReset(t *testing.T) {
	ctx := context.Background()

	rcl, _, _ := newTestReconciler(nil)
	wantKind(t, rcl.RequestPasswordReset(ctx, "no-at-sign"), identity.InvalidEmail)
	wantKind(t, rcl.RequestPasswordReset(ctx, "a@b.c"), identity.ConfigurationMissing)

	adapter := testutil.NewAdapter()
	rcl, _, _ = newTestReconciler(adapter)
	if err := rcl.RequestPasswordReset(ctx, " a@b.c "); err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if len(adapter.ResetRequests) != 1 || adapter.ResetRequests[0] != "a@b.c" {
		t.Errorf("ResetRequests = %v", adapter.ResetRequests)
	}

	adapter.ResetErr = &identity.CodeError{Code: "EMAIL_NOT_FOUND"}
	wantKind(t, rcl.RequestPasswordReset(ctx, "x@b.c"), identity.NotFound)
}
