package session

import (
	"context"
	"errors"
	"testing"

	"github.com/aurraa/classroom/core/identity"
	"github.com/aurraa/classroom/core/profile"
	testutil "github.com/aurraa/classroom/tests"
)

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	stuRecord := &identity.Record{Email: "stu@school.edu", Username: "stu", Institution: "School", Role: "student"}
	untagged := &identity.Record{Email: "old@school.edu", Name: "Old Timer", Institution: "School"}

	tests := []struct {
		name        string
		role        profile.Role
		user        *identity.User
		fetchErr    error
		initial     *profile.Profile
		want        *profile.Profile // nil: nothing stored
		wantSignOut bool
	}{
		{
			name: "signed in student",
			role: profile.RoleStudent,
			user: &identity.User{UID: "s1", Email: "stu@school.edu"},
			want: &profile.Profile{Identifier: "stu", Email: "stu@school.edu", Institution: "School", Role: profile.RoleStudent, RemoteID: "s1"},
		},
		{
			name: "untagged record takes the expected role",
			role: profile.RoleTeacher,
			user: &identity.User{UID: "o1", Email: "old@school.edu"},
			want: &profile.Profile{Identifier: "old@school.edu", Email: "old@school.edu", Institution: "School", DisplayName: "Old Timer", Role: profile.RoleTeacher, RemoteID: "o1"},
		},
		{
			name:        "student record on teacher portal",
			role:        profile.RoleTeacher,
			user:        &identity.User{UID: "s1", Email: "stu@school.edu"},
			initial:     &profile.Profile{Identifier: "stale", Role: profile.RoleTeacher},
			wantSignOut: true,
		},
		{
			name:     "fetch error keeps local state",
			role:     profile.RoleStudent,
			user:     &identity.User{UID: "s1", Email: "stu@school.edu"},
			fetchErr: errors.New("unavailable"),
			initial:  &profile.Profile{Identifier: "stale"},
			want:     &profile.Profile{Identifier: "stale"},
		},
		{
			name:    "signed out clears",
			role:    profile.RoleStudent,
			initial: &profile.Profile{Identifier: "stu"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := testutil.NewAdapter(
				testutil.AdapterUser{UID: "s1", Email: "stu@school.edu", Record: stuRecord},
				testutil.AdapterUser{UID: "o1", Email: "old@school.edu", Record: untagged},
			)
			adapter.GetUserDataErr = tt.fetchErr
			rcl, store, _ := newTestReconciler(adapter)
			if tt.initial != nil {
				testutil.SetProfile(t, store, tt.role, *tt.initial)
			}

			var changes []*identity.User
			unsubscribe := rcl.Subscribe(tt.role, func(usr *identity.User) { changes = append(changes, usr) })
			defer unsubscribe()

			adapter.Notify(tt.user)

			// a sign-out during reconciliation notifies first, so the initial change is reported last
			if len(changes) == 0 || changes[len(changes)-1] != tt.user {
				t.Errorf("onChange got %v, want last call with %v", changes, tt.user)
			}
			if gotSignOut := adapter.SignOutCalls > 0; gotSignOut != tt.wantSignOut {
				t.Errorf("signed out = %v, want %v", gotSignOut, tt.wantSignOut)
			}
			got, err := store.Get(ctx, tt.role)
			if tt.want == nil {
				if err != profile.ErrNotFound {
					t.Errorf("Get() = %+v, %v; want ErrNotFound", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got != *tt.want {
				t.Errorf("Get() = %+v, want %+v", got, *tt.want)
			}
		})
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewAdapter()
	rcl, store, _ := newTestReconciler(adapter)

	calls := 0
	unsubscribe := rcl.Subscribe(profile.RoleStudent, func(*identity.User) { calls++ })
	unsubscribe()

	testutil.SetProfile(t, store, profile.RoleStudent, profile.Profile{Identifier: "stu"})
	adapter.Notify(nil)

	if calls != 0 {
		t.Errorf("onChange called %d times after unsubscribe", calls)
	}
	if !store.Exists(ctx, profile.RoleStudent) {
		t.Error("profile cleared after unsubscribe")
	}
}

func TestSubscribe_NoAdapter(t *testing.T) {
	rcl, _, _ := newTestReconciler(nil)
	rcl.Subscribe(profile.RoleStudent, nil)()
}

func TestSubscribe_BothPortals(t *testing.T) {
	ctx := context.Background()
	stuRecord := &identity.Record{Email: "stu@school.edu", Username: "stu", Institution: "School", Role: "student"}
	adminRecord := &identity.Record{Email: "root@school.edu", Institution: "School", Role: "admin"}
	untagged := &identity.Record{Email: "old@school.edu", Name: "Old Timer", Institution: "School"}

	student := profile.Profile{Identifier: "stu", Email: "stu@school.edu", Institution: "School", Role: profile.RoleStudent, RemoteID: "s1"}
	teacher := profile.Profile{
		Identifier: "ada", Email: "ada@school.edu", Institution: "Analytical School",
		DisplayName: "Ada Lovelace", Role: profile.RoleTeacher, RemoteID: "t1",
	}

	tests := []struct {
		name        string
		initial     map[profile.Role]profile.Profile
		act         func(t *testing.T, rcl *Reconciler, adapter *testutil.Adapter)
		want        map[profile.Role]profile.Profile // roles absent here must be cleared
		wantSignOut bool
	}{
		{
			name:    "teacher login keeps the student session",
			initial: map[profile.Role]profile.Profile{profile.RoleStudent: student},
			act: func(t *testing.T, rcl *Reconciler, _ *testutil.Adapter) {
				login := Login{Role: profile.RoleTeacher, Credential: "ada@school.edu", Secret: "pw", Institution: "Analytical School"}
				if _, err := rcl.Authenticate(ctx, login); err != nil {
					t.Fatalf("Authenticate() error = %v", err)
				}
			},
			want: map[profile.Role]profile.Profile{profile.RoleStudent: student, profile.RoleTeacher: teacher},
		},
		{
			name:    "student login keeps the teacher session",
			initial: map[profile.Role]profile.Profile{profile.RoleTeacher: teacher},
			act: func(t *testing.T, rcl *Reconciler, _ *testutil.Adapter) {
				login := Login{Role: profile.RoleStudent, Credential: "stu@school.edu", Secret: "pw"}
				if _, err := rcl.Authenticate(ctx, login); err != nil {
					t.Fatalf("Authenticate() error = %v", err)
				}
			},
			want: map[profile.Role]profile.Profile{profile.RoleStudent: student, profile.RoleTeacher: teacher},
		},
		{
			name:    "teacher sign-out keeps the student session",
			initial: map[profile.Role]profile.Profile{profile.RoleStudent: student},
			act: func(t *testing.T, rcl *Reconciler, _ *testutil.Adapter) {
				login := Login{Role: profile.RoleTeacher, Credential: "ada@school.edu", Secret: "pw", Institution: "Analytical School"}
				if _, err := rcl.Authenticate(ctx, login); err != nil {
					t.Fatalf("Authenticate() error = %v", err)
				}
				if err := rcl.SignOut(ctx, profile.RoleTeacher); err != nil {
					t.Fatalf("SignOut() error = %v", err)
				}
			},
			want:        map[profile.Role]profile.Profile{profile.RoleStudent: student},
			wantSignOut: true,
		},
		{
			name:    "untagged record only takes a free portal",
			initial: map[profile.Role]profile.Profile{profile.RoleStudent: student},
			act: func(_ *testing.T, _ *Reconciler, adapter *testutil.Adapter) {
				adapter.Notify(&identity.User{UID: "o1", Email: "old@school.edu"})
			},
			want: map[profile.Role]profile.Profile{
				profile.RoleStudent: student,
				profile.RoleTeacher: {
					Identifier: "old@school.edu", Email: "old@school.edu", Institution: "School",
					DisplayName: "Old Timer", Role: profile.RoleTeacher, RemoteID: "o1",
				},
			},
		},
		{
			name:    "record of no portal is signed out",
			initial: map[profile.Role]profile.Profile{profile.RoleStudent: student, profile.RoleTeacher: teacher},
			act: func(_ *testing.T, _ *Reconciler, adapter *testutil.Adapter) {
				adapter.Notify(&identity.User{UID: "a1", Email: "root@school.edu"})
			},
			wantSignOut: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := testutil.NewAdapter(
				testutil.AdapterUser{UID: "s1", Email: "stu@school.edu", Secret: "pw", Record: stuRecord},
				testutil.AdapterUser{UID: "t1", Email: "ada@school.edu", Secret: "pw", Record: teacherRecord()},
				testutil.AdapterUser{UID: "a1", Email: "root@school.edu", Secret: "pw", Record: adminRecord},
				testutil.AdapterUser{UID: "o1", Email: "old@school.edu", Secret: "pw", Record: untagged},
			)
			rcl, store, _ := newTestReconciler(adapter)
			for role, p := range tt.initial {
				testutil.SetProfile(t, store, role, p)
			}
			for _, role := range profile.Roles {
				defer rcl.Subscribe(role, nil)()
			}

			tt.act(t, rcl, adapter)

			if gotSignOut := adapter.SignOutCalls > 0; gotSignOut != tt.wantSignOut {
				t.Errorf("signed out = %v (%d calls), want %v", gotSignOut, adapter.SignOutCalls, tt.wantSignOut)
			}
			for _, role := range profile.Roles {
				got, err := store.Get(ctx, role)
				want, ok := tt.want[role]
				if !ok {
					if err != profile.ErrNotFound {
						t.Errorf("Get(%s) = %+v, %v; want ErrNotFound", role, got, err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("Get(%s) error = %v", role, err)
				}
				if got != want {
					t.Errorf("Get(%s) = %+v, want %+v", role, got, want)
				}
			}
		})
	}
}

func TestSubscribe_UnsubscribeReleasesPortal(t *testing.T) {
	adapter := testutil.NewAdapter()
	rcl, _, _ := newTestReconciler(adapter)

	unsubscribe := rcl.Subscribe(profile.RoleTeacher, nil)
	if !rcl.serves(profile.RoleTeacher) {
		t.Fatal("teacher portal not served after Subscribe")
	}
	unsubscribe()
	unsubscribe()
	if rcl.serves(profile.RoleTeacher) || rcl.portalCount() != 0 {
		t.Error("teacher portal still served after unsubscribe")
	}
}
