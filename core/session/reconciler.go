package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/identity"
	"github.com/aurraa/classroom/core/profile"
)

var (
	// NowFunc is mocked in tests
	NowFunc = time.Now

	guestSuffixLen = 6
)

type (
	// Login holds the fields of a submitted login form.
	// Institution and DisplayName are only checked for teachers.
	Login struct {
		Role        profile.Role `json:"-"`
		Credential  string       `json:"username" validate:"notblank"`
		Secret      string       `json:"password" validate:"required"`
		Institution string       `json:"institution"`
		DisplayName string       `json:"name"`
		RememberMe  bool         `json:"rememberMe"`
	}

	// Registration holds the fields of a submitted sign-up form.
	Registration struct {
		Role            profile.Role `json:"-"`
		Name            string       `json:"name"`
		Username        string       `json:"username"`
		Email           string       `json:"email"`
		Institution     string       `json:"institution"`
		TeacherName     string       `json:"teacherName"`
		Password        string       `json:"password"`
		ConfirmPassword string       `json:"confirmPassword"`
	}

	studentRegistration struct {
		Name            string `json:"name" validate:"notblank"`
		Institution     string `json:"institution" validate:"notblank"`
		TeacherName     string `json:"teacherName" validate:"notblank"`
		Username        string `json:"username" validate:"notblank"`
		Email           string `json:"email" validate:"required,email"`
		Password        string `json:"password" validate:"required,min=8"`
		ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	}

	teacherRegistration struct {
		Name            string `json:"name" validate:"notblank"`
		Institution     string `json:"institution" validate:"notblank"`
		Email           string `json:"email" validate:"required,email"`
		Password        string `json:"password" validate:"required,min=8"`
		ConfirmPassword string `json:"confirmPassword" validate:"omitempty,eqfield=Password"`
	}

	// Reconciler signs users in and out of a portal and keeps the local profile
	// store in line with the identity service, when there is one.
	Reconciler struct {
		profiles   *profile.Store
		adapter    identity.Adapter // nil when no identity service is configured
		logger     core.Logger
		validate   *validator.Validate
		translator ut.Translator

		mu      sync.Mutex
		portals map[profile.Role]int // active subscriptions per role
	}
)

// NewReconciler returns a Reconciler. A nil adapter selects the local-only mode,
// where profiles (and their plaintext password) live in the store alone.
func NewReconciler(
	profiles *profile.Store,
	adapter identity.Adapter,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
) *Reconciler {
	return &Reconciler{
		profiles:   profiles,
		adapter:    adapter,
		logger:     logger,
		validate:   validate,
		translator: translator,
	}
}

// HasAdapter reports whether an identity service is configured.
func (r *Reconciler) HasAdapter() bool { return r.adapter != nil }

// Profiles returns the local profile store the Reconciler writes to.
func (r *Reconciler) Profiles() *profile.Store { return r.profiles }

func (r *Reconciler) logFailure(op string, role profile.Role, credential string, err error) {
	r.logger.Warn(op+" failed", err, map[string]interface{}{
		"role":          role.String(),
		"credential":    core.Mask(credential),
		"hasCredential": credential != "",
		"at":            NowFunc().UTC().Format(time.RFC3339),
	})
}

// ResolveCredential returns the email to sign in with.
// An email-shaped credential is returned as is; anything else is looked up as a username
// among the identity service's users, restricted to institution when both sides carry one.
func (r *Reconciler) ResolveCredential(ctx context.Context, credential, institution string) (string, error) {
	credential = core.CleanString(credential)
	if core.IsEmail(credential) {
		return credential, nil
	}
	if r.adapter == nil {
		return "", identity.NewAuthError(identity.ConfigurationMissing)
	}

	records, err := r.adapter.GetAllUsers(ctx)
	if err != nil {
		return "", identity.MapError(err)
	}
	for _, rec := range records {
		if rec.Username == "" || rec.Email == "" || !core.SameFold(rec.Username, credential) {
			continue
		}
		if institution != "" && rec.Institution != "" && !core.SameFold(rec.Institution, institution) {
			continue
		}
		return rec.Email, nil
	}
	return "", identity.NewAuthError(identity.UnresolvedIdentifier)
}

// Authenticate signs the user in and stores the reconciled profile of lgn.Role.
// Failures are *identity.AuthError, or *core.ValidationError for missing fields.
func (r *Reconciler) Authenticate(ctx context.Context, lgn Login) (profile.Profile, error) {
	if !lgn.Role.Valid() {
		return profile.Profile{}, errors.Wrapf(profile.ErrUnknownRole, "%q", lgn.Role)
	}
	if err := core.ValidateStruct(r.validate, r.translator, lgn); err != nil {
		return profile.Profile{}, err
	}

	var (
		prof profile.Profile
		err  error
	)
	if r.adapter == nil {
		prof, err = r.authenticateLocally(ctx, lgn)
	} else {
		prof, err = r.authenticateRemotely(ctx, lgn)
	}
	if err != nil {
		r.logFailure("login", lgn.Role, lgn.Credential, err)
		return profile.Profile{}, err
	}

	if err = r.Remember(ctx, lgn.Role, lgn.RememberMe, lgn.Credential, lgn.Institution); err != nil {
		r.logger.Warn("saving remembered login", err)
	}
	return prof, nil
}

func (r *Reconciler) authenticateRemotely(ctx context.Context, lgn Login) (profile.Profile, error) {
	email, err := r.ResolveCredential(ctx, lgn.Credential, lgn.Institution)
	if err != nil {
		return profile.Profile{}, err
	}

	cred, err := r.adapter.SignIn(ctx, email, lgn.Secret)
	if err != nil {
		return profile.Profile{}, identity.MapError(err)
	}

	prof, err := r.fetchProfile(ctx, lgn.Role, cred.User.UID)
	found := err == nil
	if !found && lgn.Role == profile.RoleTeacher && errors.Cause(err) == identity.ErrNoRecord {
		return profile.Profile{}, r.rejectTeacher(ctx)
	}
	if !found {
		// degraded: the identity is valid but its record could not be read
		prof = profile.Profile{
			Identifier:  core.CleanString(lgn.Credential),
			Email:       cred.User.Email,
			Institution: core.CleanString(lgn.Institution),
			DisplayName: core.CleanString(lgn.DisplayName),
			Role:        lgn.Role,
		}
		if prof.Email == "" {
			prof.Email = email
		}
	}
	prof.RemoteID = cred.User.UID

	if lgn.Role == profile.RoleTeacher && found && !teacherMatches(prof, lgn) {
		return profile.Profile{}, r.rejectTeacher(ctx)
	}

	if err = r.profiles.Set(ctx, lgn.Role, prof); err != nil {
		return profile.Profile{}, identity.NewAuthError(identity.Unknown, err)
	}
	return prof, nil
}

// fetchProfile reads the remote record of uid. A missing record is identity.ErrNoRecord.
func (r *Reconciler) fetchProfile(ctx context.Context, role profile.Role, uid string) (profile.Profile, error) {
	rec, err := r.adapter.GetUserData(ctx, uid)
	if err != nil {
		if errors.Cause(err) != identity.ErrNoRecord {
			r.logger.Warn("fetching user record, falling back to form fields", err, map[string]interface{}{
				"role": role.String(),
				"uid":  uid,
			})
		}
		return profile.Profile{}, err
	}
	return FromRecord(rec, role), nil
}

// rejectTeacher signs out an identity that failed the teacher check.
func (r *Reconciler) rejectTeacher(ctx context.Context) error {
	if err := r.adapter.SignOut(ctx); err != nil {
		r.logger.Warn("signing out mismatched teacher", err)
	}
	return identity.NewAuthError(identity.ProfileMismatch)
}

func teacherMatches(prof profile.Profile, lgn Login) bool {
	if prof.Role != profile.RoleTeacher {
		return false
	}
	if !core.SameFold(prof.Institution, lgn.Institution) {
		return false
	}
	name := core.CleanString(lgn.DisplayName)
	return name == "" || core.SameFold(prof.DisplayName, name)
}

func (r *Reconciler) authenticateLocally(ctx context.Context, lgn Login) (profile.Profile, error) {
	prof, err := r.profiles.Get(ctx, lgn.Role)
	if err != nil {
		if errors.Cause(err) == profile.ErrNotFound {
			return profile.Profile{}, identity.NewAuthError(identity.NoLocalAccount)
		}
		return profile.Profile{}, identity.NewAuthError(identity.Unknown, err)
	}

	// plaintext comparison; password storage is out of scope for the local mode
	if !core.SameFold(prof.Institution, lgn.Institution) ||
		!prof.Matches(core.CleanString(lgn.Credential)) ||
		prof.Password != lgn.Secret {
		return profile.Profile{}, identity.NewAuthError(identity.InvalidCredentials)
	}
	return prof, nil
}

// FromRecord converts a remote user record into the profile of role.
// A record without a role tag is assumed to belong to role.
func FromRecord(rec identity.Record, role profile.Role) profile.Profile {
	prof := profile.Profile{
		Identifier:  rec.Username,
		Email:       rec.Email,
		Institution: rec.Institution,
		DisplayName: rec.Name,
		TeacherName: rec.TeacherName,
		Role:        profile.Role(strings.ToLower(rec.Role)),
		RemoteID:    rec.ID,
	}
	if prof.Identifier == "" {
		prof.Identifier = rec.Email
	}
	if prof.Role == "" {
		prof.Role = role
	}
	return prof
}

// SignUp creates the account described by reg and stores its profile.
func (r *Reconciler) SignUp(ctx context.Context, reg Registration) (profile.Profile, error) {
	var form interface{}
	switch reg.Role {
	case profile.RoleStudent:
		form = studentRegistration{
			Name:            reg.Name,
			Institution:     reg.Institution,
			TeacherName:     reg.TeacherName,
			Username:        reg.Username,
			Email:           reg.Email,
			Password:        reg.Password,
			ConfirmPassword: reg.ConfirmPassword,
		}
	case profile.RoleTeacher:
		form = teacherRegistration{
			Name:            reg.Name,
			Institution:     reg.Institution,
			Email:           reg.Email,
			Password:        reg.Password,
			ConfirmPassword: reg.ConfirmPassword,
		}
	default:
		return profile.Profile{}, errors.Wrapf(profile.ErrUnknownRole, "%q", reg.Role)
	}
	if err := core.ValidateStruct(r.validate, r.translator, form); err != nil {
		return profile.Profile{}, err
	}

	prof := profile.Profile{
		Identifier:  core.CleanString(reg.Username),
		Email:       core.CleanString(reg.Email, true),
		Institution: core.CleanString(reg.Institution),
		DisplayName: core.CleanString(reg.Name),
		TeacherName: core.CleanString(reg.TeacherName),
		Role:        reg.Role,
	}
	if prof.Identifier == "" {
		prof.Identifier = prof.Email
	}

	if r.adapter == nil {
		prof.Password = reg.Password
	} else {
		now := NowFunc().UTC()
		cred, err := r.adapter.SignUp(ctx, prof.Email, reg.Password, identity.Record{
			Email:       prof.Email,
			Username:    core.CleanString(reg.Username),
			Name:        prof.DisplayName,
			Institution: prof.Institution,
			TeacherName: prof.TeacherName,
			Role:        reg.Role.String(),
			CreatedAt:   now,
			LastLoginAt: now,
		})
		if err != nil {
			aerr := identity.MapError(err)
			r.logFailure("sign-up", reg.Role, reg.Email, aerr)
			return profile.Profile{}, aerr
		}
		prof.RemoteID = cred.User.UID
	}

	if err := r.profiles.Set(ctx, reg.Role, prof); err != nil {
		return profile.Profile{}, identity.NewAuthError(identity.Unknown, err)
	}
	return prof, nil
}

// SignOut ends the remote session, if any, and always clears the stored profile of role.
func (r *Reconciler) SignOut(ctx context.Context, role profile.Role) error {
	var remoteErr error
	if r.adapter != nil {
		if err := r.adapter.SignOut(ctx); err != nil {
			remoteErr = identity.MapError(err)
			r.logger.Warn("remote sign-out", remoteErr)
		}
	}
	if err := r.profiles.Clear(ctx, role); err != nil {
		return err
	}
	return remoteErr
}

// GuestLogin stores a throwaway guest profile of role.
func (r *Reconciler) GuestLogin(ctx context.Context, role profile.Role) (profile.Profile, error) {
	var prof profile.Profile
	switch role {
	case profile.RoleStudent:
		suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:guestSuffixLen]
		prof = profile.Profile{
			Identifier:  fmt.Sprintf("guest_%s", suffix),
			Institution: "Guest",
			DisplayName: "Guest",
			Role:        role,
			IsGuest:     true,
		}
	case profile.RoleTeacher:
		prof = profile.Profile{
			Identifier:  "guest@example.com",
			Email:       "guest@example.com",
			Institution: "Guest Institution",
			DisplayName: "Guest Teacher",
			Role:        role,
			IsGuest:     true,
		}
	default:
		return profile.Profile{}, errors.Wrapf(profile.ErrUnknownRole, "%q", role)
	}

	if err := r.profiles.Set(ctx, role, prof); err != nil {
		return profile.Profile{}, err
	}
	return prof, nil
}

// RequestPasswordReset asks the identity service to send a reset link to email.
func (r *Reconciler) RequestPasswordReset(ctx context.Context, email string) error {
	email = core.CleanString(email)
	if !strings.Contains(email, "@") {
		return identity.NewAuthError(identity.InvalidEmail)
	}
	if r.adapter == nil {
		return identity.NewAuthError(identity.ConfigurationMissing)
	}
	if err := r.adapter.SendPasswordReset(ctx, email); err != nil {
		aerr := identity.MapError(err)
		r.logger.Warn("password reset request failed", aerr, map[string]interface{}{"email": core.Mask(email)})
		return aerr
	}
	return nil
}

// Remember saves the login fields of role for the next visit, or forgets them when remember is false.
func (r *Reconciler) Remember(ctx context.Context, role profile.Role, remember bool, identifier, institution string) error {
	return r.profiles.Remember(ctx, role, remember, profile.Remembered{
		Identifier:  core.CleanString(identifier),
		Institution: core.CleanString(institution),
	})
}

// Remembered returns the login fields saved for role; ok is false when none are.
func (r *Reconciler) Remembered(ctx context.Context, role profile.Role) (profile.Remembered, bool, error) {
	return r.profiles.Remembered(ctx, role)
}
