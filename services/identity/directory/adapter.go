// Package directory implements identity.Adapter on top of the self-hosted account directory.
package directory

import (
	"context"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/account"
	"github.com/aurraa/classroom/core/identity"
)

var errInvalidIDToken = errors.New("invalid id token")

// Claims are carried by the id tokens handed out on sign-in.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

type Adapter struct {
	identity.Listeners

	svc        *account.Service
	signingKey []byte
	tokenTTL   time.Duration
	issuer     string

	mu      sync.Mutex
	current *identity.User
}

var _ identity.Adapter = (*Adapter)(nil) // interface compliance check

func New(svc *account.Service, conf *core.Config) *Adapter {
	return &Adapter{
		svc:        svc,
		signingKey: []byte(conf.SecretKey),
		tokenTTL:   conf.Server.JWTExpirationDelta,
		issuer:     conf.AppName,
	}
}

// codeError translates directory errors into the codes used by identity.MapError.
func codeError(err error) error {
	switch errors.Cause(err) {
	case account.ErrNotFound:
		return &identity.CodeError{Code: "EMAIL_NOT_FOUND", Message: err.Error()}
	case account.ErrWrongPassword:
		return &identity.CodeError{Code: "INVALID_PASSWORD", Message: err.Error()}
	case account.ErrInactive:
		return &identity.CodeError{Code: "USER_DISABLED", Message: err.Error()}
	}

	var verr *core.ValidationError
	if errors.As(err, &verr) {
		for _, fld := range verr.Fields {
			switch {
			case fld.Field == "email" && errors.Cause(verr.Err) == account.ErrEmailExists:
				return &identity.CodeError{Code: "EMAIL_EXISTS", Message: fld.Error}
			case fld.Field == "email":
				return &identity.CodeError{Code: "INVALID_EMAIL", Message: fld.Error}
			case fld.Field == "password":
				return &identity.CodeError{Code: "WEAK_PASSWORD", Message: fld.Error}
			}
		}
	}
	return err
}

func (a *Adapter) signIn(acc account.Account) (identity.Credential, error) {
	now := time.Now()
	claims := Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.issuer,
			Subject:   acc.ID,
			ExpiresAt: now.Add(a.tokenTTL).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: acc.Email,
		Role:  acc.Role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.signingKey)
	if err != nil {
		return identity.Credential{}, errors.Wrap(err, "signing id token")
	}

	usr := identity.User{UID: acc.ID, Email: acc.Email}
	a.mu.Lock()
	a.current = &usr
	a.mu.Unlock()
	a.Notify(&usr)
	return identity.Credential{User: usr, IDToken: token}, nil
}

func (a *Adapter) SignIn(ctx context.Context, email, secret string) (identity.Credential, error) {
	acc, err := a.svc.Authenticate(ctx, email, secret)
	if err != nil {
		return identity.Credential{}, codeError(err)
	}
	return a.signIn(acc)
}

func (a *Adapter) SignUp(ctx context.Context, email, secret string, fields identity.Record) (identity.Credential, error) {
	acc, err := a.svc.Create(ctx, account.NewAccount{
		Name:        fields.Name,
		Username:    fields.Username,
		Email:       email,
		Institution: fields.Institution,
		TeacherName: fields.TeacherName,
		Role:        fields.Role,
		Password:    secret,
	})
	if err != nil {
		return identity.Credential{}, codeError(err)
	}
	return a.signIn(acc)
}

func (a *Adapter) SignOut(context.Context) error {
	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()
	a.Notify(nil)
	return nil
}

// CurrentUser returns the signed-in user, if any.
func (a *Adapter) CurrentUser() (identity.User, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return identity.User{}, false
	}
	return *a.current, true
}

func record(acc account.Account) identity.Record {
	return identity.Record{
		ID:          acc.ID,
		Email:       acc.Email,
		Username:    acc.Username,
		Name:        acc.Name,
		Institution: acc.Institution,
		TeacherName: acc.TeacherName,
		Role:        acc.Role,
		CreatedAt:   acc.CreatedAt,
		LastLoginAt: acc.LastLogin,
	}
}

func (a *Adapter) GetUserData(ctx context.Context, uid string) (identity.Record, error) {
	acc, err := a.svc.GetByID(ctx, uid)
	if err != nil {
		if errors.Cause(err) == account.ErrNotFound {
			return identity.Record{}, identity.ErrNoRecord
		}
		return identity.Record{}, err
	}
	return record(acc), nil
}

func (a *Adapter) GetAllUsers(ctx context.Context) ([]identity.Record, error) {
	accounts, err := a.svc.QueryAll(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]identity.Record, 0, len(accounts))
	for _, acc := range accounts {
		if acc.IsActive {
			records = append(records, record(acc))
		}
	}
	return records, nil
}

func (a *Adapter) SendPasswordReset(ctx context.Context, email string) error {
	if err := a.svc.RequestPasswordReset(ctx, email); err != nil {
		return codeError(err)
	}
	return nil
}

// ConfirmPasswordReset sets the new password carried by a reset link.
func (a *Adapter) ConfirmPasswordReset(ctx context.Context, rp account.ResetPassword) error {
	return a.svc.ResetPassword(ctx, rp)
}

// VerifyIDToken returns the user an id token was issued to.
func (a *Adapter) VerifyIDToken(token string) (identity.User, error) {
	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidIDToken
		}
		return a.signingKey, nil
	})
	if err != nil || !parsed.Valid || claims.Issuer != a.issuer {
		return identity.User{}, errInvalidIDToken
	}
	return identity.User{UID: claims.Subject, Email: claims.Email}, nil
}
