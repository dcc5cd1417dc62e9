package account

import (
	"context"
	"net/mail"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/aurraa/classroom/core"
)

var (
	// errors
	ErrNotFound       = errors.New("account not found")
	ErrEmailExists    = errors.New("an account with this email already exists")
	ErrUsernameExists = errors.New("an account with this username already exists")
	ErrWrongPassword  = errors.New("wrong password")
	ErrInactive       = errors.New("account deactivated")
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists when another account
		// (outside of excludedIDs) already uses username or email. Comparisons ignore case.
		CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error
		CreateAccount(ctx context.Context, acc Account, exec ...core.DBExecutor) (Account, error)
		QueryAccounts(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Account, error)
		GetAccount(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Account, error)
		UpdateAccount(ctx context.Context, acc Account, exec ...core.DBExecutor) (Account, error)
		DeleteAccountsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		repo       Repository
		mailSvc    core.EmailService
		validate   *validator.Validate
		translator ut.Translator

		secretKey    []byte
		resetTimeout time.Duration
	}
)

func NewService(
	repo Repository,
	mailSvc core.EmailService,
	conf *core.Config,
	validate *validator.Validate,
	translator ut.Translator,
) *Service {
	return &Service{
		repo:         repo,
		mailSvc:      mailSvc,
		validate:     validate,
		translator:   translator,
		secretKey:    []byte(conf.SecretKey),
		resetTimeout: conf.PasswordResetTimeoutDelta,
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, uname, email string, excludedIDs ...string) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, excludedIDs...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, na NewAccount) (Account, error) {
	na.Clean()
	if err := core.ValidateStruct(svc.validate, svc.translator, na); err != nil {
		return Account{}, err
	}
	if err := svc.checkUniqueness(ctx, na.Username, na.Email); err != nil {
		return Account{}, err
	}

	now := time.Now().UTC()
	acc := Account{
		Name:        na.Name,
		Username:    na.Username,
		Email:       na.Email,
		Institution: na.Institution,
		TeacherName: na.TeacherName,
		Role:        na.Role,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := acc.SetPassword(na.Password); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateAccount(ctx, acc)
}

// Authenticate checks pwd against the account of email and records the login.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (Account, error) {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return Account{}, err
	}
	if err = acc.CheckPassword(pwd); err != nil {
		return Account{}, ErrWrongPassword
	}
	if !acc.IsActive {
		return Account{}, ErrInactive
	}

	acc.LastLogin = time.Now().UTC()
	acc, err = svc.repo.UpdateAccount(ctx, acc)
	return acc, errors.Wrap(err, "setting last login")
}

func (svc *Service) QueryAll(ctx context.Context) ([]Account, error) {
	return svc.repo.QueryAccounts(ctx, []core.DBOrdering{{Field: "created_at", Ascending: true}})
}

func (svc *Service) GetByID(ctx context.Context, id string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) SetPassword(ctx context.Context, acc Account, pwd string) (Account, error) {
	if err := acc.SetPassword(pwd); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}
	acc.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAccount(ctx, acc)
}

// RequestPasswordReset mails a password reset link to the active account of email.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !acc.IsActive {
		return ErrInactive
	}

	token, err := makeToken(acc, svc.secretKey)
	if err != nil {
		return errors.Wrap(err, "making reset token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: acc.Name, Address: acc.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"Name":  acc.Name,
			"UID":   EncodeUID(acc),
			"Token": token,
		},
	})
	return nil
}

// ResetPassword sets a new password once the token of a reset link is verified.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetPassword) error {
	if err := core.ValidateStruct(svc.validate, svc.translator, rp); err != nil {
		return err
	}
	id, err := decodeUID(rp.UID)
	if err != nil {
		return ErrInvalidToken
	}
	acc, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrInvalidToken
		}
		return err
	}
	if err = verifyToken(acc, rp.Token, svc.secretKey, svc.resetTimeout); err != nil {
		return err
	}
	_, err = svc.SetPassword(ctx, acc, rp.Password)
	return err
}

func (svc *Service) Delete(ctx context.Context, ids ...string) (int, error) {
	return svc.repo.DeleteAccountsByID(ctx, ids)
}
