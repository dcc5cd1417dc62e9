package identity

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind enumerates every way an authentication attempt can fail.
type ErrorKind int

const (
	Unknown ErrorKind = iota
	UnresolvedIdentifier
	InvalidEmail
	NotFound
	WrongSecret
	RateLimited
	NetworkError
	ConfigurationMissing
	PermissionDenied
	ProfileMismatch
	NoLocalAccount
	InvalidCredentials

	// sign-up only
	EmailExists
	WeakSecret
)

var kindNames = map[ErrorKind]string{
	Unknown:              "Unknown",
	UnresolvedIdentifier: "UnresolvedIdentifier",
	InvalidEmail:         "InvalidEmail",
	NotFound:             "NotFound",
	WrongSecret:          "WrongSecret",
	RateLimited:          "RateLimited",
	NetworkError:         "NetworkError",
	ConfigurationMissing: "ConfigurationMissing",
	PermissionDenied:     "PermissionDenied",
	ProfileMismatch:      "ProfileMismatch",
	NoLocalAccount:       "NoLocalAccount",
	InvalidCredentials:   "InvalidCredentials",
	EmailExists:          "EmailExists",
	WeakSecret:           "WeakSecret",
}

var kindMessages = map[ErrorKind]string{
	Unknown:              "Something went wrong. Please try again.",
	UnresolvedIdentifier: "Username not found. Please use your email address or sign up.",
	InvalidEmail:         "Please enter a valid email address.",
	NotFound:             "No account found with this email. Please sign up first.",
	WrongSecret:          "Incorrect password. Please try again.",
	RateLimited:          "Too many failed attempts. Please try again later.",
	NetworkError:         "Network error. Please check your internet connection.",
	ConfigurationMissing: "Authentication is not configured. Please contact support.",
	PermissionDenied:     "Permission denied by the identity service. Please contact support.",
	ProfileMismatch:      "Invalid credentials. The name or institution does not match our records.",
	NoLocalAccount:       "No account found on this device. Please sign up first.",
	InvalidCredentials:   "Invalid credentials. Please check your institution, username (or email), and password.",
	EmailExists:          "This email is already registered. Please login or use a different email.",
	WeakSecret:           "Password is too weak. Please use a stronger password.",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Message is the human-readable text shown to the user for k.
func (k ErrorKind) Message() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return kindMessages[Unknown]
}

// AuthError is the single error type returned by authentication operations.
type AuthError struct {
	Kind ErrorKind
	Code string // adapter error code, if any
	Err  error  // underlying cause, if any
}

func NewAuthError(kind ErrorKind, cause ...error) *AuthError {
	ae := &AuthError{Kind: kind}
	if len(cause) > 0 {
		ae.Err = cause[0]
	}
	return ae
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Message() string { return e.Kind.Message() }

// KindOf returns the ErrorKind of err if it is, or wraps, an *AuthError.
func KindOf(err error) (ErrorKind, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return Unknown, false
}

// CodeError is returned by adapters for failures reported by the identity service.
type CodeError struct {
	Code    string
	Message string
}

func (e *CodeError) Error() string {
	if e.Message == "" || e.Message == e.Code {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// adapter codes, as reported by the web SDK (auth/...), the REST API and the document store
var codeKinds = map[string]ErrorKind{
	"auth/invalid-email":           InvalidEmail,
	"INVALID_EMAIL":                InvalidEmail,
	"auth/user-not-found":          NotFound,
	"EMAIL_NOT_FOUND":              NotFound,
	"USER_NOT_FOUND":               NotFound,
	"auth/wrong-password":          WrongSecret,
	"auth/invalid-credential":      WrongSecret,
	"INVALID_PASSWORD":             WrongSecret,
	"INVALID_LOGIN_CREDENTIALS":    WrongSecret,
	"auth/too-many-requests":       RateLimited,
	"TOO_MANY_ATTEMPTS_TRY_LATER":  RateLimited,
	"RESOURCE_EXHAUSTED":           RateLimited,
	"auth/network-request-failed":  NetworkError,
	"UNAVAILABLE":                  NetworkError,
	"auth/configuration-not-found": ConfigurationMissing,
	"CONFIGURATION_NOT_FOUND":      ConfigurationMissing,
	"auth/operation-not-allowed":   ConfigurationMissing,
	"OPERATION_NOT_ALLOWED":        ConfigurationMissing,
	"API_KEY_INVALID":              ConfigurationMissing,
	"permission-denied":            PermissionDenied,
	"PERMISSION_DENIED":            PermissionDenied,
	"auth/user-disabled":           PermissionDenied,
	"USER_DISABLED":                PermissionDenied,
	"auth/email-already-in-use":    EmailExists,
	"EMAIL_EXISTS":                 EmailExists,
	"auth/weak-password":           WeakSecret,
	"WEAK_PASSWORD":                WeakSecret,
}

const permissionDeniedText = "missing or insufficient permissions"

// MapError turns any adapter error into an *AuthError. nil stays nil.
func MapError(err error) *AuthError {
	if err == nil {
		return nil
	}

	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}

	var ce *CodeError
	if errors.As(err, &ce) {
		if kind, ok := codeKinds[ce.Code]; ok {
			return &AuthError{Kind: kind, Code: ce.Code, Err: err}
		}
		if strings.Contains(strings.ToLower(ce.Message), permissionDeniedText) {
			return &AuthError{Kind: PermissionDenied, Code: ce.Code, Err: err}
		}
		return &AuthError{Kind: Unknown, Code: ce.Code, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &AuthError{Kind: NetworkError, Err: err}
	}
	if strings.Contains(strings.ToLower(err.Error()), permissionDeniedText) {
		return &AuthError{Kind: PermissionDenied, Err: err}
	}
	return &AuthError{Kind: Unknown, Err: err}
}
