package echoapi

import (
	"github.com/aurraa/classroom/core/profile"
)

type (
	// SessionResponse is answered by the endpoints that sign a user in.
	SessionResponse struct {
		Profile  profile.Profile `json:"profile"`
		Redirect string          `json:"redirect"`
	}

	RedirectResponse struct {
		Redirect string `json:"redirect"`
	}

	PasswordResetRequest struct {
		Email string `json:"email"`
	}

	RememberedResponse struct {
		Remember bool `json:"remember"`
		profile.Remembered
	}
)

type SuccessResponse struct {
	Success string `json:"success"`
}
