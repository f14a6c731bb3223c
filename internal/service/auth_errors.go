package service

import "errors"

// Registration flow specific errors used by handlers for stable error code mapping.
var (
	ErrInvalidToken        = errors.New("registration token not found")
	ErrTokenAlreadyUsed    = errors.New("registration token already used")
	ErrTokenExpired        = errors.New("registration token expired")
	ErrRegistrationPending = errors.New("registration already pending for this email")
	ErrUserExists          = errors.New("user already exists")
	ErrUserNotFound        = errors.New("no account found for this email")
	ErrDuplicateRequest    = errors.New("a link was just sent to this email")
	ErrEmailDelivery       = errors.New("failed to deliver email")
	ErrInvalidCredential   = errors.New("invalid sign-in credential")
	ErrCredentialUsed      = errors.New("sign-in credential already used")
)
