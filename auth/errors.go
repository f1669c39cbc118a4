package auth

import "errors"

var (
	// ErrAuthenticationFailed is the only authentication error shown to clients.
	ErrAuthenticationFailed = errors.New("auth: authentication failed")

	ErrInvalidAccessToken  = errors.New("auth: invalid access token")
	ErrExpiredAccessToken  = errors.New("auth: access token expired")
	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")
	ErrExpiredRefreshToken = errors.New("auth: refresh token expired")

	// ErrUnknownRole means a role is not present in the permission table.
	// It is a configuration or data fault, not a missing grant.
	ErrUnknownRole            = errors.New("auth: unknown role")
	ErrInsufficientPermission = errors.New("auth: insufficient permission")

	ErrResetCodeInvalid = errors.New("auth: reset code invalid or expired")
	ErrUserNotFound     = errors.New("auth: user not found")

	// ErrStorage wraps every failure of the credential store.
	ErrStorage = errors.New("auth: storage failure")
)

// IsAuthenticationError reports whether err should be answered with 401.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrInvalidAccessToken) ||
		errors.Is(err, ErrExpiredAccessToken) ||
		errors.Is(err, ErrInvalidRefreshToken) ||
		errors.Is(err, ErrExpiredRefreshToken)
}
