package repository

import "errors"

var (
	// ErrInvalidArgument marks caller misuse, e.g. a zero token delta.
	// No state is changed when it is returned.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientBalance is returned when an adjustment would leave a
	// user's token balance negative. The balance is left untouched.
	ErrInsufficientBalance = errors.New("insufficient token balance")

	ErrJobNotFound  = errors.New("job not found")
	ErrUserNotFound = errors.New("user not found")
)
