package domain

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrFollowNotFound = errors.New("follow rule not found")
)
