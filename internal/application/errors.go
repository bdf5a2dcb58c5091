package application

import "errors"

var (
	// ErrTokenNotFound covers unknown, already-consumed and expired tokens
	// alike; callers cannot probe which one it was.
	ErrTokenNotFound = errors.New("verification session not found or expired")

	// ErrNotVerified means the member has no identity mapping.
	ErrNotVerified = errors.New("member is not verified")

	// ErrExternalProvider wraps failures talking to the identity provider.
	// The member may retry from the start.
	ErrExternalProvider = errors.New("identity provider request failed")

	// ErrRoleMutation wraps Discord role application failures that happened
	// after the identity mapping was committed. The mapping is never rolled
	// back for these.
	ErrRoleMutation = errors.New("role mutation failed")
)
