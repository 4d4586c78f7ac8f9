package auth

import (
	"context"
	"errors"
	"fmt"
)

// dummyHash is verified against when the email is unknown so both paths
// cost one Argon2id evaluation.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$c29tZXNhbHRzb21lc2FsdA$4p6Qm0xPZ4yq7bEwQyX5G1oXqk7p1rJ0m0H3tq9yG9U"

// Authenticate checks an email/password pair and returns the matching user.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func Authenticate(ctx context.Context, users UserRepository, email, password string) (*User, error) {
	user, err := users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = VerifyPassword(password, dummyHash) //nolint:errcheck // timing equalisation only
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
