// Package auth implements the controller login check. The demo accepts a
// single fixed credential pair; there is no hashing and no session.
package auth

import "errors"

const (
	controllerUser     = "controller"
	controllerPassword = "password123"
)

// ErrInvalidCredentials is returned for any rejected login, including empty input.
var ErrInvalidCredentials = errors.New("Invalid username or password.")

// Login checks the credential pair.
func Login(username, password string) error {
	if username != controllerUser || password != controllerPassword {
		return ErrInvalidCredentials
	}
	return nil
}
