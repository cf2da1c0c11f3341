package auth

import "strings"

// validateRegister checks registration input field by field, returning the
// first problem found.
func validateRegister(username, email, password string) []FieldError {
	if len(username) <= 2 {
		return []FieldError{{Field: "username", Message: "username is not long enough"}}
	}
	if strings.Contains(username, "@") {
		return []FieldError{{Field: "username", Message: "username cannot include an '@' sign"}}
	}
	if !strings.Contains(email, "@") {
		return []FieldError{{Field: "email", Message: "email is invalid"}}
	}
	if len(password) < 3 {
		return []FieldError{{Field: "password", Message: "password is not long enough"}}
	}
	return nil
}
