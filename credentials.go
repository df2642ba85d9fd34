package authservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

const (
	minEmailLength    = 5
	maxEmailLength    = 60
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores or rejects anything longer
	passwordSymbols   = `!@#$%^&*()_+-=[]{};:'",.<>/?`
)

const passwordPolicyMessage = "Password must be at least 8 characters long, include uppercase and lowercase letters, a number, and a special character."

// FieldError is a single validation failure tied to a request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors is the result of validating a request. Empty means valid.
type FieldErrors []FieldError

func (f FieldErrors) Error() string {
	msgs := make([]string, len(f))
	for i, fe := range f {
		msgs[i] = fe.Field + ": " + fe.Message
	}
	return strings.Join(msgs, "; ")
}

// Err converts the list into a field-tagged validation AuthError carrying
// the first failure, or nil when there is nothing to report.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return WrapAuthError(KindValidation, f[0].Message, f[0].Field, f)
}

func (f *FieldErrors) add(field, message string) {
	*f = append(*f, FieldError{Field: field, Message: message})
}

// validateEmail appends the failures for an email field.
func validateEmail(errs *FieldErrors, field, email string) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		errs.add(field, "email is required.")
	case len(email) < minEmailLength:
		errs.add(field, "Email must be at least 5 characters long.")
	case len(email) > maxEmailLength:
		errs.add(field, "Email must not exceed 60 characters.")
	case !emailRegex.MatchString(email):
		errs.add(field, "email must be a valid email address.")
	}
}

// validatePassword enforces the strength policy: at least 8 characters with
// an upper case letter, a lower case letter, a digit and a symbol.
func validatePassword(errs *FieldErrors, field, password string) {
	if password == "" {
		errs.add(field, "Password cannot be empty.")
		return
	}
	if len(password) > maxPasswordLength {
		errs.add(field, "Password must not exceed 72 bytes.")
		return
	}
	if !PasswordMeetsPolicy(password) {
		errs.add(field, passwordPolicyMessage)
	}
}

// PasswordMeetsPolicy reports whether password satisfies the strength policy.
func PasswordMeetsPolicy(password string) bool {
	if len(password) < minPasswordLength {
		return false
	}
	var upper, lower, digit, symbol bool
	for _, c := range password {
		switch {
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= '0' && c <= '9':
			digit = true
		case strings.ContainsRune(passwordSymbols, c):
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}

func validateCode(errs *FieldErrors, field string, code CodeValue) {
	s := string(code)
	if s == "" {
		errs.add(field, "code is required.")
		return
	}
	if len(s) != codeDigits {
		errs.add(field, "code must be a 6-digit number.")
		return
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			errs.add(field, "code must be a 6-digit number.")
			return
		}
	}
}

// CodeValue is a one-time code as submitted by a client. Clients send it
// either as a JSON string or a JSON number.
type CodeValue string

func (c *CodeValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = CodeValue(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("code must be a string or a number")
	}
	*c = CodeValue(n.String())
	return nil
}

// =============================================================================
// Request records
// =============================================================================

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role,omitempty"`
}

func (r *SignupRequest) Validate() FieldErrors {
	var errs FieldErrors
	validateEmail(&errs, "email", r.Email)
	validatePassword(&errs, "password", r.Password)
	if r.Role != "" && !r.Role.Valid() {
		errs.add("role", `role must be one of "mentee" or "mentor".`)
	}
	return errs
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate only checks shape. The strength policy is not applied at sign in
// so accounts created under an older policy can still log in.
func (r *SigninRequest) Validate() FieldErrors {
	var errs FieldErrors
	validateEmail(&errs, "email", r.Email)
	if r.Password == "" {
		errs.add("password", "Password cannot be empty.")
	}
	return errs
}

type SendCodeRequest struct {
	Email string `json:"email"`
}

func (r *SendCodeRequest) Validate() FieldErrors {
	var errs FieldErrors
	validateEmail(&errs, "email", r.Email)
	return errs
}

type VerifyCodeRequest struct {
	Email string    `json:"email"`
	Code  CodeValue `json:"code"`

	// ProvidedCodeValue is accepted as an alias of Code.
	ProvidedCodeValue CodeValue `json:"providedCodeValue,omitempty"`
}

func (r *VerifyCodeRequest) code() CodeValue {
	if r.Code != "" {
		return r.Code
	}
	return r.ProvidedCodeValue
}

func (r *VerifyCodeRequest) Validate() FieldErrors {
	var errs FieldErrors
	validateEmail(&errs, "email", r.Email)
	validateCode(&errs, "code", r.code())
	return errs
}

type ResetPasswordRequest struct {
	Email             string    `json:"email"`
	Code              CodeValue `json:"code"`
	ProvidedCodeValue CodeValue `json:"providedCodeValue,omitempty"`
	NewPassword       string    `json:"newPassword"`
}

func (r *ResetPasswordRequest) code() CodeValue {
	if r.Code != "" {
		return r.Code
	}
	return r.ProvidedCodeValue
}

func (r *ResetPasswordRequest) Validate() FieldErrors {
	var errs FieldErrors
	validateEmail(&errs, "email", r.Email)
	validateCode(&errs, "code", r.code())
	validatePassword(&errs, "newPassword", r.NewPassword)
	return errs
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (r *ChangePasswordRequest) Validate() FieldErrors {
	var errs FieldErrors
	if r.OldPassword == "" {
		errs.add("oldPassword", "Password cannot be empty.")
	}
	validatePassword(&errs, "newPassword", r.NewPassword)
	return errs
}

type ChangeRoleRequest struct {
	Role Role `json:"role"`
}

func (r *ChangeRoleRequest) Validate() FieldErrors {
	var errs FieldErrors
	if !r.Role.Valid() {
		errs.add("role", `role must be one of "mentee" or "mentor".`)
	}
	return errs
}

type PostRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (r *PostRequest) Validate() FieldErrors {
	var errs FieldErrors
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	if r.Title == "" {
		errs.add("title", "title is required!")
	}
	if r.Description == "" {
		errs.add("description", "description is required!")
	}
	return errs
}
