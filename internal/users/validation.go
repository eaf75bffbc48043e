package users

import (
	"errors"
	"unicode"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
	"github.com/go-playground/validator/v10"
)

const (
	minSignUpPasswordLength = 8
	minAdminPasswordLength  = 6
)

var (
	errWeakPassword      = errors.New("password must contain an upper-case letter and a digit")
	errPasswordsDiffer   = errors.New("password confirmation does not match")
	errShortPassword     = errors.New("password is too short")
	errInvalidRole       = errors.New("role must be superadmin or admin")
	errInvalidEmail      = errors.New("email is not valid")
	errInvalidName       = errors.New("name must be at least 2 characters")
	errMissingCredential = errors.New("email and password are required")
)

var inputValidator = validator.New(validator.WithRequiredStructEnabled())

// SignUpInput is a self-service registration request.
type SignUpInput struct {
	Email           string `json:"email" validate:"required,email"`
	Name            string `json:"name" validate:"required,min=2"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password"`
}

// MemberInput is an admin-created member account with its initial profile.
type MemberInput struct {
	Email      string   `json:"email" validate:"required,email"`
	Password   string   `json:"password" validate:"required,min=6"`
	Name       string   `json:"name"`
	City       string   `json:"city"`
	Status     string   `json:"status"`
	Occupation string   `json:"occupation"`
	About      string   `json:"about"`
	Interests  []string `json:"interests"`
}

// AdminInput creates an administrator account.
type AdminInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     Role   `json:"role" validate:"required"`
}

func validateSignUp(operation string, input SignUpInput) error {
	if err := inputValidator.Struct(input); err != nil {
		return translateValidation(operation, err)
	}
	if !hasUpperAndDigit(input.Password) {
		return apperrors.InvalidRequest(operation, "weak_password", errWeakPassword)
	}
	if input.ConfirmPassword != "" && input.ConfirmPassword != input.Password {
		return apperrors.InvalidRequest(operation, "password_mismatch", errPasswordsDiffer)
	}
	return nil
}

func validateMember(operation string, input MemberInput) error {
	if err := inputValidator.Struct(input); err != nil {
		return translateValidation(operation, err)
	}
	return nil
}

func validateAdmin(operation string, input AdminInput) error {
	if err := inputValidator.Struct(input); err != nil {
		return translateValidation(operation, err)
	}
	if !input.Role.Valid() {
		return apperrors.InvalidRequest(operation, "invalid_role", errInvalidRole)
	}
	return nil
}

// translateValidation maps the first failing field onto a stable reason code.
func translateValidation(operation string, err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return apperrors.InvalidRequest(operation, "invalid_payload", err)
	}
	failed := validationErrors[0]
	switch failed.Field() {
	case "Email":
		if failed.Tag() == "required" {
			return apperrors.InvalidRequest(operation, "missing_credentials", errMissingCredential)
		}
		return apperrors.InvalidRequest(operation, "invalid_email", errInvalidEmail)
	case "Password":
		if failed.Tag() == "required" {
			return apperrors.InvalidRequest(operation, "missing_credentials", errMissingCredential)
		}
		return apperrors.InvalidRequest(operation, "short_password", errShortPassword)
	case "Name":
		return apperrors.InvalidRequest(operation, "invalid_name", errInvalidName)
	case "Role":
		return apperrors.InvalidRequest(operation, "invalid_role", errInvalidRole)
	default:
		return apperrors.InvalidRequest(operation, "invalid_payload", err)
	}
}

func hasUpperAndDigit(password string) bool {
	var upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && digit
}
