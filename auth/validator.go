package auth

import (
	"chat-relay/errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const specialCharacters = "!@#$%^&*"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required_without=Email"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type GroupRequest struct {
	Name    string   `json:"name" validate:"required,min=1,max=64"`
	Members []string `json:"members" validate:"dive,required"`
}

type MessageRequest struct {
	ReceiverID string `json:"receiverId" validate:"required_without=GroupID,excluded_with=GroupID"`
	GroupID    string `json:"groupId" validate:"required_without=ReceiverID"`
	Content    string `json:"content" validate:"required,max=4096"`
}

type GroupMessageRequest struct {
	Content string `json:"content" validate:"required,max=4096"`
}

type HistoryRequest struct {
	WithUserID string `validate:"required_without=GroupID,excluded_with=GroupID"`
	GroupID    string `validate:"required_without=WithUserID"`
	Page       int    `validate:"min=1"`
	PageSize   int    `validate:"min=25,max=100"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every failing field and matches errors.ErrValidation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("%v: %s", errors.ErrValidation, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return errors.ErrValidation
}

func ValidateRegister(req RegisterRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if !isPasswordComplex(req.Password) {
		return errors.ErrInvalidPassword
	}
	return nil
}

func ValidateLogin(req LoginRequest) error {
	return validateStruct(req)
}

func ValidateGroup(req GroupRequest) error {
	return validateStruct(req)
}

func ValidateMessage(req MessageRequest) error {
	return validateStruct(req)
}

func ValidateGroupMessage(req GroupMessageRequest) error {
	return validateStruct(req)
}

func ValidateHistory(req HistoryRequest) error {
	return validateStruct(req)
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "excluded_with":
		return "cannot be combined with " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}

// isPasswordComplex requires a lowercase letter, an uppercase letter, a digit
// and one of the accepted special characters.
func isPasswordComplex(s string) bool {
	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range s {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case strings.ContainsRune(specialCharacters, char):
			hasSpecial = true
		}
	}
	return hasUpper && hasLower && hasNumber && hasSpecial
}
