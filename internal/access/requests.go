package access

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/database"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/permission"
)

// LoginRequest carries login credentials. The dashboard posts the email in
// the username field; email is accepted as an alias.
type LoginRequest struct {
	Username string `json:"username" validate:"required_without=Email"`
	Email    string `json:"email" validate:"required_without=Username"`
	Password string `json:"password" validate:"required"`
}

// Identifier returns the email the caller logs in with
func (r LoginRequest) Identifier() string {
	if id := strings.TrimSpace(r.Username); id != "" {
		return id
	}
	return strings.TrimSpace(r.Email)
}

// CreateUserRequest is the payload of user creation
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,password_bytes"`
}

// SetPermissionRequest replaces the flags a user holds on one page. Omitted
// flags are false.
type SetPermissionRequest struct {
	Page      string `json:"page" validate:"required,page"`
	CanView   bool   `json:"can_view"`
	CanEdit   bool   `json:"can_edit"`
	CanCreate bool   `json:"can_create"`
	CanDelete bool   `json:"can_delete"`
}

// Flags returns the requested permission flags
func (r SetPermissionRequest) Flags() permission.Flags {
	return permission.Flags{
		CanView:   r.CanView,
		CanEdit:   r.CanEdit,
		CanCreate: r.CanCreate,
		CanDelete: r.CanDelete,
	}
}

// RefreshRequest carries a refresh token for rotation or logout
type RefreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New()

	// Report JSON field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("page", func(fl validator.FieldLevel) bool {
		return permission.Page(fl.Field().String()).Valid()
	})

	// bcrypt only reads the first 72 bytes
	_ = v.RegisterValidation("password_bytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= database.MaxPasswordBytes
	})

	return v
}

// validateRequest converts validator failures into a ValidationError
func (s *Service) validateRequest(req interface{}) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate request: %w", err)
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Message: formatFieldError(fe)})
	}

	return &Error{Kind: KindValidation, Message: "Validation failed", Fields: fields}
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "required_without":
		return fmt.Sprintf("This field is required when %s is not provided", strings.ToLower(fe.Param()))
	case "password_bytes":
		return fmt.Sprintf("Password must be at most %d bytes", database.MaxPasswordBytes)
	case "page":
		return fmt.Sprintf("Invalid page %q", fe.Value())
	default:
		return fmt.Sprintf("Validation failed on %s", fe.Tag())
	}
}
