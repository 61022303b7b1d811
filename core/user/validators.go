package user

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sapp/core"
)

// MinPasswordLength is the only password policy enforced by the identity provider.
const MinPasswordLength = 6

var (
	roleTag  = "role"
	roleText = "invalid role"

	statusTag  = "status"
	statusText = "invalid status"

	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", MinPasswordLength)
)

func init() {
	InitValidators(core.Validate)
}

// InitValidators registers the profile validators on validate.
func InitValidators(validate *validator.Validate) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, core.Translator, roleTag, roleText)

	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, core.Translator, statusTag, statusText)

	_ = validate.RegisterValidation(pwdMinLenTag, passwordLengthValidation)
	core.RegisterCustomTranslation(validate, core.Translator, pwdMinLenTag, pwdMinLenText)
}

// Custom Validators

// roleValidation checks that the field holds one of AllRoles.
func roleValidation(fl validator.FieldLevel) bool {
	return Role(fl.Field().String()).Valid()
}

func statusValidation(fl validator.FieldLevel) bool {
	return Status(fl.Field().String()).Valid()
}

// passwordLengthValidation counts characters, not bytes.
func passwordLengthValidation(fl validator.FieldLevel) bool {
	return ValidPassword(fl.Field().String())
}

func ValidPassword(pwd string) bool {
	return len([]rune(pwd)) >= MinPasswordLength
}
