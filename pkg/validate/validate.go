package validate

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"ship-notification-service/internal/models"
	"ship-notification-service/pkg/phone"
)

// v is the package-level singleton validator. Custom tags are registered in init.
var v = validator.New()

func init() {
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phone.Valid(fl.Field().String())
	})
	_ = v.RegisterValidation("notification_type", func(fl validator.FieldLevel) bool {
		return models.NotificationType(fl.Field().String()).Valid()
	})
}

// Struct validates s using its validate tags. Failures wrap models.ErrValidation.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("%w: %v", models.ErrValidation, err)
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", models.ErrValidation, strings.Join(msgs, "; "))
	}
	return nil
}
