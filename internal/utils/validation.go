package utils

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// FieldError is a single failed struct tag rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// ValidateStruct validates a struct and returns formatted errors.
func ValidateStruct(s interface{}) []FieldError {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

// BindAndValidate parses the JSON body into dst and runs its validate tags.
// On failure the 400 response has already been written and handled is true.
func BindAndValidate(c *fiber.Ctx, dst interface{}) (handled bool, err error) {
	if err := c.BodyParser(dst); err != nil {
		return true, BadRequest(c, "Invalid request body")
	}
	if errs := ValidateStruct(dst); len(errs) > 0 {
		return true, Respond(c, fiber.StatusBadRequest, fiber.Map{
			"error":   "validation failed",
			"details": errs,
		})
	}
	return false, nil
}
