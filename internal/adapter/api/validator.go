package api

import (
	"github.com/go-playground/validator/v10"

	"scrapmart/internal/domain/entity"
)

type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator returns the echo validator. Besides the stock tags it knows
// "entityid", which accepts ids usable in session triples and room keys.
func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
		return entity.ValidateID(fl.Field().String()) == nil
	})
	return &CustomValidator{validator: v}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
