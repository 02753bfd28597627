package apperror

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var linkTokenPattern = regexp.MustCompile(`^\d{6}$`)

// ConsentValidator accepts the LINE consent choices, empty meaning unanswered.
var ConsentValidator = func(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", "あり", "なし":
		return true
	}
	return false
}

// TrimTypeValidator accepts the side/back trim choices.
var TrimTypeValidator = func(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", "刈り上げ", "ツーブロック", "なし":
		return true
	}
	return false
}

// LinkTokenValidator accepts exactly six digits.
var LinkTokenValidator = func(fl validator.FieldLevel) bool {
	return linkTokenPattern.MatchString(fl.Field().String())
}

// NewValidator returns a validator with the karte tags registered and
// field names reported by their json tag.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("consent", ConsentValidator)
	_ = v.RegisterValidation("trimtype", TrimTypeValidator)
	_ = v.RegisterValidation("linktoken", LinkTokenValidator)
	return v
}
