package validation

import (
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator with the custom tags registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("lonlat", validateLonLat)
		instance = v
	})
	return instance
}

// Struct validates a struct using its `validate` tags.
func Struct(value any) error {
	return Validator().Struct(value)
}

// validateLonLat accepts a [longitude, latitude] pair within range.
func validateLonLat(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Slice && field.Kind() != reflect.Array {
		return false
	}
	if field.Len() != 2 {
		return false
	}
	lon, ok := floatAt(field, 0)
	if !ok {
		return false
	}
	lat, ok := floatAt(field, 1)
	if !ok {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

func floatAt(field reflect.Value, index int) (float64, bool) {
	item := field.Index(index)
	switch item.Kind() {
	case reflect.Float32, reflect.Float64:
		return item.Float(), true
	default:
		return 0, false
	}
}

// EchoValidator adapts the shared validator to echo.Validator.
type EchoValidator struct{}

func (EchoValidator) Validate(i interface{}) error {
	return Struct(i)
}
