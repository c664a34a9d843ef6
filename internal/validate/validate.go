// Package validate checks request bodies and import files with
// go-playground/validator and renders field errors in English.
package validate

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var (
	once  sync.Once
	v     *govalidator.Validate
	trans ut.Translator
)

func setup() {
	v = govalidator.New(govalidator.WithRequiredStructEnabled())

	// Field names in messages follow the json/yaml tags.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "yaml"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	_ = v.RegisterValidation("clock", func(fl govalidator.FieldLevel) bool {
		_, err := time.Parse(database.ClockLayout, fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("weekday", func(fl govalidator.FieldLevel) bool {
		_, err := database.ParseWeekday(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("date", func(fl govalidator.FieldLevel) bool {
		_, err := time.Parse(database.DateLayout, fl.Field().String())
		return err == nil
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	custom := map[string]string{
		"clock":   "{0} must be a time in HH:MM format",
		"weekday": "{0} must be a weekday name",
		"date":    "{0} must be a date in YYYY-MM-DD format",
	}
	for tag, msg := range custom {
		_ = v.RegisterTranslation(tag, trans,
			func(ut ut.Translator) error { return ut.Add(tag, msg, true) },
			func(ut ut.Translator, fe govalidator.FieldError) string {
				t, _ := ut.T(fe.Tag(), fe.Field())
				return t
			})
	}
}

// Struct validates s and returns nil or the validator error.
func Struct(s any) error {
	once.Do(setup)
	return v.Struct(s)
}

// Fields returns field name to message for a validation error. Other errors
// are returned under "detail".
func Fields(err error) map[string]string {
	once.Do(setup)
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	fields["detail"] = err.Error()
	return fields
}

// Error flattens a validation error into one message, fields in namespace order.
func Error(err error) error {
	if err == nil {
		return nil
	}
	once.Do(setup)

	var ve govalidator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fe.Namespace()+": "+fe.Translate(trans))
	}
	return errors.New(strings.Join(msgs, "; "))
}
