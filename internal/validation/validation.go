// Package validation validates request payloads and converts failures into
// VALIDATION_ERROR envelopes with English messages.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/FallSteph/Syllabuksu/model"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

// custom validation tags & texts
var customTags = []struct {
	tag  string
	text string
	fn   validator.Func
}{
	{"notblank", "{0} must not be blank", notBlank},
	{"role", "{0} must be one of faculty, dept_head, dean, citl, vpaa, admin", validRole},
	{"status", "{0} must be a known syllabus status", validStatus},
	{"action", "{0} must be one of submit, forward, approve, return, resubmit", validAction},
}

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Register the english error messages for validation errors.
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	for _, ct := range customTags {
		_ = validate.RegisterValidation(ct.tag, ct.fn)
		registerTranslation(ct.tag, ct.text)
	}
}

func registerTranslation(tag, text string) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Struct validates v using its `validate` tags. Field failures are returned
// as a VALIDATION_ERROR envelope with one detail per failing field.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate %T: %w", v, err)
	}
	details := make([]model.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, toFieldError(fe))
	}
	return model.NewValidationError(details)
}

// Var validates a single value against tag and returns the field error, or
// nil when the value is valid.
func Var(field string, value any, tag string) *model.FieldError {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &model.FieldError{Field: field, Code: "INVALID", Message: err.Error()}
	}
	fe := toFieldError(verrs[0])
	fe.Field = field
	fe.Message = field + strings.TrimPrefix(fe.Message, verrs[0].Field())
	return &fe
}

func toFieldError(fe validator.FieldError) model.FieldError {
	return model.FieldError{
		Field:   fieldPath(fe),
		Code:    strings.ToUpper(fe.Tag()),
		Message: fe.Translate(translator),
	}
}

// fieldPath drops the root struct name from the namespace so nested fields
// read as "signature" or "filters.status".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// Custom validators

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validRole(fl validator.FieldLevel) bool {
	return model.Role(fl.Field().String()).Valid()
}

func validStatus(fl validator.FieldLevel) bool {
	return model.SyllabusStatus(fl.Field().String()).Valid()
}

func validAction(fl validator.FieldLevel) bool {
	return model.Action(fl.Field().String()).Valid()
}
