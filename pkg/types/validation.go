package types

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entrans "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	translator, _ = uni.GetTranslator("en")
	_ = entrans.RegisterDefaultTranslations(validate, translator)

	// Report field errors under JSON names instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// FieldError pins a validation failure to one field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError aggregates the field errors of one payload.
type ValidationError struct {
	Fields []FieldError
}

func (err *ValidationError) Error() string {
	if len(err.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(err.Fields))
	for _, f := range err.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ValidateStruct runs tag validation on v and returns a
// *ValidationError describing every failing field, or nil.
func ValidateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
		for _, fe := range verrs {
			out.Fields = append(out.Fields, FieldError{
				Field: fe.Field(),
				Error: fe.Translate(translator),
			})
		}
		return out
	}
	return nil
}
