package entry

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/fahmaliyi/otpvault/errs"
	"github.com/fahmaliyi/otpvault/totp"
)

type entryValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// checker is built once at package initialization; validator.Validate caches
// struct metadata and is safe for concurrent use.
var checker = mustNewValidator()

func mustNewValidator() *entryValidator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return toSnake(fld.Name)
		}
		return name
	})

	enLang := en.New()
	uni := ut.New(enLang, enLang)
	enTrans, ok := uni.GetTranslator("en")
	if !ok {
		panic("entry: english translator not found")
	}
	if err := enTranslations.RegisterDefaultTranslations(validate, enTrans); err != nil {
		panic(err)
	}

	registerCustom(validate, enTrans)

	return &entryValidator{validate: validate, translator: enTrans}
}

func registerCustom(validate *validator.Validate, enTrans ut.Translator) {
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	_ = validate.RegisterValidation("totpsecret", func(fl validator.FieldLevel) bool {
		b, err := totp.DecodeSecret(fl.Field().String())
		if err != nil {
			return false
		}
		return len(b) >= MinSecretLen && len(b) <= MaxSecretLen
	})

	translations := map[string]string{
		"notblank":   "{0} must not be blank",
		"totpsecret": "{0} must be base32 encoding 10 to 64 bytes",
	}
	for tag, text := range translations {
		_ = validate.RegisterTranslation(tag, enTrans,
			func(ut ut.Translator) error {
				return ut.Add(tag, text, false)
			},
			func(ut ut.Translator, fe validator.FieldError) string {
				t, err := ut.T(fe.Tag(), fe.Field())
				if err != nil {
					return fe.Error()
				}
				return t
			},
		)
	}
}

// validateStruct runs struct validation and converts failures into an
// errs validation error keyed by field name.
func validateStruct(msg string, data any) error {
	err := checker.validate.Struct(data)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errs.Wrap(errs.KindValidation, msg, err)
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fe.Translate(checker.translator)
	}
	return errs.Validation(msg, fields)
}

// Validate checks that e can be stored: non-blank name, six or eight
// digits, a step in (0, 300], a supported algorithm and a plausible secret.
func (e Entry) Validate() error {
	return validateStruct("invalid entry", e)
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
