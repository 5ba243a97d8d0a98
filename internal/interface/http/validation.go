package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/learnhub/learnhub/internal/domain/activity"
)

const (
	notBlankTag     = "notblank"
	activityTypeTag = "activity_type"
)

// Validator validates request DTOs and renders errors keyed by JSON field name.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// NewValidator builds a validator with English messages and the custom tags.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_en := en.New()
	uni := ut.New(_en, _en)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		return ok && strings.TrimSpace(str) != ""
	})
	_ = v.RegisterValidation(activityTypeTag, func(fl validator.FieldLevel) bool {
		_, err := activity.ParseType(fl.Field().String())
		return err == nil
	})

	noop := func(ut.Translator) error { return nil }
	for _, tag := range []string{notBlankTag, activityTypeTag} {
		_ = v.RegisterTranslation(tag, trans, noop, translateCustom)
	}

	return &Validator{validate: v, translator: trans}
}

func translateCustom(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return "this field cannot be blank"
	case activityTypeTag:
		return fmt.Sprintf("%v is not a known activity type", fe.Value())
	default:
		return ""
	}
}

// Struct validates dst and returns field errors, or nil.
func (v *Validator) Struct(dst any) map[string]string {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Translate(v.translator)
	}
	return fields
}

// decodeAndValidate reads a JSON body into dst and validates it. On failure it
// writes the 400 response and returns false.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large", nil)
		case errors.Is(err, io.EOF):
			s.writeError(w, r, http.StatusBadRequest, "validation_error", "Request body is required", nil)
		default:
			s.writeError(w, r, http.StatusBadRequest, "validation_error", "Malformed JSON body", err.Error())
		}
		return false
	}

	if fields := s.validator.Struct(dst); fields != nil {
		s.writeError(w, r, http.StatusBadRequest, "validation_error", "Request validation failed", fields)
		return false
	}
	return true
}
