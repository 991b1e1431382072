package relay

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by the names the desktop client sends
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// DecodeJSON unmarshals an inbound body into v and validates it.
// Any failure is an input error, so no upstream call is made.
func DecodeJSON(body []byte, v any) error {
	if len(body) == 0 {
		return InputError("request body is empty")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return InputError("invalid JSON body: %v", err)
	}
	return Validate(v)
}

func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, fe := range validationErrors {
			messages = append(messages, describe(fe))
		}
		return InputError("%s", strings.Join(messages, "; "))
	}
	return InputError("%v", err)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of [" + fe.Param() + "]"
	case "base64":
		return fe.Field() + " must be base64 encoded"
	default:
		return fe.Field() + " failed " + fe.Tag() + " validation"
	}
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DecodeBase64 accepts what desktop clients produce: padded or unpadded,
// standard or URL alphabet, optionally wrapped into lines.
func DecodeBase64(field, value string) ([]byte, error) {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, value)
	if compact == "" {
		return nil, InputError("%s is required", field)
	}
	for _, encoding := range base64Encodings {
		if data, err := encoding.DecodeString(compact); err == nil {
			return data, nil
		}
	}
	return nil, InputError("%s must be base64 encoded", field)
}
