package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

var tagMessages = map[string]string{
	"datetime": "%s must be a date formatted as %s",
	"oneof":    "%s must be one of: %s",
	"min":      "%s must be at least %s",
	"max":      "%s must be at most %s",
	"gt":       "%s must be greater than %s",
	"gte":      "%s must be greater than or equal to %s",
	"lt":       "%s must be less than %s",
	"lte":      "%s must be less than or equal to %s",
}

// BindAndValidate binds the body into req, fills `default` tags and runs the
// `validate` tags. A nil result means req is ready to use.
func BindAndValidate(c echo.Context, req interface{}) []FieldError {
	if err := c.Bind(req); err != nil {
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg = fmt.Sprint(he.Message)
		}
		return []FieldError{{Code: "ERR_BODY", Message: msg}}
	}
	if err := defaults.Set(req); err != nil {
		return []FieldError{{Code: "ERR_DEFAULTS", Message: err.Error()}}
	}

	err := validate.StructCtx(c.Request().Context(), req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []FieldError{{Code: "ERR_INVALID", Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, FieldError{
			Code:    "ERR_" + strings.ToUpper(fe.Tag()),
			Field:   fe.Field(),
			Message: describe(fe),
			Params:  params(fe),
		})
	}
	return out
}

func describe(fe validator.FieldError) string {
	if fe.Tag() == "required" {
		return fe.Field() + " is required"
	}
	format, ok := tagMessages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}

	param := fe.Param()
	if fe.Tag() == "oneof" {
		param = strings.ReplaceAll(param, " ", ", ")
	}
	msg := fmt.Sprintf(format, fe.Field(), param)
	switch {
	case fe.Tag() != "min" && fe.Tag() != "max":
	case fe.Kind() == reflect.String:
		msg += " characters"
	case fe.Kind() == reflect.Slice:
		msg += " items"
	}
	return msg
}

func params(fe validator.FieldError) map[string]interface{} {
	switch fe.Tag() {
	case "required":
		return nil
	case "oneof":
		return map[string]interface{}{"options": strings.Fields(fe.Param())}
	case "datetime":
		return map[string]interface{}{"layout": fe.Param()}
	}
	if fe.Param() == "" {
		return nil
	}
	return map[string]interface{}{"limit": fe.Param()}
}
