package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Envelope is the body of every JSON reply: Data on success, Errors otherwise.
type Envelope struct {
	Status int         `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Errors interface{} `json:"errors,omitempty"`
}

// FieldError is one rejected request field.
type FieldError struct {
	Code    string                 `json:"code"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

func OK(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Envelope{Status: http.StatusOK, Data: data})
}

// Invalid answers 400 with the errors returned by BindAndValidate.
func Invalid(c echo.Context, errs []FieldError) error {
	return c.JSON(http.StatusBadRequest, Envelope{Status: http.StatusBadRequest, Errors: errs})
}

// Fail reports err with the status m assigns to it.
func Fail(c echo.Context, err error, m ErrorMapper) error {
	appErr := m.Map(err)
	return c.JSON(appErr.Status, Envelope{Status: appErr.Status, Errors: []*AppError{appErr}})
}
