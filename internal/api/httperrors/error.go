package httperrors

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// Error types exposed to clients.
const (
	TypeGeneric  = "generic"
	TypeNotFound = "not_found"
)

// HTTPError is the JSON error envelope returned by the management API.
type HTTPError struct {
	Code     int    `json:"code"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Detail   string `json:"detail,omitempty"`
	Internal error  `json:"-"`
}

func NewHTTPError(code int, errorType string, title string) *HTTPError {
	return &HTTPError{
		Code:  code,
		Type:  errorType,
		Title: title,
	}
}

func NewHTTPErrorWithDetail(code int, errorType string, title string, detail string) *HTTPError {
	e := NewHTTPError(code, errorType, title)
	e.Detail = detail
	return e
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("HTTPError %d (%s): %s", e.Code, e.Type, e.Title)
	if e.Detail != "" {
		msg += " - " + e.Detail
	}
	if e.Internal != nil {
		msg += fmt.Sprintf(", %v", e.Internal)
	}
	return msg
}

// HandlerFunc renders HTTPError and echo.HTTPError values as the JSON
// envelope; anything else becomes an opaque 500.
func HandlerFunc(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *HTTPError
	switch e := err.(type) {
	case *HTTPError:
		httpErr = e
	case *echo.HTTPError:
		httpErr = NewHTTPError(e.Code, TypeGeneric, fmt.Sprintf("%v", e.Message))
	default:
		httpErr = NewHTTPError(500, TypeGeneric, "Internal Server Error")
		httpErr.Internal = err
	}

	if err := c.JSON(httpErr.Code, httpErr); err != nil {
		c.Logger().Error(err)
	}
}
