package middleware

// identity.go holds the context keys JWTAuth fills in and the helpers
// handlers and other middleware use to read them back.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// UserID returns the authenticated user's id.  ok is false for anonymous
// requests.
func UserID(c echo.Context) (uint64, bool) {
	switch v := c.Get(CtxUserID).(type) {
	case uint64:
		return v, v != 0
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		return id, err == nil && id != 0
	default:
		return 0, false
	}
}

// Role returns the authenticated user's role or "" for anonymous requests.
func Role(c echo.Context) string {
	s, _ := c.Get(CtxRole).(string)
	return s
}

// identityKey identifies the caller for rate limiting; anonymous
// requests share "anon".
func identityKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
