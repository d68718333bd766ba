package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"scrapmart/pkg/errors"
)

// currentUserID returns the uid set by the auth middleware.
func currentUserID(c echo.Context) (string, error) {
	userID, ok := c.Get("uid").(string)
	if !ok || userID == "" {
		return "", errors.Unauthorized("Authentication required", nil)
	}
	return userID, nil
}

// queryInt64 parses an optional integer query parameter.
func queryInt64(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.BadRequest(name+" must be an integer", err)
	}
	return v, nil
}
