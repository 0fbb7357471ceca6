package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// userID extracts the authenticated user id stored by the JWT
// middleware.  Routes behind JWTAuth always carry it; a zero return
// means the handler was wired without auth, which is a routing bug.
func userID(c echo.Context) uint64 {
	switch v := c.Get("user_id").(type) {
	case uint64:
		return v
	case float64:
		return uint64(v)
	case string:
		id, _ := strconv.ParseUint(v, 10, 64)
		return id
	default:
		return 0
	}
}

// pathID parses the named numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// rowLabel converts a zero-based row index to its spreadsheet-style
// label: 0->A, 25->Z, 26->AA.
func rowLabel(i int) string {
	label := ""
	for i >= 0 {
		label = string(rune('A'+i%26)) + label
		i = i/26 - 1
	}
	return label
}
