package handlers

import (
	"strconv"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/api/middleware"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
	"github.com/gofiber/fiber/v2"
)

func ClientID(c *fiber.Ctx) int64 {
	clientID, _ := c.Locals(middleware.LocalClientID).(int64)
	return clientID
}

func IsAdmin(c *fiber.Ctx) bool {
	role, _ := c.Locals(middleware.LocalRole).(string)
	return role == transfer.RoleAdmin
}

// actingClient is the client a request works on. Admins name it explicitly,
// everyone else acts for themselves.
func actingClient(c *fiber.Ctx, requested int64) int64 {
	if IsAdmin(c) {
		return requested
	}
	return ClientID(c)
}

// canAccess reports whether the caller may read or change a record owned
// by clientID.
func canAccess(c *fiber.Ctx, clientID int64) bool {
	return IsAdmin(c) || ClientID(c) == clientID
}

func paramID(c *fiber.Ctx, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
