package http

import (
	"strconv"

	"jobtrack_server/infra/middleware"
	"jobtrack_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// GetOwnerID returns the authenticated owner.
func GetOwnerID(c *fiber.Ctx) (uuid.UUID, error) {
	return middleware.OwnerID(c)
}

// paramUUID parses a path parameter as a uuid.
func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.InvalidInput(name, "must be a uuid")
	}
	return id, nil
}

// queryBool reads an optional boolean; absent means nil.
func queryBool(c *fiber.Ctx, name string) (*bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.InvalidInput(name, "must be true or false")
	}
	return &v, nil
}

// chain prepends middleware to a route handler.
func chain(mw []fiber.Handler, h fiber.Handler) []fiber.Handler {
	handlers := make([]fiber.Handler, 0, len(mw)+1)
	for _, m := range mw {
		if m != nil {
			handlers = append(handlers, m)
		}
	}
	return append(handlers, h)
}
