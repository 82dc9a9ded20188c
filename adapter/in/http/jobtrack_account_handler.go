package http

import (
	"strings"

	"jobtrack_server/core/port/in"
	"jobtrack_server/pkg/apperr"
	"jobtrack_server/pkg/logger"
	"jobtrack_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// AccountHandler serves linked-account management and manual sync.
type AccountHandler struct {
	accountService in.AccountService
}

func NewAccountHandler(accountService in.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// Register mounts the routes. auth runs on every route; syncLimit, when set,
// runs after auth on the sync routes.
func (h *AccountHandler) Register(r fiber.Router, auth, syncLimit fiber.Handler) {
	authed := []fiber.Handler{auth}
	limited := []fiber.Handler{auth, syncLimit}

	r.Get("/accounts/connect", chain(authed, h.Connect)...)
	r.Post("/accounts/link", chain(authed, h.Link)...)
	r.Get("/accounts", chain(authed, h.List)...)
	r.Patch("/accounts/:id", chain(authed, h.Update)...)
	r.Delete("/accounts/:id", chain(authed, h.Unlink)...)
	r.Post("/accounts/:id/sync", chain(limited, h.Sync)...)
	r.Get("/accounts/:id/runs", chain(authed, h.Runs)...)
	r.Post("/sync", chain(limited, h.SyncAll)...)
}

// Connect returns the consent URL and the state bound to the caller.
func (h *AccountHandler) Connect(c *fiber.Ctx) error {
	ownerID, err := GetOwnerID(c)
	if err != nil {
		return err
	}

	authURL, state, err := h.accountService.AuthURL(c.Context(), ownerID)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{
		"auth_url": authURL,
		"state":    state,
	})
}

type linkRequest struct {
	Code string `json:"code"`
}

// Link finishes the consent flow for clients that receive the code themselves.
func (h *AccountHandler) Link(c *fiber.Ctx) error {
	ownerID, err := GetOwnerID(c)
	if err != nil {
		return err
	}

	var req linkRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		return apperr.MissingField("code")
	}

	view, err := h.accountService.LinkAccount(c.Context(), ownerID, req.Code)
	if err != nil {
		return err
	}
	logger.Info("[AccountHandler.Link] owner=%s linked account=%s", ownerID, view.ID)
	return response.OK(c, view)
}

func (h *AccountHandler) List(c *fiber.Ctx) error {
	ownerID, err := GetOwnerID(c)
	if err != nil {
		return err
	}

	views, err := h.accountService.ListAccounts(c.Context(), ownerID)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, views, &response.Meta{Count: len(views)})
}

type updateRequest struct {
	SyncEnabled *bool `json:"sync_enabled"`
}

func (h *AccountHandler) Update(c *fiber.Ctx) error {
	ownerID, err := GetOwnerID(c)
	if err != nil {
		return err
	}
	accountID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if req.SyncEnabled == nil {
		return apperr.MissingField("sync_enabled")
	}

	view, err := h.accountService.SetEnabled(c.Context(), ownerID, accountID, *req.SyncEnabled)
	if err != nil {
		return err
	}
	return response.OK(c, view)
}

// Unlink removes the account. Records already synced from it stay.
func (h *AccountHandler) Unlink(c *fiber.Ctx) error {
	ownerID, err := GetOwnerID(c)
	if err != nil {
		return err
	}
	accountID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.accountService.Unlink(c.Context(), ownerID, accountID); err != nil {
		return err
	}
	return response.NoContent(c)
}

// Sync runs one account now and returns the run's counts.
func (h *AccountHandler) Sync(c *fiber.Ctx) error {
	ownerID, err := GetOwnerID(c)
	if err != nil {
		return err
	}
	accountID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	result, err := h.accountService.TriggerSync(c.Context(), ownerID, accountID)
	if err != nil {
		return err
	}
	return response.OK(c, result)
}

// SyncAll runs every enabled account of the caller.
func (h *AccountHandler) SyncAll(c *fiber.Ctx) error {
	ownerID, err := GetOwnerID(c)
	if err != nil {
		return err
	}

	result, err := h.accountService.TriggerSyncAll(c.Context(), ownerID)
	if err != nil {
		return err
	}
	return response.OK(c, result)
}

func (h *AccountHandler) Runs(c *fiber.Ctx) error {
	ownerID, err := GetOwnerID(c)
	if err != nil {
		return err
	}
	accountID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	page := response.GetPage(c, defaultRunLimit, maxRunLimit)
	runs, err := h.accountService.ListSyncRuns(c.Context(), ownerID, accountID, page.Limit)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, runs, &response.Meta{Count: len(runs), Limit: page.Limit})
}
