package http

import (
	"jobtrack_server/core/domain"
	"jobtrack_server/core/port/in"
	"jobtrack_server/pkg/apperr"
	"jobtrack_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultApplicationLimit = 50
	maxApplicationLimit     = 200
)

// ApplicationHandler serves the dashboard's records.
type ApplicationHandler struct {
	accountService in.AccountService
}

func NewApplicationHandler(accountService in.AccountService) *ApplicationHandler {
	return &ApplicationHandler{accountService: accountService}
}

func (h *ApplicationHandler) Register(r fiber.Router, auth fiber.Handler) {
	r.Get("/applications", chain([]fiber.Handler{auth}, h.List)...)
	r.Get("/applications/:id", chain([]fiber.Handler{auth}, h.Get)...)
	r.Patch("/applications/:id", chain([]fiber.Handler{auth}, h.Update)...)
}

// List returns the caller's records, newest first. ?needs_review=true|false
// filters on the review flag.
func (h *ApplicationHandler) List(c *fiber.Ctx) error {
	ownerID, err := GetOwnerID(c)
	if err != nil {
		return err
	}
	needsReview, err := queryBool(c, "needs_review")
	if err != nil {
		return err
	}

	page := response.GetPage(c, defaultApplicationLimit, maxApplicationLimit)
	records, err := h.accountService.ListApplications(c.Context(), ownerID, in.ListOptions{
		NeedsReview: needsReview,
		Limit:       page.Limit,
		Offset:      page.Offset,
	})
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, records, response.MetaFor(page, len(records)))
}

func (h *ApplicationHandler) Get(c *fiber.Ctx) error {
	ownerID, err := GetOwnerID(c)
	if err != nil {
		return err
	}
	rec, err := h.accountService.GetApplication(c.Context(), ownerID, c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, rec)
}

// Update applies the owner's correction of company, role, status or notes.
// Absent fields are left as they are.
func (h *ApplicationHandler) Update(c *fiber.Ctx) error {
	ownerID, err := GetOwnerID(c)
	if err != nil {
		return err
	}

	var edit domain.ApplicationEdit
	if err := c.BodyParser(&edit); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	rec, err := h.accountService.UpdateApplication(c.Context(), ownerID, c.Params("id"), edit)
	if err != nil {
		return err
	}
	return response.OK(c, rec)
}
