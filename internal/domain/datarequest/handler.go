package datarequest

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fhirconv/fhirconv/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/data-requests", h.CreateRequest)
	api.GET("/data-requests", h.ListRequests)
	api.GET("/data-requests/pending", h.ListPending)
	api.GET("/data-requests/:id", h.GetRequest)
	api.PUT("/data-requests/:id/review", h.ReviewRequest, auth.RequireRole("approver"))
}

type createRequestPayload struct {
	GlobalPatientID uuid.UUID `json:"globalPatientId"`
	RequestingOrgID uuid.UUID `json:"requestingOrganizationId"`
	SourceOrgID     uuid.UUID `json:"sourceOrganizationId"`
	Notes           string    `json:"notes"`
}

func (h *Handler) CreateRequest(c echo.Context) error {
	userID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}

	var payload createRequestPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if payload.GlobalPatientID == uuid.Nil || payload.SourceOrgID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "globalPatientId and sourceOrganizationId are required")
	}
	if payload.RequestingOrgID == uuid.Nil {
		// Fall back to the caller's organization claim.
		org, err := uuid.Parse(auth.OrgIDFromContext(c.Request().Context()))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "requestingOrganizationId is required")
		}
		payload.RequestingOrgID = org
	}

	r := &DataRequest{
		GlobalPatientID:  payload.GlobalPatientID,
		RequestingUserID: userID,
		RequestingOrgID:  payload.RequestingOrgID,
		SourceOrgID:      payload.SourceOrgID,
	}
	if payload.Notes != "" {
		r.Notes = &payload.Notes
	}
	if err := h.svc.CreateRequest(c.Request().Context(), r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetRequest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.GetRequest(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "data request not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRequests(c echo.Context) error {
	orgID, err := h.resolveOrg(c)
	if err != nil {
		return err
	}
	requesting := c.QueryParam("direction") != "incoming"
	items, err := h.svc.ListByOrganization(c.Request().Context(), orgID, requesting)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListPending(c echo.Context) error {
	orgID, err := h.resolveOrg(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListPending(c.Request().Context(), orgID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

// resolveOrg takes the organization from the query parameter when given,
// otherwise from the caller's organization claim.
func (h *Handler) resolveOrg(c echo.Context) (uuid.UUID, error) {
	if raw := c.QueryParam("organization_id"); raw != "" {
		orgID, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid organization_id")
		}
		return orgID, nil
	}
	orgID, err := uuid.Parse(auth.OrgIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "organization_id is required")
	}
	return orgID, nil
}

type reviewPayload struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

func (h *Handler) ReviewRequest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	userID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	var payload reviewPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	r, err := h.svc.Review(c.Request().Context(), id, payload.Approve, payload.Notes, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}
