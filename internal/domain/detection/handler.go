package detection

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/detect-fields", h.DetectFields)
	api.GET("/conversion-fields", h.AvailableFields)
}

type detectFieldsPayload struct {
	FileID uuid.UUID `json:"fileId"`
}

func (h *Handler) DetectFields(c echo.Context) error {
	var payload detectFieldsPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if payload.FileID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "fileId is required")
	}

	resp, err := h.svc.DetectFields(c.Request().Context(), payload.FileID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) AvailableFields(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"fields": h.svc.AvailableFields()})
}
