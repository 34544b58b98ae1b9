package conversion

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fhirconv/fhirconv/internal/platform/auth"
	"github.com/fhirconv/fhirconv/internal/platform/parser"
	"github.com/fhirconv/fhirconv/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/conversions", h.StartConversion)
	api.GET("/conversions/history", h.History)
	api.GET("/conversions/by-request/:requestId", h.GetByRequest)
	api.GET("/conversions/:id/status", h.GetStatus)
	api.GET("/conversions/:id/preview", h.GetPreview)
	api.GET("/conversions/:id/download", h.DownloadBundle)
	api.POST("/conversions/:id/reset", h.Reset)
}

type startConversionPayload struct {
	FileID        uuid.UUID             `json:"fileId"`
	RequestID     *uuid.UUID            `json:"requestId,omitempty"`
	FieldMappings []parser.FieldMapping `json:"fieldMappings"`
}

func (h *Handler) StartConversion(c echo.Context) error {
	userID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}

	var payload startConversionPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if payload.FileID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "fileId is required")
	}

	resp, err := h.svc.StartConversion(c.Request().Context(), userID, payload.FileID,
		payload.RequestID, payload.FieldMappings)
	if err != nil {
		if strings.Contains(err.Error(), "already in progress") {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, resp)
}

func (h *Handler) GetStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	resp, err := h.svc.GetStatus(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetByRequest(c echo.Context) error {
	requestID, err := uuid.Parse(c.Param("requestId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid requestId")
	}
	resp, err := h.svc.GetByRequestID(c.Request().Context(), requestID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) History(c echo.Context) error {
	userID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	items, err := h.svc.History(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	page := pagination.FromContext(c)
	total := len(items)
	start := page.Offset
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items[start:end], total, page.Limit, page.Offset))
}

func (h *Handler) GetPreview(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	preview, err := h.svc.GetPreview(c.Request().Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not completed") {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, preview)
}

func (h *Handler) DownloadBundle(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	data, err := h.svc.DownloadBundle(c.Request().Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not completed") {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		`attachment; filename="bundle-`+id.String()+`.json"`)
	return c.Blob(http.StatusOK, "application/fhir+json", data)
}

func (h *Handler) Reset(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	userID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	if err := h.svc.Reset(c.Request().Context(), id, userID); err != nil {
		if strings.Contains(err.Error(), "not authorized") {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "reset"})
}
