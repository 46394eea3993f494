package schedimport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ybsk00/hospital-ops-suit-sub002/internal/platform/auth"
	"github.com/ybsk00/hospital-ops-suit-sub002/internal/platform/sheet"
	"github.com/ybsk00/hospital-ops-suit-sub002/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints: admin, registrar, nurse, physician
	readGroup := api.Group("", auth.RequireRole("admin", "registrar", "nurse", "physician"))
	readGroup.GET("/schedule-imports", h.ListImports)
	readGroup.GET("/schedule-imports/:id", h.GetImport)
	readGroup.GET("/schedule-imports/:id/errors", h.ListErrors)
	readGroup.GET("/schedule-imports/:id/bookings", h.ListBookings)

	// Write endpoints: admin, registrar
	writeGroup := api.Group("", auth.RequireRole("admin", "registrar"))
	writeGroup.POST("/schedule-imports/preview", h.Preview)
	writeGroup.POST("/schedule-imports", h.CreateImport)
}

// readRequest builds an ImportRequest from a multipart form with a "file"
// part and convention, year, month, sheet and force fields.
func readRequest(c echo.Context) (*ImportRequest, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	conv, err := sheet.ParseConvention(c.FormValue("convention"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	month, err := strconv.Atoi(c.FormValue("month"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "month is required")
	}
	var year int
	if v := c.FormValue("year"); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid year")
		}
	}
	var force bool
	if v := c.FormValue("force"); v != "" {
		if force, err = strconv.ParseBool(v); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid force flag")
		}
	}

	return &ImportRequest{
		FileName:   fh.Filename,
		Content:    content,
		Sheet:      c.FormValue("sheet"),
		Convention: conv,
		Target:     sheet.Target{Year: year, Month: time.Month(month)},
		Force:      force,
	}, nil
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrImportNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "import not found")
	case errors.Is(err, ErrEmptyFile), errors.Is(err, ErrInvalidRequest),
		errors.Is(err, sheet.ErrInvalidTarget), errors.Is(err, sheet.ErrUnknownConvention):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, sheet.ErrUnreadableFile):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Preview(c echo.Context) error {
	req, err := readRequest(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Preview(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) CreateImport(c echo.Context) error {
	req, err := readRequest(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Import(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	if res.Duplicate {
		return c.JSON(http.StatusOK, res)
	}
	c.Response().Header().Set(echo.HeaderLocation, fmt.Sprintf("%s/%s", c.Request().URL.Path, res.Import.ID))
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetImport(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	imp, err := h.svc.GetImport(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, imp)
}

func (h *Handler) ListImports(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListImports(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, c.Request().URL.Path))
}

func (h *Handler) ListErrors(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	errs, err := h.svc.ListErrors(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if errs == nil {
		errs = []*ImportError{}
	}
	return c.JSON(http.StatusOK, errs)
}

func (h *Handler) ListBookings(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBookings(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, c.Request().URL.Path))
}
