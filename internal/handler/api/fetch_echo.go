package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"FMPull/internal/domain/models"
	"FMPull/internal/usecase"
	xhttp "FMPull/pkg/http"
	xlogger "FMPull/pkg/logger"
)

// DatasetRunner is the part of usecase.Pipeline the handler needs.
type DatasetRunner interface {
	Run(ctx context.Context, req usecase.FetchRequest) (*models.CleanedDataset, error)
	Catalogue() *models.Catalogue
}

// FetchEchoHandler exposes the pipeline over HTTP.
type FetchEchoHandler struct {
	logger   *xlogger.Logger
	pipeline DatasetRunner
	strategy string
}

func NewFetchEchoHandler(logger *xlogger.Logger, p DatasetRunner, strategy string) *FetchEchoHandler {
	return &FetchEchoHandler{logger: logger, pipeline: p, strategy: strategy}
}

func (h *FetchEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/series", h.Series)
	g.POST("/fetch", h.Fetch)
}

func (h *FetchEchoHandler) Health(c echo.Context) error {
	return xhttp.OK(c, map[string]string{"status": "ok", "strategy": h.strategy})
}

func (h *FetchEchoHandler) Series(c echo.Context) error {
	all := h.pipeline.Catalogue().All()
	out := make([]models.SeriesInfo, 0, len(all))
	for _, s := range all {
		out = append(out, models.NewSeriesInfo(s))
	}
	return xhttp.OK(c, out)
}

func (h *FetchEchoHandler) Fetch(c echo.Context) error {
	req := &models.FetchHTTPRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}

	ds, err := h.pipeline.Run(c.Request().Context(), usecase.FetchRequest{
		Symbols:    req.Symbols,
		Series:     req.Series,
		Start:      req.Start,
		End:        req.End,
		Period:     req.Period,
		PricesOnly: req.PricesOnly,
	})
	if err != nil && ds == nil {
		h.logger.Warn("fetch request failed", xlogger.Error(err))
		return xhttp.Fail(c, err, fetchErrors)
	}
	if err != nil {
		// The dataset was collected; only the downstream publish failed.
		h.logger.Error("dataset publish failed", xlogger.Error(err))
	}
	return xhttp.OK(c, models.NewFetchHTTPResponse(ds))
}

var fetchErrors = xhttp.ErrorMapper{
	{Status: http.StatusBadRequest, Targets: []error{
		models.ErrInvalidDateFormat,
		models.ErrUnknownSeries,
		models.ErrInvalidPeriod,
		models.ErrNoSymbols,
	}},
	{Status: http.StatusForbidden, Targets: []error{models.ErrAccessRestricted}},
	{Status: http.StatusServiceUnavailable, Targets: []error{context.Canceled, context.DeadlineExceeded}},
}
