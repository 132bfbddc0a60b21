package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/berfenger/motion2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type errorBody struct {
	Error string `json:"error"`
}

type commandBody struct {
	EntityId string              `json:"entity_id"`
	Command  domain.CoverCommand `json:"command"`
	Status   string              `json:"status"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.GET("/covers", s.CoversHandler)
	api.POST("/covers/:id/:action", s.CoverCommandHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) CoversHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetCoverStatesRequest{}, s.timeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	}
	response, ok := res.(domain.GetCoverStatesResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "unexpected response"})
	}
	covers := response.Covers
	if covers == nil {
		covers = []domain.CoverStateUpdateEvent{}
	}
	return c.JSON(http.StatusOK, covers)
}

func (s *Server) CoverCommandHandler(c echo.Context) error {
	cmd, err := domain.ParseCoverCommand(c.Param("action"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	entityId := c.Param("id")

	res, err := s.rootContext.RequestFuture(s.masterActor, domain.CoverCommandRequest{
		EntityId: entityId,
		Command:  cmd,
	}, s.timeout).Result()
	if err != nil {
		return c.JSON(http.StatusGatewayTimeout, errorBody{Error: err.Error()})
	}
	response, ok := res.(domain.CoverCommandResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(commandErrorStatus(response.GetResponseError()), errorBody{Error: response.GetResponseError().Error()})
	}
	return c.JSON(http.StatusOK, commandBody{
		EntityId: entityId,
		Command:  cmd,
		Status:   "ok",
	})
}

func commandErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnsupportedCommand):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
