// Package httpapi exposes the coordinator to browser clients over REST and a
// websocket event stream.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"tourguide/internal/domain"
	"tourguide/internal/suggest"
	"tourguide/internal/usecase"
	"tourguide/internal/validation"
)

const (
	writeWait    = 5 * time.Second
	pingInterval = 30 * time.Second
	maxBodyBytes = "64K"
)

// Coordinator is the part of usecase.Coordinator the API drives.
type Coordinator interface {
	StartListening(ctx context.Context) error
	StopListeningAndRespond(ctx context.Context) (domain.TurnResult, error)
	Interrupt()
	ReinitializeCapture(ctx context.Context) error
	SetTourContext(tour domain.TourContext) error
	TourContext() domain.TourContext
	Status() domain.Status
}

// Server holds the handlers. base outlives individual requests: listening
// turns are derived from it so they survive the HTTP call that started them.
type Server struct {
	base        context.Context
	coordinator Coordinator
	hub         *Hub
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

func NewServer(base context.Context, coordinator Coordinator, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		base:        base,
		coordinator: coordinator,
		hub:         hub,
		logger:      logger.Named("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// NewEcho creates the echo instance with logging, recovery and validation.
func NewEcho(logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.EchoValidator{}

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(maxBodyBytes))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	return e
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	v1 := e.Group("/v1")
	v1.GET("/status", s.status)
	v1.GET("/tour", s.getTour)
	v1.PUT("/tour", s.putTour)
	v1.POST("/listen/start", s.startListening)
	v1.POST("/listen/stop", s.stopListening)
	v1.POST("/interrupt", s.interrupt)
	v1.POST("/capture/reinit", s.reinitCapture)
	v1.POST("/suggestions/extract", s.extractSuggestions)
	v1.GET("/events", s.events)
}

type errorResponse struct {
	Code    domain.ErrorCode `json:"code,omitempty"`
	Message string           `json:"message"`
	Detail  string           `json:"detail,omitempty"`
}

type tourRequest struct {
	Destination string   `json:"destination" validate:"required,max=200"`
	Landmarks   []string `json:"landmarks" validate:"max=50,dive,required,max=200"`
	Language    string   `json:"language" validate:"omitempty,max=16"`
}

type extractRequest struct {
	Text string `json:"text" validate:"required"`
}

type extractResponse struct {
	Text        string              `json:"text"`
	Suggestions []domain.Suggestion `json:"suggestions"`
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.coordinator.Status())
}

func (s *Server) getTour(c echo.Context) error {
	return c.JSON(http.StatusOK, s.coordinator.TourContext())
}

func (s *Server) putTour(c echo.Context) error {
	var req tourRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "invalid request body", Detail: err.Error()})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Code:    domain.ErrorCodeTourContext,
			Message: domain.ErrorMessage(domain.ErrorCodeTourContext, ""),
			Detail:  err.Error(),
		})
	}

	tour := domain.TourContext{Destination: req.Destination, Landmarks: req.Landmarks, Language: req.Language}
	if err := s.coordinator.SetTourContext(tour); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Code:    domain.ErrorCodeTourContext,
			Message: domain.ErrorMessage(domain.ErrorCodeTourContext, ""),
			Detail:  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, s.coordinator.TourContext())
}

func (s *Server) startListening(c echo.Context) error {
	if err := s.coordinator.StartListening(s.base); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, s.coordinator.Status())
}

// stopListening answers once the guide started speaking. A client that
// disconnects before then interrupts the turn.
func (s *Server) stopListening(c echo.Context) error {
	result, err := s.coordinator.StopListeningAndRespond(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) interrupt(c echo.Context) error {
	s.coordinator.Interrupt()
	return c.JSON(http.StatusOK, s.coordinator.Status())
}

func (s *Server) reinitCapture(c echo.Context) error {
	if err := s.coordinator.ReinitializeCapture(c.Request().Context()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, s.coordinator.Status())
}

func (s *Server) extractSuggestions(c echo.Context) error {
	var req extractRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "invalid request body", Detail: err.Error()})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Message: "text is required", Detail: err.Error()})
	}
	text, suggestions := suggest.Extract(req.Text)
	return c.JSON(http.StatusOK, extractResponse{Text: text, Suggestions: suggestions})
}

func (s *Server) fail(c echo.Context, err error) error {
	code := domain.ErrorCodeFor(err)
	return c.JSON(statusFor(err), errorResponse{
		Code:    code,
		Message: domain.ErrorMessage(code, err.Error()),
		Detail:  err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, usecase.ErrInterrupted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoAudioCaptured):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCaptureUnavailable), errors.Is(err, usecase.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTranscriptionFailed),
		errors.Is(err, domain.ErrCompletionFailed),
		errors.Is(err, domain.ErrPlaybackFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) events(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}
	defer conn.Close()

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return nil
		case <-s.base.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		}
	}
}
