package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/nortide/api/order-idempotency-service/internal/apperrors"
	"gitlab.com/nortide/api/order-idempotency-service/internal/config"
	"gitlab.com/nortide/api/order-idempotency-service/internal/identity"
	internal_js "gitlab.com/nortide/api/order-idempotency-service/internal/jetstream"
	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
	"gitlab.com/nortide/api/order-idempotency-service/internal/storage"
	"gitlab.com/nortide/api/order-idempotency-service/internal/usecase"
	"gitlab.com/nortide/api/order-idempotency-service/internal/validator"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/logger"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/utils"
)

// ReadinessCheck reports whether a dependency is ready to serve.
type ReadinessCheck func(ctx context.Context) error

// Server wires the operator HTTP API: order inspection, dead-letter
// management, statistics and health probes.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	orders    storage.OrderRepo
	manager   *usecase.DeadLetterManager
	stats     *usecase.StatsService
	publisher internal_js.ClientInterface
	readiness ReadinessCheck

	httpServer *http.Server
}

// NewServer constructs the API server.
func NewServer(
	cfg *config.Config,
	log *zap.Logger,
	orders storage.OrderRepo,
	manager *usecase.DeadLetterManager,
	stats *usecase.StatsService,
	publisher internal_js.ClientInterface,
	readiness ReadinessCheck,
) *Server {
	return &Server{
		cfg:       cfg,
		logger:    log.Named("http_api"),
		orders:    orders,
		manager:   manager,
		stats:     stats,
		publisher: publisher,
		readiness: readiness,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestContext)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/orders", s.handlePublishOrder)
		r.Get("/orders", s.handleListOrders)
		r.Get("/dead-letter-queue", s.handleDeadLetterQueue)
		r.Post("/dead-letter-queue/{id}/retry", s.handleRetry)
		r.Post("/dead-letter-queue/{id}/fail", s.handleMarkFailed)
		r.Get("/statistics", s.handleStatistics)
	})

	return r
}

// Start runs the HTTP server until the listener fails or Stop is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("HTTP API listening", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestContext attaches a request id, the consumer identity and a scoped
// logger to every request.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := identity.WithRequestID(r.Context(), requestID)
		ctx = identity.WithConsumer(ctx, s.cfg.Processing.ConsumerName)
		ctx = logger.WithLogger(ctx, s.logger)
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   utils.FormatISO8601(utils.Now()),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readiness != nil {
		if err := s.readiness(r.Context()); err != nil {
			utils.WriteJSONResponse(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

type publishOrderRequest struct {
	MessageID    string  `json:"message_id"`
	CustomerName string  `json:"customer_name"`
	Amount       float64 `json:"amount"`
}

type publishOrderResponse struct {
	MessageID string `json:"message_id"`
	Subject   string `json:"subject"`
}

// handlePublishOrder publishes an order message onto the orders subject.
// Repeated calls with the same message_id exercise the duplicate path
// end to end.
func (s *Server) handlePublishOrder(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req publishOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.CustomerName == "" {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "customer_name is required"})
		return
	}
	if req.Amount < 0 {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "amount must not be negative"})
		return
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}

	msg := model.OrderMessage{
		MessageID:    req.MessageID,
		CustomerName: req.CustomerName,
		Amount:       req.Amount,
		Timestamp:    utils.Now(),
	}

	if err := s.publisher.Publish(s.cfg.NATS.Subject, utils.MustMarshalJSON(msg), nil); err != nil {
		log.Error("Failed to publish order message", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusBadGateway, map[string]string{"error": "failed to publish message"})
		return
	}

	log.Info("Order message published",
		zap.String("message_id", msg.MessageID),
		zap.String("subject", s.cfg.NATS.Subject))
	utils.WriteJSONResponse(w, http.StatusAccepted, publishOrderResponse{
		MessageID: msg.MessageID,
		Subject:   s.cfg.NATS.Subject,
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orders.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

func (s *Server) handleDeadLetterQueue(w http.ResponseWriter, r *http.Request) {
	rawStatus := r.URL.Query().Get("status")
	if err := validator.ValidateVar(rawStatus, "omitempty,oneof=pending resolved failed"); err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid status filter"})
		return
	}
	status := model.DeadLetterStatus(rawStatus)

	entries, err := s.manager.List(r.Context(), status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.DeadLetterEntry{}
	}

	stats, err := s.manager.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"messages": entries,
		"stats":    stats,
	})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid entry id"})
		return
	}

	entry, err := s.manager.Retry(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	utils.WriteJSONResponse(w, http.StatusOK, entry)
}

func (s *Server) handleMarkFailed(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid entry id"})
		return
	}

	var body struct {
		Notes string `json:"notes"`
	}
	if r.Body != nil {
		// An empty or absent body is fine, notes are optional.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.Notes == "" {
		body.Notes = "Written off by operator"
	}

	entry, err := s.manager.MarkFailed(r.Context(), id, body.Notes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	utils.WriteJSONResponse(w, http.StatusOK, entry)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.stats.GetStatistics(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, snapshot)
}

// writeError maps application errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	switch {
	case apperrors.IsNotFoundError(err):
		utils.WriteJSONResponse(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case apperrors.IsBadRequestError(err) || apperrors.IsValidationError(err):
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case apperrors.IsConflictError(err) || apperrors.IsDuplicateError(err):
		utils.WriteJSONResponse(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case apperrors.IsTimeoutError(err):
		log.Error("Request timed out", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusGatewayTimeout, map[string]string{"error": "operation timed out"})
	case apperrors.IsDatabaseError(err):
		log.Error("Request failed on storage", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable"})
	default:
		log.Error("Request failed", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
