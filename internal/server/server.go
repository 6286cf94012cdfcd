package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/pra-approval-relay/internal/audit"
	"github.com/xela07ax/pra-approval-relay/internal/bot"
	"github.com/xela07ax/pra-approval-relay/internal/domain"
	"github.com/xela07ax/pra-approval-relay/internal/fanout"
	"github.com/xela07ax/pra-approval-relay/internal/infra"
	"github.com/xela07ax/pra-approval-relay/internal/render"
)

// Broadcaster — то, что серверу нужно от рассылки уведомлений.
type Broadcaster interface {
	Broadcast(ctx context.Context, card domain.Card) (fanout.Report, error)
}

// ActivityHandler обрабатывает входящие активности Bot Framework.
type ActivityHandler interface {
	HandleActivity(ctx context.Context, activity bot.Activity) (*bot.InvokeResponse, error)
}

// Server — HTTP-фасад сервиса: webhook заявок, endpoint активностей бота,
// health и метрики.
type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	renderer   *render.Renderer
	fan        Broadcaster
	activities ActivityHandler
	trail      audit.Recorder
	metrics    *infra.Metrics
	validator  TokenValidator
	gatherer   prometheus.Gatherer
}

// NewServer инициализирует роутер со всеми зависимостями.
func NewServer(
	cfg *infra.Config,
	logger *zap.Logger,
	renderer *render.Renderer,
	fan Broadcaster,
	activities ActivityHandler,
	trail audit.Recorder,
	metrics *infra.Metrics,
	validator TokenValidator,
	gatherer prometheus.Gatherer,
) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		logger:     logger.Named("http"),
		cfg:        cfg,
		renderer:   renderer,
		fan:        fan,
		activities: activities,
		trail:      trail,
		metrics:    metrics,
		validator:  validator,
		gatherer:   gatherer,
	}

	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		if s.gatherer != nil {
			r.Method(http.MethodGet, "/metrics",
				promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}
	})

	// --- 3. Webhook заявок (общий ключ) ---
	r.Group(func(r chi.Router) {
		r.Use(SharedKeyMiddleware(s.cfg.Webhook.SharedKey))
		r.Post("/api/webhook", s.handleWebhook)
	})

	// --- 4. Активности Bot Framework (сервисный JWT) ---
	r.Group(func(r chi.Router) {
		r.Use(NewAuthMiddleware(s.validator, s.logger))
		r.Post("/api/messages", s.handleMessages)
	})
}

// handleWebhook принимает заявку на доступ, нормализует её и рассылает
// карточку во все зарегистрированные беседы. Ответ текстовый: вызывающая
// сторона (ITSM-скрипт) показывает его как есть.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := TraceID(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.metrics.WebhookTotal.WithLabelValues("bad_request").Inc()
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	// 1. Нормализация: обе формы payload сводятся к единой заявке
	req, err := render.Normalize(body)
	if err != nil {
		s.logger.Warn("malformed webhook payload", zap.String("trace_id", traceID), zap.Error(err))
		s.metrics.WebhookTotal.WithLabelValues("bad_request").Inc()
		s.audit(audit.Event{
			TraceID: traceID,
			Kind:    audit.KindRequestReceived,
			Status:  "FAILED",
			Detail:  err.Error(),
		})
		http.Error(w, "malformed request payload", http.StatusBadRequest)
		return
	}
	req.FillDefaults()

	s.audit(audit.Event{
		TraceID:   traceID,
		Kind:      audit.KindRequestReceived,
		RequestID: req.RequestID,
		TicketID:  req.TicketID,
		Status:    "OK",
	})

	// 2. Рендер карточки и рассылка; отказ одной беседы не душит остальные
	card := s.renderer.Render(req)
	report, err := s.fan.Broadcast(ctx, card)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNoTargets) {
			s.logger.Warn("no conversations registered", zap.String("trace_id", traceID))
		} else {
			s.logger.Error("broadcast failed", zap.String("trace_id", traceID), zap.Error(err))
		}
		s.metrics.WebhookTotal.WithLabelValues("error").Inc()
		s.audit(audit.Event{
			TraceID:   traceID,
			Kind:      audit.KindBroadcast,
			RequestID: req.RequestID,
			TicketID:  req.TicketID,
			Status:    "FAILED",
			Detail:    err.Error(),
		})
		http.Error(w, err.Error(), status)
		return
	}

	status := "OK"
	if report.Failed() > 0 {
		status = "PARTIAL"
	}
	s.metrics.WebhookTotal.WithLabelValues("ok").Inc()
	s.audit(audit.Event{
		TraceID:   traceID,
		Kind:      audit.KindBroadcast,
		RequestID: req.RequestID,
		TicketID:  req.TicketID,
		Status:    status,
		Detail:    fmt.Sprintf("delivered=%d failed=%d", report.Delivered(), report.Failed()),
	})

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Notifications sent successfully"))
}

// handleMessages принимает активности Bot Framework: регистрацию бесед,
// установку бота и нажатия кнопок в карточках.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := TraceID(ctx)

	var activity bot.Activity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		http.Error(w, "malformed activity", http.StatusBadRequest)
		return
	}

	resp, err := s.activities.HandleActivity(ctx, activity)
	if err != nil {
		s.logger.Error("activity handling failed",
			zap.String("trace_id", traceID),
			zap.String("type", activity.Type),
			zap.Error(err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Решения аппруверов фиксируем в audit trail
	if activity.Type == bot.ActivityInvoke && activity.Value != nil && resp != nil {
		data := activity.Value.Action.Data
		status := "OK"
		if resp.Status != http.StatusOK {
			status = "FAILED"
		}
		s.audit(audit.Event{
			TraceID:   traceID,
			Kind:      audit.KindDecision,
			RequestID: data.RequestID,
			TicketID:  data.TicketID,
			Actor:     activity.From.Name,
			Decision:  data.Decision,
			Status:    status,
		})
	}

	// Для invoke транспорт ждет обертку {status, body}; остальное — пустой ACK
	if resp != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// audit дополняет событие идентификатором и временем и отдает его в trail.
func (s *Server) audit(e audit.Event) {
	e.ID = uuid.New().String()
	e.Timestamp = time.Now().UTC()
	s.trail.Log(e)
}

// Run блокируется до отмены контекста, после чего гасит сервер плавно.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
