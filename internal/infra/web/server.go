package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/infra/provider"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/usecase"
)

// Server exposes the webhook endpoints, the admin transfer-review API and the
// operational endpoints (/healthz, /metrics).
type Server struct {
	intake   usecase.PaymentIntakeUseCase
	transfer *usecase.TransferUseCase
	adapters map[string]provider.Adapter // keyed by URL slug
	auth     *AuthManager
	log      *zerolog.Logger

	httpSrv *http.Server
}

func NewServer(
	port int,
	intake usecase.PaymentIntakeUseCase,
	transfer *usecase.TransferUseCase,
	adapters []provider.Adapter,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	byName := make(map[string]provider.Adapter, len(adapters))
	for _, a := range adapters {
		byName[string(a.Name())] = a
	}
	s := &Server{
		intake:   intake,
		transfer: transfer,
		adapters: byName,
		auth:     auth,
		log:      logger,
	}
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/webhook/{provider}", s.handleWebhook)

	r.Route("/api/v1/transfers", func(r chi.Router) {
		r.Use(s.adminOnly)
		r.Post("/{ledgerID}/approve", s.handleTransferApprove)
		r.Post("/{ledgerID}/reject", s.handleTransferReject)
	})

	return r
}

// adminOnly gates the transfer-review API behind the admin JWT.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil || claims.Role != "admin" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAdminID(r.Context(), claims.AdminID)))
	})
}

type ctxKey string

const ctxAdminID ctxKey = "admin_id"

func withAdminID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxAdminID, id)
}

func adminIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxAdminID).(int64)
	return id
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("web server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
