// Package api serves the operator HTTP surface of the ledger: reconciliation,
// reserve adjustments, deposit resubmission and gateway failure review.
// It is meant for an internal network only and carries no authentication.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ledgerbot/application/dto"
	"ledgerbot/domain/entities"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Ledger is the part of the ledger engine exposed to operators
type Ledger interface {
	Accounts() entities.SystemAccounts
	ReconcileBalances(ctx context.Context) (*entities.ReconciliationReport, error)
	AuditBalances(ctx context.Context) ([]entities.BalanceMismatch, error)
	ProcessAdjustment(ctx context.Context, account entities.AccountID, signedAmount entities.Amount, note string) (*dto.OperationResult, error)
	GetBalance(ctx context.Context, account entities.AccountID) (entities.Amount, error)
	AccountExists(ctx context.Context, account entities.AccountID) (bool, error)
	History(ctx context.Context, account entities.AccountID, limit int) ([]*entities.LedgerEntry, error)
	GatewayFailures(ctx context.Context, unresolvedOnly bool, limit int) ([]*entities.GatewayFailure, error)
	FailedDeposits(ctx context.Context, limit int) ([]*entities.ProcessedDeposit, error)
	ResolveGatewayFailure(ctx context.Context, id int64, note string) (*entities.GatewayFailure, error)
}

// DepositResubmitter verifies a tx hash on chain and credits it if it is a deposit
type DepositResubmitter interface {
	ReconcileTxHash(ctx context.Context, txHash string) (*dto.DepositResult, error)
}

// FineQuoter prices a USD amount in tokens
type FineQuoter interface {
	TokensForUSD(ctx context.Context, usd decimal.Decimal) (entities.Amount, error)
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Server is the ops HTTP API
type Server struct {
	ledger   Ledger
	deposits DepositResubmitter
	fines    FineQuoter
	health   HealthCheck
	validate *validator.Validate
	router   chi.Router
}

// NewServer creates the ops API. fines and health may be nil.
func NewServer(ledger Ledger, deposits DepositResubmitter, fines FineQuoter, health HealthCheck) *Server {
	s := &Server{
		ledger:   ledger,
		deposits: deposits,
		fines:    fines,
		health:   health,
		validate: validator.New(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/reconciliation", s.handleReconciliation)
	r.Get("/reconciliation/audit", s.handleAudit)
	r.Post("/adjustments", s.handleAdjustment)
	r.Get("/deposits/failed", s.handleFailedDeposits)
	r.Post("/deposits/{hash}/retry", s.handleDepositRetry)
	r.Get("/accounts/{id}", s.handleAccount)
	r.Get("/gateway-failures", s.handleGatewayFailures)
	r.Post("/gateway-failures/{id}/resolve", s.handleResolveFailure)
	r.Get("/fines/quote", s.handleFineQuote)

	return r
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("Ops API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		log.Info("Shutting down ops API...")
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogger logs one line per request through logrus
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"duration":  time.Since(start),
			"requestId": middleware.GetReqID(r.Context()),
		}).Debug("Ops API request")
	})
}
