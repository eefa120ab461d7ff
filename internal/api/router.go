package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/wallet-infra/internal/auth"
	"github.com/example/wallet-infra/internal/security"
	"github.com/example/wallet-infra/internal/wallet"
)

// WalletOps is the slice of the approval workflow the HTTP surface consumes.
type WalletOps interface {
	DepositInitiate(ctx context.Context, accountID int64, amount float64) (*wallet.DepositInitiateResult, error)
	DepositConfirm(ctx context.Context, accountID, transactionID int64) (float64, error)
	DepositApprove(ctx context.Context, transactionID int64) (float64, error)
	WithdrawInitiate(ctx context.Context, accountID int64, amount float64, channelRef string) (*wallet.WithdrawInitiateResult, error)
	WithdrawApprove(ctx context.Context, withdrawalID, reviewerID int64) (*wallet.WithdrawApproveResult, error)
	WithdrawDeny(ctx context.Context, withdrawalID, reviewerID int64, reason string) error
	ListWithdrawals(ctx context.Context, accountID int64) ([]wallet.WithdrawalRequest, error)
	ListTransactions(ctx context.Context, accountID int64, limit int) ([]wallet.Transaction, error)
}

type Dependencies struct {
	Logger *slog.Logger
	Auth   *auth.Validator
	Wallet WalletOps

	RateLimiter  *security.RedisTokenBucket
	MaxBodyBytes int64
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	depositInitiateV, err := security.NewJSONSchemaValidator(depositInitiateSchema)
	if err != nil {
		return nil, err
	}
	depositConfirmV, err := security.NewJSONSchemaValidator(depositConfirmSchema)
	if err != nil {
		return nil, err
	}
	withdrawInitiateV, err := security.NewJSONSchemaValidator(withdrawInitiateSchema)
	if err != nil {
		return nil, err
	}
	depositApproveV, err := security.NewJSONSchemaValidator(depositApproveSchema)
	if err != nil {
		return nil, err
	}
	withdrawReviewV, err := security.NewJSONSchemaValidator(withdrawReviewSchema)
	if err != nil {
		return nil, err
	}

	onAuthError := func(w http.ResponseWriter, r *http.Request, status int, code string) {
		security.WriteJSONError(w, r, status, code)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))
	if deps.RateLimiter != nil {
		r.Use(security.RateLimitMiddleware(deps.RateLimiter, rateLimitKeyByIP))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Authenticate(deps.Auth, onAuthError))

		r.With(depositInitiateV.Middleware).Post("/deposits", handleDepositInitiate(deps))
		r.With(depositConfirmV.Middleware).Post("/deposits/confirm", handleDepositConfirm(deps))
		r.Get("/transactions", handleListTransactions(deps))

		r.With(withdrawInitiateV.Middleware).Post("/withdrawals", handleWithdrawInitiate(deps))
		r.Get("/withdrawals", handleListWithdrawals(deps))

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin(onAuthError))

			r.With(depositApproveV.Middleware).Post("/deposits/approve", handleDepositApprove(deps))
			r.With(withdrawReviewV.Middleware).Post("/withdrawals/approve", handleWithdrawApprove(deps))
			r.With(withdrawReviewV.Middleware).Post("/withdrawals/deny", handleWithdrawDeny(deps))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r, nil
}

func rateLimitKeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
