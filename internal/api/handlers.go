package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/example/wallet-infra/internal/auth"
	"github.com/example/wallet-infra/internal/security"
	"github.com/example/wallet-infra/internal/wallet"
)

type depositInitiateRequest struct {
	Amount float64 `json:"amount"`
}

type depositInitiateResponse struct {
	CorrelationID string  `json:"correlation_id"`
	TransactionID int64   `json:"transaction_id"`
	ChannelRef    string  `json:"channel_ref"`
	Amount        float64 `json:"amount"`
}

type depositConfirmRequest struct {
	TransactionID int64 `json:"transaction_id"`
}

type balanceResponse struct {
	CorrelationID string  `json:"correlation_id"`
	Balance       float64 `json:"balance"`
}

type withdrawInitiateRequest struct {
	Amount     float64 `json:"amount"`
	ChannelRef string  `json:"channel_ref"`
}

type withdrawReviewRequest struct {
	WithdrawalID int64  `json:"withdrawal_id"`
	Reason       string `json:"reason"`
}

type depositApproveRequest struct {
	TransactionID int64 `json:"transaction_id"`
}

type withdrawDenyResponse struct {
	CorrelationID string `json:"correlation_id"`
	WithdrawalID  int64  `json:"withdrawal_id"`
	Status        string `json:"status"`
}

type listTransactionsResponse struct {
	CorrelationID string               `json:"correlation_id"`
	Transactions  []wallet.Transaction `json:"transactions"`
}

type listWithdrawalsResponse struct {
	CorrelationID string                     `json:"correlation_id"`
	Withdrawals   []wallet.WithdrawalRequest `json:"withdrawals"`
}

func handleDepositInitiate(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ai, ok := auth.AuthInfoFromContext(r.Context())
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req depositInitiateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		result, err := deps.Wallet.DepositInitiate(r.Context(), ai.AccountID, req.Amount)
		if err != nil {
			writeDomainError(deps, w, r, err)
			return
		}

		writeJSON(w, r, http.StatusCreated, depositInitiateResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			TransactionID: result.TransactionID,
			ChannelRef:    result.ChannelRef,
			Amount:        result.Amount,
		})
	}
}

func handleDepositConfirm(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ai, ok := auth.AuthInfoFromContext(r.Context())
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req depositConfirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		balance, err := deps.Wallet.DepositConfirm(r.Context(), ai.AccountID, req.TransactionID)
		if err != nil {
			writeDomainError(deps, w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, balanceResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Balance:       balance,
		})
	}
}

func handleDepositApprove(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req depositApproveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		balance, err := deps.Wallet.DepositApprove(r.Context(), req.TransactionID)
		if err != nil {
			writeDomainError(deps, w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, balanceResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Balance:       balance,
		})
	}
}

func handleWithdrawInitiate(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ai, ok := auth.AuthInfoFromContext(r.Context())
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req withdrawInitiateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		result, err := deps.Wallet.WithdrawInitiate(r.Context(), ai.AccountID, req.Amount, req.ChannelRef)
		if err != nil {
			writeDomainError(deps, w, r, err)
			return
		}

		writeJSON(w, r, http.StatusCreated, struct {
			CorrelationID string  `json:"correlation_id"`
			WithdrawalID  int64   `json:"withdrawal_id"`
			Amount        float64 `json:"amount"`
			Status        string  `json:"status"`
			NewBalance    float64 `json:"new_balance"`
		}{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			WithdrawalID:  result.WithdrawalID,
			Amount:        result.Amount,
			Status:        string(result.Status),
			NewBalance:    result.NewBalance,
		})
	}
}

func handleWithdrawApprove(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ai, ok := auth.AuthInfoFromContext(r.Context())
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req withdrawReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		result, err := deps.Wallet.WithdrawApprove(r.Context(), req.WithdrawalID, ai.AccountID)
		if err != nil {
			writeDomainError(deps, w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, struct {
			CorrelationID string  `json:"correlation_id"`
			WithdrawalID  int64   `json:"withdrawal_id"`
			Amount        float64 `json:"amount"`
			NewBalance    float64 `json:"new_balance"`
		}{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			WithdrawalID:  result.WithdrawalID,
			Amount:        result.Amount,
			NewBalance:    result.NewBalance,
		})
	}
}

func handleWithdrawDeny(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ai, ok := auth.AuthInfoFromContext(r.Context())
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req withdrawReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		if err := deps.Wallet.WithdrawDeny(r.Context(), req.WithdrawalID, ai.AccountID, req.Reason); err != nil {
			writeDomainError(deps, w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, withdrawDenyResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			WithdrawalID:  req.WithdrawalID,
			Status:        string(wallet.StatusDenied),
		})
	}
}

func handleListTransactions(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ai, ok := auth.AuthInfoFromContext(r.Context())
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				limit = i
			}
		}

		transactions, err := deps.Wallet.ListTransactions(r.Context(), ai.AccountID, limit)
		if err != nil {
			writeDomainError(deps, w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, listTransactionsResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Transactions:  transactions,
		})
	}
}

func handleListWithdrawals(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ai, ok := auth.AuthInfoFromContext(r.Context())
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		withdrawals, err := deps.Wallet.ListWithdrawals(r.Context(), ai.AccountID)
		if err != nil {
			writeDomainError(deps, w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, listWithdrawalsResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Withdrawals:   withdrawals,
		})
	}
}

// writeDomainError maps the wallet error taxonomy onto HTTP codes. Only
// store failures count as operational faults worth logging; everything else
// is a user-facing rejection.
func writeDomainError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	var ve *wallet.ValidationError
	if errors.As(err, &ve) {
		code := "validation_error"
		switch ve.Field {
		case "amount":
			code = "invalid_amount"
		case "channel_ref":
			code = "invalid_channel_ref"
		}
		security.WriteJSONError(w, r, http.StatusBadRequest, code)
		return
	}

	var nf *wallet.NotFoundError
	if errors.As(err, &nf) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
		return
	}

	var ce *wallet.ConflictError
	if errors.As(err, &ce) {
		security.WriteJSONError(w, r, http.StatusConflict, "already_processed")
		return
	}

	if errors.Is(err, wallet.ErrInsufficientFunds) {
		security.WriteJSONError(w, r, http.StatusBadRequest, "insufficient_funds")
		return
	}

	if errors.Is(err, wallet.ErrNoChannelAvailable) {
		security.WriteJSONError(w, r, http.StatusServiceUnavailable, "no_channel_available")
		return
	}

	deps.Logger.Error("wallet operation failed",
		"cid", security.CorrelationIDFromContext(r.Context()),
		"path", r.URL.Path,
		"error", err,
	)
	security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
}
