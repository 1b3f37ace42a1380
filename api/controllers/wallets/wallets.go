package wallets

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/talava/dispatch-backend/api/responses"
	"github.com/talava/dispatch-backend/api/validators"
	internalwallets "github.com/talava/dispatch-backend/internal/wallets"
	pkgerrors "github.com/talava/dispatch-backend/pkg/errors"
	"github.com/talava/dispatch-backend/pkg/logger"
	"github.com/talava/dispatch-backend/pkg/pagination"
	"github.com/talava/dispatch-backend/pkg/types"
)

// Detail returns the user's wallet.
func Detail(svc internalwallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		wallet, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, wallet)
	}
}

// Transactions returns a page of the wallet's ledger, newest first.
func Transactions(svc internalwallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, next, err := svc.ListTransactions(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.ListEnvelope{Items: entries, NextCursor: next})
	}
}

type createWithdrawalRequest struct {
	UserID      string `json:"user_id" validate:"required,uuid"`
	Amount      string `json:"amount" validate:"required"`
	IBAN        string `json:"iban" validate:"required,max=34"`
	AccountName string `json:"account_name" validate:"required,max=120"`
	Note        string `json:"note" validate:"omitempty,max=500"`
}

// CreateWithdrawal opens a payout request. Funds are checked once, here.
func CreateWithdrawal(svc internalwallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createWithdrawalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, _ := uuid.Parse(req.UserID)

		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "amount must be a decimal"))
			return
		}

		request, err := svc.CreateWithdrawal(r.Context(), internalwallets.CreateWithdrawalInput{
			UserID:      userID,
			Amount:      amount,
			IBAN:        req.IBAN,
			AccountName: req.AccountName,
			Note:        req.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}

type decisionRequest struct {
	AdminID string `json:"admin_id" validate:"required,uuid"`
	Note    string `json:"note" validate:"omitempty,max=500"`
}

type decisionFunc func(r *http.Request, svc internalwallets.Service, input internalwallets.WithdrawalDecisionInput) error

func decide(svc internalwallets.Service, logg *logger.Logger, status string, apply decisionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, err := validators.ParseUUIDParam(r, "withdrawalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req decisionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		adminID, _ := uuid.Parse(req.AdminID)

		if err := apply(r, svc, internalwallets.WithdrawalDecisionInput{
			RequestID: requestID,
			AdminID:   adminID,
			Note:      req.Note,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"withdrawal_id": requestID, "status": status})
	}
}

// ApproveWithdrawal marks a pending request approved. No money moves.
func ApproveWithdrawal(svc internalwallets.Service, logg *logger.Logger) http.HandlerFunc {
	return decide(svc, logg, "approved", func(r *http.Request, svc internalwallets.Service, input internalwallets.WithdrawalDecisionInput) error {
		return svc.ApproveWithdrawal(r.Context(), input)
	})
}

// RejectWithdrawal marks a pending request rejected. No money moves.
func RejectWithdrawal(svc internalwallets.Service, logg *logger.Logger) http.HandlerFunc {
	return decide(svc, logg, "rejected", func(r *http.Request, svc internalwallets.Service, input internalwallets.WithdrawalDecisionInput) error {
		return svc.RejectWithdrawal(r.Context(), input)
	})
}

// CompleteWithdrawal pays out an approved request as one wallet debit.
func CompleteWithdrawal(svc internalwallets.Service, logg *logger.Logger) http.HandlerFunc {
	return decide(svc, logg, "completed", func(r *http.Request, svc internalwallets.Service, input internalwallets.WithdrawalDecisionInput) error {
		return svc.CompleteWithdrawal(r.Context(), input)
	})
}
