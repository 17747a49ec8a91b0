/**
 * @description
 * This file contains the HTTP handlers for the simulator's API endpoints. Handlers
 * parse incoming requests, call the application service and write the HTTP response.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/engine: service logic, models and errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pamilerinsimon03/WemaTrust/internal/app"
	"github.com/pamilerinsimon03/WemaTrust/internal/bankdir"
	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/pamilerinsimon03/WemaTrust/internal/engine"
	"github.com/pamilerinsimon03/WemaTrust/internal/events"
)

const maxRequestBodyBytes = 1 << 20

// EventSource is the bus the stream handlers subscribe to.
type EventSource interface {
	Subscribe(kinds ...domain.EventKind) *events.Subscription
}

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service *app.Service
	events  EventSource

	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service, source EventSource) *Handlers {
	return &Handlers{service: service, events: source, heartbeat: 15 * time.Second, upgrader: newUpgrader(nil)}
}

type transferAcceptedResponse struct {
	TxnRef        string `json:"txn_ref"`
	Status        string `json:"status"`
	SenderBalance int64  `json:"sender_balance"`
	Message       string `json:"message"`
}

// SubmitTransferHandler accepts a transfer and returns as soon as the sender is debited.
func (h *Handlers) SubmitTransferHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.SubmitTransfer(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=submit_transfer outcome=reject sender=%s to_account=%s err=%v", req.SenderUserID, req.ToAccount, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=submit_transfer outcome=accepted txn_ref=%s sender=%s amount=%d", res.TxnRef, req.SenderUserID, req.Amount)
	h.writeJSON(w, http.StatusAccepted, transferAcceptedResponse{
		TxnRef:        res.TxnRef,
		Status:        res.Status,
		SenderBalance: res.SenderBalance,
		Message:       "Transfer accepted for settlement",
	})
}

func (h *Handlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	txnRef := chi.URLParam(r, "txnRef")
	records, err := h.service.GetTransfer(r.Context(), txnRef)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if len(records) == 0 {
		h.writeError(w, http.StatusNotFound, "Transfer not found")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"txn_ref": txnRef, "transactions": records})
}

func (h *Handlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetAccountSnapshot(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) ListUserTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.GetUserTransactions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, convErr := strconv.Atoi(limitStr)
		if convErr != nil || limit <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if limit < len(txs) {
			txs = txs[:limit]
		}
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	h.writeJSON(w, http.StatusOK, txs)
}

func (h *Handlers) ListBanksHandler(w http.ResponseWriter, r *http.Request) {
	banks, err := h.service.ListBanks(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, banks)
}

func (h *Handlers) GetBankHandler(w http.ResponseWriter, r *http.Request) {
	bank, err := h.service.GetBank(r.Context(), chi.URLParam(r, "bankID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bank)
}

type setBankStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handlers) SetBankStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req setBankStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	status, err := domain.ParseBankStatus(req.Status)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "status must be one of UP, SLOW or DOWN")
		return
	}

	bank, err := h.service.SetBankStatus(r.Context(), chi.URLParam(r, "bankID"), status)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	operator, _ := GetOperator(r.Context())
	log.Printf("level=info component=api endpoint=set_bank_status bank_id=%s status=%s operator=%q", bank.ID, bank.Status, operator)
	h.writeJSON(w, http.StatusOK, bank)
}

type outageRequest struct {
	BankID     string `json:"bank_id"`
	DurationMS int64  `json:"duration_ms"`
}

func (h *Handlers) TriggerOutageHandler(w http.ResponseWriter, r *http.Request) {
	var req outageRequest
	if !h.decode(w, r, &req) {
		return
	}
	d := time.Duration(req.DurationMS) * time.Millisecond
	if err := h.service.TriggerBankOutage(r.Context(), req.BankID, d); err != nil {
		h.writeServiceError(w, err)
		return
	}
	log.Printf("level=info component=api endpoint=trigger_outage bank_id=%s duration_ms=%d", req.BankID, req.DurationMS)
	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{"bank_id": req.BankID, "duration_ms": req.DurationMS, "status": "outage_started"})
}

type systemIssueRequest struct {
	DurationMS int64 `json:"duration_ms"`
}

func (h *Handlers) TriggerSystemIssueHandler(w http.ResponseWriter, r *http.Request) {
	var req systemIssueRequest
	if !h.decode(w, r, &req) {
		return
	}
	d := time.Duration(req.DurationMS) * time.Millisecond
	if err := h.service.TriggerSystemIssue(r.Context(), d); err != nil {
		h.writeServiceError(w, err)
		return
	}
	log.Printf("level=info component=api endpoint=trigger_system_issue duration_ms=%d", req.DurationMS)
	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{"duration_ms": req.DurationMS, "status": "system_issue_started"})
}

type updateConfigRequest struct {
	BaseDelayMS           *int64   `json:"base_delay_ms"`
	JitterWindowMS        *int64   `json:"jitter_window_ms"`
	FailureRate           *float64 `json:"failure_rate"`
	RetryAttempts         *int     `json:"retry_attempts"`
	RetryDelayMS          *int64   `json:"retry_delay_ms"`
	TickIntervalMS        *int64   `json:"tick_interval_ms"`
	ReverseOnFinalFailure *bool    `json:"reverse_on_final_failure"`
}

func millis(v *int64) *time.Duration {
	if v == nil {
		return nil
	}
	d := time.Duration(*v) * time.Millisecond
	return &d
}

func (h *Handlers) UpdateConfigHandler(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if !h.decode(w, r, &req) {
		return
	}
	cfg, err := h.service.UpdateSimulationConfig(engine.ConfigUpdate{
		BaseDelay:             millis(req.BaseDelayMS),
		JitterWindow:          millis(req.JitterWindowMS),
		FailureRate:           req.FailureRate,
		RetryAttempts:         req.RetryAttempts,
		RetryDelay:            millis(req.RetryDelayMS),
		TickInterval:          millis(req.TickIntervalMS),
		ReverseOnFinalFailure: req.ReverseOnFinalFailure,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

func (h *Handlers) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) PendingHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.PendingSettlements())
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// statusForError maps service errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidTransferAmount),
		errors.Is(err, domain.ErrInvalidAccountNumber),
		errors.Is(err, domain.ErrInvalidSender),
		errors.Is(err, domain.ErrInvalidBankStatus),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, engine.ErrInvalidConfig),
		errors.Is(err, bankdir.ErrInvalidSuccessRate),
		errors.Is(err, bankdir.ErrMissingBankID):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrRecipientNotFound),
		errors.Is(err, domain.ErrBankNotFound),
		errors.Is(err, domain.ErrShadowEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrDuplicateReference):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, engine.ErrEngineStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(app.RetryAfter(err)))
	}
	if status == http.StatusInternalServerError {
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, status, "Internal server error")
		return
	}
	h.writeError(w, status, errorMessage(err))
}

func errorMessage(err error) string {
	for _, sentinel := range []error{
		domain.ErrInvalidTransferAmount, domain.ErrInvalidAccountNumber, domain.ErrInvalidSender,
		domain.ErrAccountNotFound, domain.ErrUserNotFound, domain.ErrRecipientNotFound,
		domain.ErrInsufficientFunds, domain.ErrDuplicateReference, domain.ErrBankNotFound,
		domain.ErrSelfTransfer, domain.ErrRateLimited, domain.ErrInvalidDuration,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
