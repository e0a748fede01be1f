package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"chatledger/pkg/amount"
	"chatledger/pkg/auth"
	"chatledger/pkg/logger"
	"chatledger/pkg/telemetry"
	"chatledger/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterStorage registers deposit, withdraw and cost-preview endpoints.
func RegisterStorage(r *mux.Router) {
	r.HandleFunc("/storage/deposit", depositStorage).Methods(http.MethodPost)
	r.HandleFunc("/storage/withdraw", withdrawStorage).Methods(http.MethodPost)
	r.HandleFunc("/storage/cost", previewCost).Methods(http.MethodGet)
	r.HandleFunc("/storage/cost/min", minCost).Methods(http.MethodGet)

	r.HandleFunc("/accounts/{account}/balance", getBalance).Methods(http.MethodGet)
}

func depositStorage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	telemetry.SetRequestOp(r.Context(), "deposit_storage")
	var req struct {
		Account string `json:"account_id"`
		Amount  string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	account, status, msg := auth.ResolveAccountFromRequest(r, req.Account)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	attached, err := amount.Parse(strings.TrimSpace(req.Amount))
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid amount: "+err.Error())
		return
	}
	if err := svc.DepositStorage(account, attached); err != nil {
		writeServiceError(w, err)
		return
	}
	bal, err := svc.GetStorageBalance(account)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("storage_deposited", "account", account, "amount", attached.String())
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Account string        `json:"account_id"`
		Balance amount.Amount `json:"balance"`
	}{Account: account, Balance: bal})
}

func withdrawStorage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	telemetry.SetRequestOp(r.Context(), "withdraw_storage")
	var req struct {
		Account string  `json:"account_id"`
		Amount  *string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	account, status, msg := auth.ResolveAccountFromRequest(r, req.Account)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var requested *amount.Amount
	if req.Amount != nil {
		a, err := amount.Parse(strings.TrimSpace(*req.Amount))
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid amount: "+err.Error())
			return
		}
		requested = &a
	}
	taken, err := svc.WithdrawRemainStorage(account, requested)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	logger.Info("storage_withdrawn", "account", account, "amount", taken.String())
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Account   string        `json:"account_id"`
		Withdrawn amount.Amount `json:"withdrawn"`
	}{Account: account, Withdrawn: taken})
}

func previewCost(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	account := r.URL.Query().Get("account")
	body := r.URL.Query().Get("message")
	cost := svc.PreviewStorageCost(account, body)
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Cost amount.Amount `json:"cost"`
	}{Cost: cost})
}

func minCost(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Cost amount.Amount `json:"cost"`
	}{Cost: svc.GetMinStorageCost()})
}

func getBalance(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	account := mux.Vars(r)["account"]
	bal, err := svc.GetStorageBalance(account)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Account string        `json:"account_id"`
		Balance amount.Amount `json:"balance"`
	}{Account: account, Balance: bal})
}
