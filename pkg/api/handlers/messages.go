package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"chatledger/pkg/auth"
	"chatledger/pkg/logger"
	"chatledger/pkg/models"
	"chatledger/pkg/telemetry"
	"chatledger/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterMessages registers HTTP handlers for message-related endpoints.
func RegisterMessages(r *mux.Router) {
	// /v1/messages
	r.HandleFunc("/messages", addMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages", listMessages).Methods(http.MethodGet)

	// /v1/messages/{seq}
	r.HandleFunc("/messages/{seq:[0-9]+}", getMessage).Methods(http.MethodGet)

	// /v1/accounts/{account}
	r.HandleFunc("/accounts/{account}/messages", listAccountMessages).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{account}/chatter", getChatter).Methods(http.MethodGet)
}

// --- Handlers for /v1/messages ---
func addMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	telemetry.SetRequestOp(r.Context(), "add_message")
	var req struct {
		Account string `json:"account_id"`
		Message string `json:"message"`
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
	span := telemetry.StartSpan(r.Context(), "chat.add_message")
	m, err := svc.AddMessage(account, req.Message)
	span()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	logger.Info("message_created", "account", m.Account, "seq", m.Seq)
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

func listMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	msgs, err := svc.GetMessages(parseLimit(r)...)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("messages_list", "count", len(msgs))
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Messages []models.Message `json:"messages"`
	}{Messages: msgs})
}

func getMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	seq, err := strconv.ParseUint(mux.Vars(r)["seq"], 10, 64)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid sequence number")
		return
	}
	m, err := svc.GetMessage(seq)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

// --- Handlers for /v1/accounts/{account} ---
func listAccountMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	account := mux.Vars(r)["account"]
	msgs, err := svc.GetMessagesByUser(account, parseLimit(r)...)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Account  string           `json:"account_id"`
		Messages []models.Message `json:"messages"`
	}{Account: account, Messages: msgs})
}

func getChatter(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	account := mux.Vars(r)["account"]
	posted, err := svc.IsChatter(account)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Account string `json:"account_id"`
		Chatter bool   `json:"chatter"`
	}{Account: account, Chatter: posted})
}

// parseLimit reads an optional ?limit= query param. Absent or malformed
// values yield no override so the store default window applies.
func parseLimit(r *http.Request) []int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return []int{n}
		}
	}
	return nil
}
