package handlers

import (
	"errors"
	"net/http"

	"chatledger/pkg/chat"
	"chatledger/pkg/store"
	"chatledger/pkg/utils"
)

var (
	svc *chat.Service
	st  *store.Store
)

// Init binds the handlers package to a service and its backing store.
// Must be called before any route is served. The store is used only by
// admin endpoints that inspect raw keyspace state.
func Init(s *chat.Service, backing *store.Store) {
	svc = s
	st = backing
}

// writeServiceError maps service errors onto HTTP status codes.
// Validation failures are client errors; an uncovered storage cost is
// 402 so clients can distinguish "top up and retry" from bad input.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidMessage):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrInvalidAmount):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrInsufficientStorageBalance):
		utils.JSONError(w, http.StatusPaymentRequired, err.Error())
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}
