package handlers

import (
	"net/http"

	"chatledger/pkg/models"
	"chatledger/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterStats registers the aggregate counters endpoint.
func RegisterStats(r *mux.Router) {
	r.HandleFunc("/stats", getStats).Methods(http.MethodGet)
}

func getStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	total, err := svc.TotalMessages()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chatters, err := svc.CountChatter()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, models.Stats{TotalMessages: total, Chatters: chatters})
}
