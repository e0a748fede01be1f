package api

import (
	"net/http"

	"chatledger/pkg/api/handlers"
	"chatledger/pkg/chat"
	"chatledger/pkg/store"
	"chatledger/pkg/utils"

	"github.com/gorilla/mux"
)

// NewRouter builds the versioned API router. All application endpoints live
// under /v1; admin endpoints under /v1/admin require an admin or backend
// role (enforced per-handler).
func NewRouter(svc *chat.Service, st *store.Store) *mux.Router {
	handlers.Init(svc, st)

	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.RegisterMessages(v1)
	handlers.RegisterStorage(v1)
	handlers.RegisterStats(v1)

	admin := v1.PathPrefix("/admin").Subrouter()
	handlers.RegisterAdmin(admin)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		utils.JSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		utils.JSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
