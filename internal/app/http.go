package app

import (
	"context"
	"net/http"
	"time"

	"chatledger/pkg/api"
	"chatledger/pkg/auth"
	"chatledger/pkg/banner"
	"chatledger/pkg/httpx"
	"chatledger/pkg/logger"
	"chatledger/pkg/telemetry"
	"chatledger/pkg/utils"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/valyala/fasthttp"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" && a.commit != "" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" && a.buildDate != "" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// setupHTTPHandlers sets up all HTTP handlers on the provided mux.
func (a *App) setupHTTPHandlers(mux *http.ServeMux) {
	mux.Handle("/readyz", httpx.NetHTTPAdapter(a.readyzHandler))
	mux.Handle("/healthz", httpx.NetHTTPAdapter(a.healthzHandler))
	mux.Handle("/", api.NewRouter(a.svc, a.st))
	mux.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	mux.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))
	mux.Handle("/metrics", promhttp.Handler())
}

// readyzHandler reports store readiness plus the running version so ops
// can verify which binary is active.
func (a *App) readyzHandler(w httpx.ResponseWriter, r *httpx.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !a.st.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}

// healthzHandler is the liveness probe.
func (a *App) healthzHandler(w httpx.ResponseWriter, r *httpx.Request) {
	w.Header().Set("Content-Type", "application/json")
	h := a.svc.HealthCheck()
	if h.Status != "ok" {
		_ = writeJSON(w, http.StatusServiceUnavailable, h)
		return
	}
	_ = writeJSON(w, http.StatusOK, h)
}

// startProbeListener optionally serves the health handlers on a separate
// unauthenticated address for load balancers. Server.Engine selects the
// listener implementation ("fasthttp" or net/http).
func (a *App) startProbeListener() func() {
	addr := a.eff.Config.Server.ProbeAddr
	if addr == "" {
		return func() {}
	}

	if a.eff.Config.Server.Engine == "fasthttp" {
		h := httpx.FastHTTPAdapter(func(w httpx.ResponseWriter, r *httpx.Request) {
			switch r.Path {
			case "/healthz":
				a.healthzHandler(w, r)
			case "/readyz":
				a.readyzHandler(w, r)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		})
		srv := &fasthttp.Server{
			Handler:      h,
			Name:         "chatledger-probe",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("probe_listener_started", "addr", addr, "engine", "fasthttp")
			if err := srv.ListenAndServe(addr); err != nil {
				logger.Error("probe_listener_exit", "error", err)
			}
		}()
		return func() { _ = srv.Shutdown() }
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", httpx.NetHTTPAdapter(a.healthzHandler))
	mux.Handle("/readyz", httpx.NetHTTPAdapter(a.readyzHandler))
	srv := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}
	go func() {
		logger.Info("probe_listener_started", "addr", addr, "engine", "nethttp")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("probe_listener_exit", "error", err)
		}
	}()
	return func() { _ = srv.Shutdown(context.Background()) }
}

// startHTTP builds the handler, starts the HTTP server in a goroutine and
// returns a channel that will contain any server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	mux := http.NewServeMux()
	a.setupHTTPHandlers(mux)

	// build security config for auth middleware
	secCfg := auth.SecConfig{
		AllowedOrigins: append([]string{}, a.eff.Config.Security.CORS.AllowedOrigins...),
		RPS:            a.eff.Config.Security.RateLimit.RPS,
		Burst:          a.eff.Config.Security.RateLimit.Burst,
		IPWhitelist:    append([]string{}, a.eff.Config.Security.IPWhitelist...),
		BackendKeys:    map[string]struct{}{},
		FrontendKeys:   map[string]struct{}{},
		AdminKeys:      map[string]struct{}{},
	}
	for _, k := range a.eff.Config.Security.APIKeys.Backend {
		secCfg.BackendKeys[k] = struct{}{}
	}
	for _, k := range a.eff.Config.Security.APIKeys.Frontend {
		secCfg.FrontendKeys[k] = struct{}{}
	}
	for _, k := range a.eff.Config.Security.APIKeys.Admin {
		secCfg.AdminKeys[k] = struct{}{}
	}

	// middleware chain, outermost first: telemetry, gateway (role +
	// rate limit), then signature verification which needs the role the
	// gateway resolved.
	wrapped := auth.RequireSignedAccount(mux)
	wrapped = auth.AuthenticateRequestMiddleware(secCfg)(wrapped)
	wrapped = telemetry.Middleware(wrapped)

	a.srv = &http.Server{Addr: a.eff.Addr, Handler: wrapped}

	errCh := make(chan error, 1)
	go func() {
		cert := a.eff.Config.Server.TLS.CertFile
		key := a.eff.Config.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}

// writeJSON mirrors utils.JSONWrite for httpx writers; the interfaces are
// method-compatible.
func writeJSON(w httpx.ResponseWriter, status int, v interface{}) error {
	return utils.JSONWrite(w, status, v)
}
