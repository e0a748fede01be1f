package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/joho/godotenv"

	"chatledger/internal/audit"
	"chatledger/pkg/amount"
	"chatledger/pkg/chat"
	"chatledger/pkg/config"
	"chatledger/pkg/costmodel"
	"chatledger/pkg/logger"
	"chatledger/pkg/progressor"
	"chatledger/pkg/sensor"
	"chatledger/pkg/state"
	"chatledger/pkg/store"
	"chatledger/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	st  *store.Store
	svc *chat.Service

	hw  *sensor.Sensor
	srv *http.Server
}

// New initializes resources that do not require a running context (DB,
// validation rules, runtime keys, the service). It does not start the
// audit scheduler or the HTTP server; call Run to start those and block
// until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	// runtime keys
	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range eff.Config.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	// validation rules
	validation.SetRules(validation.Rules{
		MaxBodyBytes:    eff.Config.Limits.MaxMessageBytes,
		MaxAccountBytes: eff.Config.Limits.MaxAccountBytes,
	})

	// state dirs and audit sink
	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to prepare state dirs under %s: %w", eff.DBPath, err)
	}
	if err := logger.AttachAuditFileSink(state.PathsVar.Audit); err != nil {
		logger.Warn("audit_sink_attach_failed", "error", err)
	}

	// open store
	st, err := store.Open(state.PathsVar.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}

	// pricing model
	perByte := amount.Zero()
	if p := strings.TrimSpace(eff.Config.Pricing.PerByte); p != "" {
		perByte, err = amount.Parse(p)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("invalid pricing.per_byte %q: %w", p, err)
		}
	}
	model := costmodel.New(perByte)

	svc := chat.New(st, model, chat.OutboxEnv{Store: st})
	audit.Bind(svc, st)

	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate, st: st, svc: svc}
	return a, nil
}

// Run starts migrations, the audit scheduler and the HTTP server, and
// blocks until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	if _, err := progressor.Run(ctx, a.st, a.version); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	a.printBanner()

	// resource sensor plus pebble pressure monitor
	a.hw = sensor.NewSensor(sensor.DefaultMonitorConfig().PollInterval)
	a.hw.Start()
	monitorCancel := sensor.StartPebbleMonitor(ctx, a.st, a.hw, sensor.DefaultMonitorConfig())
	defer monitorCancel()
	defer a.hw.Stop()

	auditCancel, err := audit.Start(ctx, a.eff.Config.Audit)
	if err != nil {
		return err
	}
	defer auditCancel()

	probeStop := a.startProbeListener()
	defer probeStop()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		_ = a.srv.Shutdown(context.Background())
		if err := a.st.Close(); err != nil {
			logger.Error("store_close_failed", "error", err)
		}
		return nil
	case err := <-errCh:
		_ = a.st.Close()
		return err
	}
}

// Service exposes the chat service, mainly for tests and tooling.
func (a *App) Service() *chat.Service { return a.svc }
