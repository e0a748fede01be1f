package banner

import (
	"fmt"

	"chatledger/pkg/config"
)

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗██╗     ███████╗██████╗  ██████╗ ███████╗██████╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝██║     ██╔════╝██╔══██╗██╔════╝ ██╔════╝██╔══██╗
██║     ███████║███████║   ██║   ██║     █████╗  ██║  ██║██║  ███╗█████╗  ██████╔╝
██║     ██╔══██║██╔══██║   ██║   ██║     ██╔══╝  ██║  ██║██║   ██║██╔══╝  ██╔══██╗
╚██████╗██║  ██║██║  ██║   ██║   ███████╗███████╗██████╔╝╚██████╔╝███████╗██║  ██║
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚══════╝╚══════╝╚═════╝  ╚═════╝ ╚══════╝╚═╝  ╚═╝
`

// PrintWithEff prints the banner using an EffectiveConfigResult which
// provides runtime context (config, addr, dbpath, source).
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config: %s\n", src)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/storage/deposit - Pre-fund a storage balance (JSON: amount)")
	fmt.Println("POST /v1/messages - Add a message, charged against balance (JSON: message)")
	fmt.Println("POST /v1/storage/withdraw - Withdraw remaining balance")
	fmt.Println("GET  /v1/messages?limit=<n> - List recent messages")
	fmt.Println("GET  /v1/accounts/{account}/balance - Storage balance for an account")
	fmt.Println("GET  /v1/storage/cost?account=<a>&message=<m> - Preview storage cost")

	fmt.Println("\n== Examples ===================================================")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/storage/deposit' -d '{\"amount\":\"100000000000000000000000\"}'")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/messages' -d '{\"message\":\"Hello world!\"}'")

	fmt.Println("\n== Production? =================================================")
	be, fe, ak := 0, 0, 0
	if eff.Config != nil {
		be = len(eff.Config.Security.APIKeys.Backend)
		fe = len(eff.Config.Security.APIKeys.Frontend)
		ak = len(eff.Config.Security.APIKeys.Admin)
	}
	if be > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", be)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if fe > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", fe)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if ak > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", ak)
	} else {
		fmt.Println("- Admin API keys: MISSING (required for admin tooling)")
	}

	tlsOK := eff.Config != nil && eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != ""
	if tlsOK {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}

	if eff.DBPath != "" {
		fmt.Printf("- DB Path: %s\n", eff.DBPath)
	} else {
		fmt.Println("- DB Path: not set (use --db or CHATLEDGER_DB_PATH)")
	}

	if eff.Config != nil && eff.Config.Pricing.PerByte != "" {
		fmt.Printf("- Per-byte price: %s\n", eff.Config.Pricing.PerByte)
	} else {
		fmt.Println("- Per-byte price: default")
	}

	if eff.Config != nil && eff.Config.Audit.Enabled {
		if eff.Config.Audit.Cron != "" {
			fmt.Printf("- Ledger audit: enabled (cron=%s)\n", eff.Config.Audit.Cron)
		} else {
			fmt.Println("- Ledger audit: enabled")
		}
	} else {
		fmt.Println("- Ledger audit: disabled")
	}

	fmt.Println("\n== Logs: =================================================")
}
