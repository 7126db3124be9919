// Command dbcheck prints how the API would resolve and reach its databases
// with the current environment. Run it on a deploy box before the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hiremebahamas/hirebahamas-api/internal/config"
	"github.com/hiremebahamas/hirebahamas-api/internal/database"
	"github.com/hiremebahamas/hirebahamas-api/internal/logger"
)

func main() {
	skipPing := flag.Bool("no-ping", false, "only inspect configuration, do not connect")
	timeout := flag.Duration("timeout", 10*time.Second, "per-role connection timeout")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.Server.LogLevel, cfg.Environment)
	m := database.NewManager(cfg.Database, database.WithLogger(log))

	code := run(os.Stdout, cfg.Database, m, !*skipPing, *timeout)
	if err := m.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database engines")
	}
	os.Exit(code)
}

// run writes the report and returns the process exit code: 1 when the
// primary is unusable, 0 otherwise.
func run(w io.Writer, cfg config.DatabaseConfig, m *database.Manager, ping bool, timeout time.Duration) int {
	ok, source, missing := database.ValidateDatabaseConfig(cfg)
	fmt.Fprintf(w, "configured: %t\nsource:     %s\nmissing:    %v\n", ok, orNone(source), missing)
	if !ok {
		return 1
	}

	exit := 0
	for _, role := range []database.Role{database.RolePrimary, database.RoleReplica} {
		raw := m.URL(role)
		fmt.Fprintf(w, "\n[%s]\n", role)
		if raw == "" {
			fmt.Fprintln(w, "  not configured, reads use the primary")
			continue
		}
		fmt.Fprintf(w, "  scheme: %s\n", database.URLScheme(raw))
		fmt.Fprintf(w, "  sync:   %s\n", database.MaskPassword(database.NormalizeURL(raw, false)))
		fmt.Fprintf(w, "  async:  %s\n", database.MaskPassword(database.NormalizeURL(raw, true)))

		valid, reason := database.ValidateURLStructure(raw)
		if valid {
			fmt.Fprintln(w, "  structure: ok")
		} else {
			fmt.Fprintf(w, "  structure: %s\n", reason)
		}
		if !valid && role == database.RolePrimary && cfg.Production {
			exit = 1
		}

		if !ping {
			continue
		}
		if err := pingRole(m, role, timeout); err != nil {
			fmt.Fprintf(w, "  ping: FAILED (%v)\n", err)
			if role == database.RolePrimary {
				exit = 1
			}
			continue
		}
		fmt.Fprintln(w, "  ping: ok")
	}
	return exit
}

func pingRole(m *database.Manager, role database.Role, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	h, err := m.GetEngine(ctx, role)
	if err != nil {
		return err
	}
	if h.Role() != role {
		return fmt.Errorf("%s engine failed, fell back to %s", role, h.Role())
	}
	return h.Ping(ctx)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
