// doctorCmd is a local diagnostic command, grounded on the teacher's
// cmd/wt/doctor.go: it prints resolved config and environment facts with no
// network calls back to the management server.
package main

import (
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nodecastle/edgeagent/internal/config"
)

func doctorCmd() *cobra.Command {
	var basePath, overlayPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Print resolved configuration and diagnostic environment info",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := config.NewManager()

			bp := basePath
			if bp == "" {
				p, err := config.GetConfigPath()
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				bp = p
			}
			op := overlayPath
			if op == "" {
				p, err := config.GetOverlayPath()
				if err != nil {
					return fmt.Errorf("resolve overlay path: %w", err)
				}
				op = p
			}
			if err := mgr.Load(bp, op); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg := mgr.Get()

			fmt.Println("edgeagent doctor")
			fmt.Println()

			fmt.Println("Config:")
			fmt.Printf("  base path:       %s\n", bp)
			fmt.Printf("  overlay path:    %s\n", op)
			fmt.Printf("  server_url:      %s\n", presence(cfg.ServerURL))
			fmt.Printf("  device_id:       %s\n", presence(cfg.DeviceID))
			fmt.Printf("  log_level:       %s\n", cfg.LogLevel)
			fmt.Printf("  heartbeat_secs:  %d\n", cfg.HeartbeatIntervalSecs)
			fmt.Printf("  no_desktop:      %v\n", cfg.HelperMode)
			fmt.Println()

			fmt.Println("Session token:")
			printTokenClaims(cfg.SessionToken)
			fmt.Println()

			fmt.Println("Terminal:")
			printTerminalSize()

			return nil
		},
	}

	cmd.Flags().StringVar(&basePath, "config", "", "Path to the base JSON config file")
	cmd.Flags().StringVar(&overlayPath, "overlay", "", "Path to an optional YAML config overlay")
	return cmd
}

// printTokenClaims parses (without verifying, since the agent holds no
// public key to check a server-issued token against) and dumps the claims
// of the configured bearer session token, for local troubleshooting only.
func printTokenClaims(token string) {
	if token == "" {
		fmt.Println("  (none configured)")
		return
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		fmt.Printf("  not a parseable JWT: %v\n", err)
		return
	}
	for k, v := range claims {
		fmt.Printf("  %-12s %v\n", k, v)
	}
}

// printTerminalSize probes the size of the controlling terminal, if any,
// useful when diagnosing a foreground run of the agent.
func printTerminalSize() {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fmt.Println("  stdout is not a terminal")
		return
	}
	w, h, err := term.GetSize(fd)
	if err != nil {
		fmt.Printf("  size probe failed: %v\n", err)
		return
	}
	fmt.Printf("  size: %dx%d\n", w, h)
}

func presence(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}
