// Command agent is the edgeagent service process: it loads configuration,
// connects outbound to the management server, and routes inbound frames to
// the session multiplexer, file transfer engine, and command executor — or,
// in no-desktop mode, proxies session-plane frames to a helper process
// running in the interactive session. Structured the way the teacher's
// cmd/wtd daemon wires its relay server: a single cobra.Command with
// signal.NotifyContext for graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nodecastle/edgeagent/internal/command"
	"github.com/nodecastle/edgeagent/internal/config"
	"github.com/nodecastle/edgeagent/internal/connector"
	"github.com/nodecastle/edgeagent/internal/files"
	"github.com/nodecastle/edgeagent/internal/helper"
	"github.com/nodecastle/edgeagent/internal/logger"
	"github.com/nodecastle/edgeagent/internal/platform"
	"github.com/nodecastle/edgeagent/internal/protocol"
	"github.com/nodecastle/edgeagent/internal/router"
	"github.com/nodecastle/edgeagent/internal/session"
	"github.com/nodecastle/edgeagent/internal/telemetry"
)

// agentVersion is stamped at release time via -ldflags; dev builds report "dev".
var agentVersion = "dev"

func main() {
	var (
		serverURL   string
		basePath    string
		overlayPath string
		noDesktop   bool
		helperPath  string
		pipeName    string
		helperMode  bool
	)

	root := &cobra.Command{
		Use:   "agent",
		Short: "edgeagent — cross-platform remote management endpoint agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if helperMode {
				return helper.RunWorker(helper.SocketPath(pipeName))
			}
			return runService(serviceOptions{
				serverURL:   serverURL,
				basePath:    basePath,
				overlayPath: overlayPath,
				noDesktop:   noDesktop,
				helperPath:  helperPath,
				pipeName:    pipeName,
			})
		},
	}

	root.Flags().StringVar(&serverURL, "server", "", "Management server WebSocket URL (overrides config)")
	root.Flags().StringVar(&basePath, "config", "", "Path to the base JSON config file")
	root.Flags().StringVar(&overlayPath, "overlay", "", "Path to an optional YAML config overlay")
	root.Flags().BoolVar(&noDesktop, "no-desktop", false, "Run as a service with no desktop access, proxying sessions to a helper process")
	root.Flags().StringVar(&helperPath, "helper-path", "", "Path to the agenthelper executable (no-desktop mode)")
	root.Flags().StringVar(&pipeName, "pipe-name", "edgeagent", "IPC pipe/socket name shared between service and helper")

	root.Flags().BoolVar(&helperMode, "helper-mode", false, "Run as the helper worker instead of the service (internal use)")
	root.Flags().MarkHidden("helper-mode")
	root.Flags().MarkHidden("pipe-name")

	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type serviceOptions struct {
	serverURL   string
	basePath    string
	overlayPath string
	noDesktop   bool
	helperPath  string
	pipeName    string
}

func runService(opts serviceOptions) error {
	mgr := config.NewManager()

	basePath := opts.basePath
	overlayPath := opts.overlayPath
	if basePath == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
		basePath = p
	}
	if overlayPath == "" {
		p, err := config.GetOverlayPath()
		if err != nil {
			return fmt.Errorf("resolve overlay path: %w", err)
		}
		overlayPath = p
	}
	if err := mgr.Load(basePath, overlayPath); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := mgr.Get()

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if opts.serverURL != "" {
		cfg.ServerURL = opts.serverURL
	}
	if cfg.ServerURL == "" {
		return fmt.Errorf("no server URL configured (set server_url in %s or pass --server)", basePath)
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
	}

	hostname, _ := os.Hostname()
	startedAt := time.Now()

	conn := connector.New(connector.Config{
		ServerURL:          cfg.ServerURL,
		SessionToken:       cfg.SessionToken,
		Hostname:           hostname,
		OS:                 runtime.GOOS,
		Arch:               runtime.GOARCH,
		AgentVersion:       agentVersion,
		DeviceType:         runtime.GOOS,
		HeartbeatInterval:  time.Duration(cfg.HeartbeatIntervalSecs) * time.Second,
		ReconnectBaseDelay: time.Duration(cfg.ReconnectBaseDelaySecs) * time.Second,
		ReconnectMaxDelay:  time.Duration(cfg.ReconnectMaxDelaySecs) * time.Second,
	})

	fs := platform.NewFilesystem()
	filesEngine := files.New(fs, conn)
	collector := telemetry.New("/")

	sysControl, err := platform.NewSystemControl()
	if err != nil {
		logger.Warn("system control unavailable", "error", err)
		sysControl = nil
	}
	commands := command.New(conn, collector, sysControl)

	sessionPresence, err := platform.NewSessionPresence()
	if err != nil {
		logger.Warn("session presence unavailable", "error", err)
		sessionPresence = nil
	}

	noDesktop := opts.noDesktop || cfg.HelperMode
	if !noDesktop && sessionPresence != nil && sessionPresence.IsSystemServiceContext() {
		logger.Info("running detached from any interactive session, forcing no-desktop mode")
		noDesktop = true
	}

	var sessions *session.Manager
	var sup *helper.Supervisor
	if noDesktop {
		launcher := &platform.ProcessHelperLauncher{ExePath: opts.helperPath, PipeName: opts.pipeName}
		sup, err = helper.NewSupervisor(launcher, helper.SocketPath(opts.pipeName), conn)
		if err != nil {
			return fmt.Errorf("start helper supervisor: %w", err)
		}
		defer sup.Close()
	} else {
		sessions = session.NewManager(conn)
	}

	var forwarder router.HelperForwarder
	if sup != nil {
		forwarder = sup
	}
	r := router.New(sessions, filesEngine, commands, forwarder, noDesktop)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- conn.Run(ctx) }()

	if noDesktop {
		go func() {
			for {
				target := targetSessionID(sessionPresence)
				if err := sup.Start(ctx, target); err != nil {
					logger.Warn("helper supervisor exited, retrying", "error", err, "session", target)
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
			}
		}()
	}

	go func() {
		onChange := func(newCfg *config.AgentConfig) {
			logger.Info("config reloaded", "log_level", newCfg.LogLevel)
			if err := logger.Init(newCfg.LogLevel, newCfg.LogFile); err != nil {
				logger.Warn("failed to re-init logger after config reload", "error", err)
			}
			conn.UpdateTimings(
				time.Duration(newCfg.HeartbeatIntervalSecs)*time.Second,
				time.Duration(newCfg.ReconnectBaseDelaySecs)*time.Second,
				time.Duration(newCfg.ReconnectMaxDelaySecs)*time.Second,
			)
		}
		if err := mgr.Watch(ctx, basePath, overlayPath, onChange); err != nil {
			logger.Warn("config watch exited", "error", err)
		}
	}()

	logger.Info("edgeagent starting", "server", cfg.ServerURL, "no_desktop", noDesktop)

	for {
		select {
		case <-ctx.Done():
			if sessions != nil {
				sessions.CloseAll()
			}
			return nil
		case evt := <-conn.Events():
			handleConnectorEvent(evt, conn, cfg, mgr, basePath, hostname, startedAt, r)
		case err := <-errCh:
			return err
		}
	}
}

// targetSessionID identifies the interactive session the helper should run
// in, per SessionPresence.GetActiveConsoleSessionID, falling back to a
// generic label when no presence collaborator is available for this
// platform or no console session is currently active.
func targetSessionID(sessionPresence platform.SessionPresence) string {
	if sessionPresence == nil {
		return "console"
	}
	id, err := sessionPresence.GetActiveConsoleSessionID()
	if err != nil {
		logger.Warn("could not determine active console session, falling back", "error", err)
		return "console"
	}
	return id
}

func handleConnectorEvent(evt connector.Event, conn *connector.Connector, cfg *config.AgentConfig, mgr *config.Manager, basePath, hostname string, startedAt time.Time, r *router.Router) {
	switch evt.Kind {
	case connector.EventAuthenticated:
		logger.Info("authenticated", "device_id", evt.DeviceID)
		if evt.DeviceID != "" && evt.DeviceID != cfg.DeviceID {
			mgr.SetDeviceID(evt.DeviceID)
			if err := mgr.Save(basePath); err != nil {
				logger.Warn("failed to persist device id", "error", err)
			}
		}
		info := protocol.AgentInfo{
			DeviceID:     evt.DeviceID,
			OS:           runtime.GOOS,
			Arch:         runtime.GOARCH,
			Hostname:     hostname,
			AgentVersion: agentVersion,
			UptimeSecs:   int64(time.Since(startedAt).Seconds()),
		}
		frame, err := protocol.ControlJSON(protocol.OpAgentInfo, 0, info)
		if err == nil {
			_ = conn.Send(frame)
		}
	case connector.EventMessage:
		r.Route(evt.Frame)
	case connector.EventDisconnected:
		logger.Warn("disconnected from server", "error", evt.Err)
	}
}
