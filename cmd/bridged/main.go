package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/config"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/httpapi"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/logging"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/project"
	"github.com/vibefoundry/vibefoundry-sandbox/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "bridged [project-path]",
	Short:   "vibefoundry bridge daemon",
	Version: version.Detailed(),
	Args:    cobra.MaximumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &config.Config{
			Port:        viper.GetInt("port"),
			NoBrowser:   viper.GetBool("no_browser"),
			ProjectPath: viper.GetString("project_path"),
			RemoteURL:   viper.GetString("remote_url"),
			RemoteToken: viper.GetString("remote_token"),
			LogLevel:    viper.GetString("log_level"),
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		closeLog, err := logging.Setup(logging.ParseLevel(cfg.LogLevel), config.DefaultLogFilePath)
		if err != nil {
			return fmt.Errorf("set up logging: %w", err)
		}
		defer closeLog()

		cmd.SilenceUsage = true
		slog.Info("starting bridge", "config", cfg, "version", version.Detailed())

		return run(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().IntP("port", "p", config.DefaultPort, "local HTTP port")
	rootCmd.Flags().Bool("no-browser", false, "do not open a browser window on startup")
	rootCmd.Flags().String("remote-url", config.DefaultRemoteURL, "remote sandbox base URL")
	rootCmd.Flags().String("remote-token", "", "remote sandbox bearer token")
	rootCmd.Flags().String("log-level", config.DefaultLogLevel, "debug, info, warn, or error")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	viper.AddConfigPath(config.DefaultConfigDir)
	viper.SetConfigName(config.DefaultConfigFileName)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("no_browser", cmd.Flags().Lookup("no-browser"))
	viper.BindPFlag("remote_url", cmd.Flags().Lookup("remote-url"))
	viper.BindPFlag("remote_token", cmd.Flags().Lookup("remote-token"))
	viper.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))

	if len(args) == 1 {
		viper.Set("project_path", args[0])
	}

	viper.SetEnvPrefix("BRIDGE")
	viper.AutomaticEnv()
	if viper.GetString("remote_token") == "" {
		if t := os.Getenv("VIBEFOUNDRY_REMOTE_TOKEN"); t != "" {
			viper.Set("remote_token", t)
		}
	}
	if viper.GetString("project_path") == "" {
		if p := os.Getenv("VIBEFOUNDRY_PROJECT_PATH"); p != "" {
			viper.Set("project_path", p)
		}
	}

	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	projects := project.NewManager(ctx)
	if cfg.ProjectPath != "" {
		if _, err := projects.Select(cfg.ProjectPath); err != nil {
			return fmt.Errorf("select initial project %q: %w", cfg.ProjectPath, err)
		}
	}

	server := httpapi.NewServer(projects, cfg.RemoteToken)
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if !cfg.NoBrowser {
		openBrowser(fmt.Sprintf("http://%s", addr))
	}

	// The HTTP server and the idle heartbeat run as one orchestrated group:
	// either returning an error tears down the other via ctx cancellation.
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		slog.Info("bridge listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return runHeartbeat(groupCtx, projects)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("graceful shutdown failed", "error", err)
		}
		return nil
	})

	err := group.Wait()
	slog.Info("bye")
	return err
}

// runHeartbeat logs the daemon's idle/active state periodically so a user
// tailing the log file can see the process is alive between requests.
func runHeartbeat(ctx context.Context, projects *project.Manager) error {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			slog.Debug("heartbeat", "project_selected", projects.Current() != nil)
		}
	}
}

// openBrowser best-effort opens url in the user's default browser, failing
// silently since this is a convenience, not a requirement.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if strings.Contains(err.Error(), "select initial project") {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
