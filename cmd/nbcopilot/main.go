package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nbcopilot/internal/config"
	"nbcopilot/internal/logging"
	"nbcopilot/internal/server"
)

var (
	// Global flags
	configPath string
	debug      bool

	// Serve flags
	host         string
	port         int
	notebookPath string
	staticDir    string
	model        string
	noPlanner    bool
	manualApply  bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "nbcopilot",
	Short: "nbcopilot - collaborative notebook editing agent",
	Long: `nbcopilot hosts a co-editing session over a Jupyter notebook: browser
clients connect over a websocket, prompts are handled by an LLM-backed
agent that plans and then edits cells through tools, and every change
is broadcast to all subscribers before it is applied.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the co-editing server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Flags beat both file and environment.
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}
	if notebookPath != "" {
		cfg.NotebookPath = notebookPath
	}
	if staticDir != "" {
		cfg.StaticDir = staticDir
	}
	if model != "" {
		cfg.LLM.Model = model
	}
	if noPlanner {
		cfg.Planner = false
	}
	if manualApply {
		cfg.AutoApply = false
	}
	if debug {
		cfg.Debug = true
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to JSON config file")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&host, "host", "", "listen host")
		cmd.Flags().IntVar(&port, "port", 0, "listen port")
		cmd.Flags().StringVar(&notebookPath, "notebook", "", "notebook file to load and watch")
		cmd.Flags().StringVar(&staticDir, "static", "", "directory with the browser client")
		cmd.Flags().StringVar(&model, "model", "", "completion model override")
		cmd.Flags().BoolVar(&noPlanner, "no-planner", false, "skip the planning pre-pass")
		cmd.Flags().BoolVar(&manualApply, "manual-apply", false, "hold edits until a subscriber accepts them")
	}
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
