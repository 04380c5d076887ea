package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"relpack/internal/history"
	"relpack/internal/project"
	"relpack/internal/publish"
	"relpack/internal/security"
	"relpack/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	configFile string
	rootDir    string
	logFile    string
	dbPath     string
	projects   []string
	platforms  []string
	verbose    bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Build and package every project for every platform",
	Long: `Publish every configured project for every configured platform.

For each pair the toolchain is invoked, debug symbols are removed from its
output, and the output is archived to <output_dir>/<project>-<platform>.zip.
The output directory is wiped at the start of every run.

Without a configuration file the compiled-in defaults are used.`,
	Example: `  relpack publish
  relpack publish --config relpack.yaml --platform linux-x64
  relpack publish --history ./publish.db --log ./publish.log`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

func init() {
	addPublishFlags(publishCmd)
}

func addPublishFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&configFile, "config", "c", getEnvOrDefault("RELPACK_CONFIG_FILE", ""), "Path to relpack.yaml configuration file")
	cmd.Flags().StringVar(&rootDir, "root", "", "Build root containing the project directories (overrides config)")
	cmd.Flags().StringVar(&logFile, "log", getEnvOrDefault("RELPACK_LOG_FILE", ""), "Also write JSON logs to this file")
	cmd.Flags().StringVar(&dbPath, "history", getEnvOrDefault("RELPACK_HISTORY_DB", ""), "Record results in this SQLite database")
	cmd.Flags().StringSliceVarP(&projects, "project", "p", nil, "Only publish these projects (repeatable)")
	cmd.Flags().StringSliceVar(&platforms, "platform", nil, "Only publish these platforms, by target or label (repeatable)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log toolchain command lines")
}

func runPublish(cmd *cobra.Command, args []string) error {
	logger, closeLog, err := setupLogging(logFile, verbose)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer closeLog()

	cfg, source, err := loadConfiguration(configFile, rootDir)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return err
	}
	logger.Debug("Configuration loaded", "source", source, "root", cfg.Root,
		"projects", len(cfg.Projects), "platforms", len(cfg.Platforms), "bundles", len(cfg.Bundles))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := publish.NewPipeline(cfg, publish.NewToolchain(cfg, logger), security.HostCapabilities(), logger)
	pipeline.Projects = projects
	pipeline.Targets = platforms

	if dbPath != "" {
		hist, err := history.NewHistory(dbPath)
		if err != nil {
			logger.Error("Failed to initialize history database", "error", err)
			return fmt.Errorf("failed to initialize history database: %w", err)
		}
		defer hist.Close()
		pipeline.Recorder = hist
	}

	summary, err := pipeline.Run(ctx)
	if err != nil {
		logger.Error("Publish failed", "error", err, "archives", len(summary.Results))
		return err
	}

	for _, path := range summary.Archives() {
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
	return nil
}

// loadConfiguration resolves the configuration from an explicit file, the
// default search paths, or the compiled-in defaults, in that order.
// It returns the config and a description of where it came from.
func loadConfiguration(path, root string) (*project.Config, string, error) {
	if path == "" {
		path = fileutil.SearchPathsOptional(fileutil.DefaultConfigPaths(project.DefaultConfigFileName))
	}

	var cfg *project.Config
	source := "defaults"
	if path != "" {
		loaded, err := project.LoadConfig(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg, source = loaded, path
	} else {
		cfg = project.DefaultConfig()
	}

	if root != "" {
		cfg.Root = root
	}
	absRoot, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve root: %w", err)
	}
	cfg.Root = absRoot

	if errs := project.ValidateConfig(cfg); len(errs) > 0 {
		return nil, "", fmt.Errorf("invalid configuration (%s):\n%s", source, strings.Join(errs, "\n"))
	}

	return cfg, source, nil
}

// setupLogging configures slog. Operators get a text log on stdout; with a
// log file, JSON records go to both stdout and the file.
// The returned func closes the log file, if any.
func setupLogging(logPath string, debug bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if logPath == "" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), func() {}, nil
	}

	// Create log directory if needed
	if err := os.MkdirAll(filepath.Dir(logPath), security.PermDirectory); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Open log file with secure permissions
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, security.PermLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Create multi-writer to log to both file and console
	multiWriter := io.MultiWriter(os.Stdout, file)
	logger := slog.New(slog.NewJSONHandler(multiWriter, opts))

	return logger, func() { file.Close() }, nil
}

// Helper functions for environment variables
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
