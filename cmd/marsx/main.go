package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schaermu/marsx/internal/blockfs"
	"github.com/schaermu/marsx/internal/compile"
	"github.com/schaermu/marsx/internal/config"
	"github.com/schaermu/marsx/internal/importcache"
	"github.com/schaermu/marsx/internal/launcher"
	"github.com/schaermu/marsx/internal/loader"
	"github.com/schaermu/marsx/internal/migrate"
	"github.com/schaermu/marsx/internal/remote"
	"github.com/schaermu/marsx/internal/sfc"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool

	// Start flags
	prepareOnly bool

	// Migrate flags
	fromFile   string
	fromImport string
	layout     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "marsx",
	Short: "Load, compile and launch marsx blocks",
	Long: `marsx loads the blocks of a project from its local blocks directory and from
the remote projects it imports, compiles the booter block and starts it.

Without a subcommand marsx behaves like "marsx start".`,
	SilenceUsage: true,
	RunE:         runStart,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Load all blocks and run the booter block",
	Long: `Start resolves every configured import (using the import cache when possible),
reads the local blocks directory, compiles the BlockFunction of the booter
block and runs it with the configured runtime.`,
	RunE: runStart,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Convert legacy blocks into block files",
	Long: `Migrate reads legacy flat block records, either from a JSON export file or from
the legacy endpoint of a configured import, converts them and writes them
below the blocks directory in the configured layout.

Files are only written when their content changes.`,
	RunE: runMigrate,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Parse every local block and report all problems",
	RunE:  runCheck,
}

var fmtCmd = &cobra.Command{
	Use:   "fmt",
	Short: "Rewrite local blocks in canonical form",
	RunE:  runFmt,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the import cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached import results",
	RunE:  runCacheClear,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("marsx %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config/default.yaml or config/default.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Start command flags
	for _, cmd := range []*cobra.Command{rootCmd, startCmd} {
		cmd.Flags().BoolVar(&prepareOnly, "prepare-only", false, "compile the booter and write the manifest without running it")
	}

	// Migrate command flags
	migrateCmd.Flags().StringVar(&fromFile, "from-file", "", "JSON export of legacy blocks")
	migrateCmd.Flags().StringVar(&fromImport, "from-import", "", "name of a configured import to download legacy blocks from")
	migrateCmd.Flags().StringVar(&layout, "layout", "", "output layout (single, sections); overrides migrate.layout")
	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")

	fmtCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")

	// Add commands
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(fmtCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Setup logger
	logger := setupLogger()

	// Load configuration
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Create dependencies
	client := remote.NewHTTPClient(cfg.FetchTimeout, logger)
	cache := importcache.New(cfg.ImportsCacheDir())
	blockLoader := loader.New(cfg, client, cache, logger)

	transpiler := compile.NewCommandTranspiler(cfg.Compile.Command, cfg.Compile.Args...)
	compiler, err := compile.NewCompiler(cfg.BlocksDir, cfg.CompiledDir(), transpiler, logger)
	if err != nil {
		return err
	}
	runner := launcher.NewCommandRunner(cfg.Runtime.Command, cfg.Runtime.Args...)

	l := launcher.New(cfg, blockLoader, compiler, runner, logger)

	if prepareOnly {
		entry, err := l.Prepare(ctx)
		if err != nil {
			logger.Error("prepare failed", "error", err)
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", entry.Code, entry.Manifest)
		return nil
	}

	if err := l.Launch(ctx); err != nil {
		logger.Error("launch failed", "error", err)
		return err
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if layout != "" {
		cfg.Migrate.Layout = config.Layout(layout)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid --layout: %w", err)
		}
	}

	src, err := recordSource(cfg, logger)
	if err != nil {
		return err
	}

	engine := migrate.NewEngine(cfg, logger, dryRun)
	if _, err := engine.Migrate(ctx, src); err != nil {
		logger.Error("migration failed", "error", err)
		return err
	}
	return nil
}

// recordSource picks the legacy record source named by the migrate flags.
func recordSource(cfg *config.Config, logger *slog.Logger) (migrate.RecordSource, error) {
	switch {
	case fromFile != "" && fromImport != "":
		return nil, errors.New("--from-file and --from-import are mutually exclusive")
	case fromFile != "":
		return migrate.FileSource{Path: fromFile}, nil
	case fromImport != "":
		for _, imp := range cfg.ImportProjects {
			if imp.Name == fromImport {
				return migrate.ImportSource{
					Fetcher: remote.NewHTTPClient(cfg.FetchTimeout, logger),
					Import:  imp,
				}, nil
			}
		}
		return nil, fmt.Errorf("import %q is not configured", fromImport)
	default:
		return nil, errors.New("one of --from-file or --from-import is required")
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	checked, problems, err := blockfs.Check(ctx, cfg.BlocksDir, sfc.Options{SaveEmptySources: cfg.SaveEmptySources()})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, p := range problems {
		_, _ = fmt.Fprintf(out, "%s: %v\n", p.RelPath, p.Err)
	}
	_, _ = fmt.Fprintf(out, "checked %d block(s), %d with problems\n", checked, len(problems))

	if len(problems) > 0 {
		return fmt.Errorf("%d block(s) failed to parse", len(problems))
	}
	return nil
}

func runFmt(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine := migrate.NewEngine(cfg, logger, dryRun)
	if _, err := engine.Format(ctx); err != nil {
		logger.Error("format failed", "error", err)
		return err
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cache := importcache.New(cfg.ImportsCacheDir())
	if err := cache.Clear(); err != nil {
		return err
	}
	logger.Info("import cache cleared", "dir", cache.Dir())
	return nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	configPath, err := config.ResolvePath(cfgFile)
	if err != nil {
		return nil, err
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"project", cfg.ProjectName,
		"blocks_dir", cfg.BlocksDir,
		"cache_dir", cfg.CacheDir,
		"imports", len(cfg.ImportProjects))

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
