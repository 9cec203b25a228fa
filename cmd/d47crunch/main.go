package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/TobiSchelling/d47crunch/internal/config"
	"github.com/TobiSchelling/d47crunch/internal/database"
	"github.com/TobiSchelling/d47crunch/internal/dataset"
	"github.com/TobiSchelling/d47crunch/internal/metrics"
	"github.com/TobiSchelling/d47crunch/internal/pipeline"
	"github.com/TobiSchelling/d47crunch/internal/report"
	"github.com/TobiSchelling/d47crunch/internal/server"
	"github.com/TobiSchelling/d47crunch/internal/standardize"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "d47crunch",
	Short:   "Clumped-isotope Δ47 data reduction",
	Long:    "d47crunch reduces raw dual-inlet δ45-δ49 measurements of carbonate CO2 to standardized Δ47 values with full error propagation.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		var err error
		if cfg, err = loadConfig(); err != nil {
			return err
		}
		logger, err = newLogger(cfg.Logging.Level)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig reads the resolved config file, falling back to the built-in
// defaults when no file exists and none was requested.
func loadConfig() (*config.Config, error) {
	path, err := config.ResolveConfigPath(configPath)
	if err != nil {
		if configPath != "" {
			return nil, err
		}
		return config.Default(), nil
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return c, nil
}

func newLogger(level string) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("logging level: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(reduceCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("d47crunch", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/d47crunch/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set anchors, working gas and standardization options.")
		return nil
	},
}

// --- reduce command ---

var (
	reduceFormat string
	reduceSave   bool
	reduceMethod string
	reduceSplit  string
)

var reduceCmd = &cobra.Command{
	Use:   "reduce FILE",
	Short: "Run the full reduction: ingest -> working gas -> crunch -> normalize",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if reduceFormat == "" {
			reduceFormat = cfg.Output.ReportFormat
		}
		if reduceFormat != "md" && reduceFormat != "html" {
			return fmt.Errorf("unknown report format %q", reduceFormat)
		}
		split := dataset.Grouping(reduceSplit)
		if split != dataset.NotSplit && split != dataset.BySession && split != dataset.ByUID {
			return fmt.Errorf("unknown split %q", reduceSplit)
		}

		var db *database.DB
		if reduceSave {
			var err error
			if db, err = openDB(); err != nil {
				return err
			}
			defer db.Close()
		}

		m := metrics.New()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		pipe := pipeline.New(cfg, db, m, logger)
		result := pipe.RunFile(ctx, args[0], pipeline.Options{
			Method: standardize.Method(reduceMethod),
			Split:  split,
			Save:   reduceSave,
		})

		stderr := cmd.ErrOrStderr()
		for i, step := range result.Steps {
			fmt.Fprintf(stderr, "Step %d: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Fprintf(stderr, "  Error: %v\n", step.Err)
			} else {
				fmt.Fprintf(stderr, "  %s\n", step.Summary)
			}
		}

		if path := cfg.Metrics.Textfile; path != "" {
			if err := m.WriteTextfile(path); err != nil {
				logger.Warn("metrics not written", zap.String("path", path), zap.Error(err))
			}
		}
		if err := result.Err(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if reduceFormat == "html" {
			html, err := report.HTML(result.Standardization)
			if err != nil {
				return err
			}
			_, err = out.Write(html)
			return err
		}
		text, err := report.Markdown(result.Standardization)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, text)
		return err
	},
}

func init() {
	reduceCmd.Flags().StringVarP(&reduceFormat, "format", "f", "", "Report format: md or html (default from config)")
	reduceCmd.Flags().BoolVar(&reduceSave, "save", false, "Store the run in the database")
	reduceCmd.Flags().StringVarP(&reduceMethod, "method", "m", "", "Standardization method: joint or independent-sessions")
	reduceCmd.Flags().StringVar(&reduceSplit, "split", "", "Split unknowns before a joint fit: by_session or by_uid")
}

// --- stored runs ---

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No stored runs. Save one with: d47crunch reduce --save FILE")
			return nil
		}
		fmt.Print(report.Runs(runs).Markdown())
		return nil
	},
}

var showFormat string

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print the report of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rec, err := db.GetRunRecord(args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("run %s not found", args[0])
		}

		text := report.StoredMarkdown(rec)
		if showFormat == "html" {
			html, err := report.RenderHTML(text)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(html)
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ok, err := db.DeleteRun(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("run %s not found", args[0])
		}
		fmt.Printf("Removed run %s\n", args[0])
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 0, "Show at most this many runs")
	showCmd.Flags().StringVarP(&showFormat, "format", "f", "md", "Report format: md or html")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		m := metrics.New()
		pipe := pipeline.New(cfg, db, m, logger)
		fmt.Printf("Starting server at http://localhost:%d\n", servePort)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, pipe, m, logger, servePort)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "d47crunch.db")
	return database.Open(dbPath, logger)
}
