package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/brensch/pscparquet/internal/config"
	"github.com/brensch/pscparquet/internal/db"
)

const envPrefix = "PSCPARQUET"

var (
	// Config flags - bound in init()
	cfgFile           string
	baseURL           string
	listingURL        string
	stagingDir        string
	dbPath            string
	workers           int
	storageBackend    string
	bucket            string
	localStoreDir     string
	s3Region          string
	s3Endpoint        string
	minioEndpoint     string
	accessKeyID       string
	secretAccessKey   string
	useSSL            bool
	downloadRateLimit float64
	httpTimeout       time.Duration
	intCasts          map[string]string
	dateCasts         []string
	logFormat         string
	logLevel          string
	logOutput         string

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	dbConn     *sql.DB
	appConfig  config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pscparquet",
	Short: "Ingest the Companies House PSC snapshot into raw and processed object storage.",
	Long: `pscparquet downloads the partitioned "persons with significant control" snapshot,
stages each raw archive in the raw zone of an object store, flattens the NDJSON records
into Parquet and uploads the result to the processed zone. Partitions run concurrently.
A DuckDB database tracks the event history of every partition.

Every flag can also be set through a PSCPARQUET_<FLAG> environment variable or a config file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setAllConfig(viper.New(), cmd.Flags()); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		// --- 1. Initialize Logger ---
		logger, err := newLogger(logFormat, logLevel, logOutput)
		if err != nil {
			return err
		}
		rootLogger = logger
		slog.SetDefault(rootLogger)
		rootLogger.Debug("Logger initialized", "level", logLevel, "format", logFormat, "output", logOutput)

		// --- 2. Build and validate config ---
		appConfig, err = buildConfig()
		if err != nil {
			return err
		}
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		rootLogger.Debug("Configuration loaded",
			slog.String("storage", appConfig.StorageBackend),
			slog.String("bucket", appConfig.Bucket),
			slog.Int("workers", appConfig.Workers()))

		if appConfig.DbPath != ":memory:" {
			dbDir := filepath.Dir(appConfig.DbPath)
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}

		// --- 3. Initialize DuckDB Connection & Schema ---
		rootLogger.Debug("Initializing DuckDB connection", "path", appConfig.DbPath)
		dsn := appConfig.DbPath
		if dsn == ":memory:" {
			dsn = ""
		}
		dbConn, err = sql.Open("duckdb", dsn)
		if err != nil {
			return fmt.Errorf("failed to open duckdb database (%s): %w", appConfig.DbPath, err)
		}
		pingCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err = dbConn.PingContext(pingCtx); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to ping duckdb database (%s): %w", appConfig.DbPath, err)
		}
		if err := db.InitializeSchema(dbConn); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if dbConn != nil {
			if err := dbConn.Close(); err != nil {
				rootLogger.Error("Failed to close DuckDB connection cleanly", "error", err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and runs it until an
// interrupt or SIGTERM cancels the context.
func Execute() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(stateCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	defaults := config.Default()
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	f.StringVar(&baseURL, "base-url", defaults.BaseURL, "Base URL the snapshot archives are downloaded from")
	f.StringVar(&listingURL, "listing-url", defaults.ListingURL, "Page listing the published snapshot archives")
	f.StringVar(&stagingDir, "staging-dir", defaults.StagingDir, "Parent directory for per-partition staging (default: OS temp dir)")
	f.StringVarP(&dbPath, "db-path", "d", defaults.DbPath, "Path to DuckDB state database file (:memory: for in-memory)")
	f.IntVarP(&workers, "workers", "w", 0, "Concurrent partitions (0: number of CPUs minus 2, at least 1)")
	f.StringVar(&storageBackend, "storage", defaults.StorageBackend, "Object storage backend (local, s3 or minio)")
	f.StringVar(&bucket, "bucket", defaults.Bucket, "Destination bucket")
	f.StringVar(&localStoreDir, "local-store-dir", defaults.LocalStoreDir, "Root directory of the local storage backend")
	f.StringVar(&s3Region, "s3-region", defaults.S3Region, "AWS region for the s3 backend")
	f.StringVar(&s3Endpoint, "s3-endpoint", "", "Custom S3 endpoint (path style)")
	f.StringVar(&minioEndpoint, "minio-endpoint", "", "MinIO endpoint host:port")
	f.StringVar(&accessKeyID, "access-key-id", "", "Access key for s3 or minio (s3 falls back to the default credential chain)")
	f.StringVar(&secretAccessKey, "secret-access-key", "", "Secret key for s3 or minio")
	f.BoolVar(&useSSL, "use-ssl", defaults.UseSSL, "Use TLS for the minio backend")
	f.Float64Var(&downloadRateLimit, "rate-limit", 0, "Maximum archive downloads started per second (0: unlimited)")
	f.DurationVar(&httpTimeout, "http-timeout", defaults.HTTPTimeout, "Timeout for one archive download")
	f.StringToStringVar(&intCasts, "cast-int", nil, "Integer casts as column=width, e.g. month=int8,year=int16 (default: month=int8,year=int16)")
	f.StringSliceVar(&dateCasts, "cast-date", defaults.Cast.Dates, "Columns cast from YYYY-MM-DD strings to dates")
	f.StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	f.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "0.1.0"
}

// setAllConfig layers environment variables and the optional config file
// under the command line flags. A flag set on the command line always wins.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	validTags := make(map[string]bool)
	flags.VisitAll(func(f *pflag.Flag) {
		validTags[f.Name] = true
	})

	if c := v.GetString("config"); c != "" {
		v.SetConfigFile(c)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %w", c, err)
		}
		for _, key := range v.AllKeys() {
			// Map flags such as cast-int appear as cast-int.<column>.
			name, _, _ := strings.Cut(key, ".")
			if !validTags[name] {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		// Unset in env and file, or already set on the command line.
		if flagErr != nil || f.Changed || !v.IsSet(f.Name) {
			return
		}
		var value string
		switch f.Value.Type() {
		case "stringSlice":
			value = strings.Join(v.GetStringSlice(f.Name), ",")
		case "stringToString":
			pairs := make([]string, 0)
			for k, val := range v.GetStringMapString(f.Name) {
				pairs = append(pairs, k+"="+val)
			}
			value = strings.Join(pairs, ",")
		default:
			value = v.GetString(f.Name)
		}
		flagErr = f.Value.Set(value)
	})
	return flagErr
}

func newLogger(format, levelName, output string) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(levelName) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var logWriter io.Writer = os.Stderr
	switch strings.ToLower(output) {
	case "", "stderr":
	case "stdout":
		logWriter = os.Stdout
	default:
		// Left open for the life of the process.
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		logWriter = f
	}

	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(logWriter, opts)), nil
	}
	return slog.New(slog.NewTextHandler(logWriter, opts)), nil
}

func buildConfig() (config.Config, error) {
	cfg := config.Default()
	cfg.BaseURL = baseURL
	cfg.ListingURL = listingURL
	cfg.StagingDir = stagingDir
	cfg.DbPath = dbPath
	cfg.NumWorkers = workers
	cfg.StorageBackend = strings.ToLower(storageBackend)
	cfg.Bucket = bucket
	cfg.LocalStoreDir = localStoreDir
	cfg.S3Region = s3Region
	cfg.S3Endpoint = s3Endpoint
	cfg.MinioEndpoint = minioEndpoint
	cfg.AccessKeyID = accessKeyID
	cfg.SecretAccessKey = secretAccessKey
	cfg.UseSSL = useSSL
	cfg.DownloadRateLimit = downloadRateLimit
	cfg.HTTPTimeout = httpTimeout
	cfg.Cast.Dates = dateCasts
	if len(intCasts) > 0 {
		ints, err := config.ParseIntCasts(intCasts)
		if err != nil {
			return cfg, err
		}
		cfg.Cast.Ints = ints
	}
	return cfg, nil
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getDB() *sql.DB {
	return dbConn
}

func getConfig() config.Config {
	return appConfig
}
