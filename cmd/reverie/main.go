package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reveriehq/reverie/internal/api"
	"github.com/reveriehq/reverie/internal/enrich"
	"github.com/reveriehq/reverie/internal/letter"
	"github.com/reveriehq/reverie/internal/lockfile"
	"github.com/reveriehq/reverie/internal/recovery"
	"github.com/reveriehq/reverie/internal/scheduler"
	"github.com/reveriehq/reverie/internal/store"
	"github.com/reveriehq/reverie/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Reverie state data
	DefaultStateDir = "/var/lib/reverie"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "reverie.db"
	// DefaultJobPollInterval is how often the job runner polls for due work
	DefaultJobPollInterval = 10 * time.Second
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("Reverie failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Reverie exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	TwilioSID   string
}

// Flags holds command line flag values
type Flags struct {
	stateDir        *string
	dbDSN           *string
	openaiKey       *string
	apiAddr         *string
	jobPollInterval *time.Duration
	lettersEnabled  bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("REVERIE_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		TwilioSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No REVERIE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("REVERIE_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"REVERIE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for Reverie data (overrides $REVERIE_STATE_DIR)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "database DSN: SQLite file path or PostgreSQL connection string (overrides $DATABASE_URL)"),
		openaiKey:       flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for enrichment (overrides $OPENAI_API_KEY)"),
		apiAddr:         flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		jobPollInterval: flag.Duration("job-poll-interval", DefaultJobPollInterval, "how often the job runner polls for due work"),
	}

	flag.Parse()

	// Dream letters need Twilio credentials and can be switched off outright
	// with REVERIE_LETTERS_ENABLED; without them the rest of the service runs
	// and the letter queue simply stays idle.
	flags.lettersEnabled = config.TwilioSID != "" && util.ParseBoolEnv("REVERIE_LETTERS_ENABLED", true)

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"jobPollInterval", *flags.jobPollInterval,
		"lettersEnabled", flags.lettersEnabled)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == filepath.Join(DefaultStateDir, DefaultDBFileName) && *flags.stateDir != DefaultStateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) ([]store.Option, string) {
	dsnType := store.DetectDSNType(*flags.dbDSN)
	if dsnType == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return []store.Option{store.WithPostgresDSN(*flags.dbDSN)}, dsnType
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return []store.Option{store.WithSQLiteDSN(*flags.dbDSN)}, dsnType
}

// buildEnrichOptions constructs enrichment client configuration options
func buildEnrichOptions(flags Flags) []enrich.Option {
	var opts []enrich.Option
	if *flags.openaiKey != "" {
		opts = append(opts, enrich.WithAPIKey(*flags.openaiKey))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var opts []api.Option
	if *flags.apiAddr != "" {
		opts = append(opts, api.WithAddr(*flags.apiAddr))
	}
	return opts
}

// openStore opens the configured persistence backend.
func openStore(flags Flags) (store.Store, error) {
	storeOpts, dsnType := buildStoreOptions(flags)
	if dsnType == "postgres" {
		return store.NewPostgresStore(storeOpts...)
	}
	return store.NewSQLiteStore(storeOpts...)
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	slog.Info("Bootstrapping Reverie with configured modules")

	// One instance per state directory.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	gen, err := enrich.NewClient(buildEnrichOptions(flags)...)
	if err != nil {
		return err
	}

	runner := store.NewJobRunner(st, *flags.jobPollInterval)
	enrich.NewWorker(st, gen).Register(runner)

	var dispatcher *letter.Dispatcher
	if flags.lettersEnabled {
		sender, err := letter.NewTwilioSender()
		if err != nil {
			return err
		}
		dispatcher = letter.NewDispatcher(st, sender)
	} else {
		slog.Info("Dream letters disabled: no Twilio credentials configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pick interrupted work back up before accepting new requests.
	manager := recovery.NewManager()
	manager.Register(recovery.StaleJobs{Runner: runner})
	manager.Register(recovery.StuckEnrichments{Store: st})
	if dispatcher != nil {
		manager.Register(recovery.StaleLetters{Dispatcher: dispatcher})
	}
	if err := manager.RecoverAll(ctx); err != nil {
		slog.Warn("Startup recovery was incomplete", "error", err)
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if dispatcher != nil {
		if err := sched.AddDailyAt(letter.DeliveryHour, func() {
			sent := dispatcher.DispatchDue(ctx)
			slog.Info("Morning letter dispatch finished", "sent", sent)
		}); err != nil {
			return err
		}
	}

	go runner.Run(ctx)

	return api.NewServer(st, buildAPIOptions(flags)...).Run(ctx)
}
