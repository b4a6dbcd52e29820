package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jalliet/UM-GemiFish/internal/api"
	"github.com/jalliet/UM-GemiFish/internal/genai"
	"github.com/jalliet/UM-GemiFish/internal/lockfile"
	"github.com/jalliet/UM-GemiFish/internal/store"
	"github.com/jalliet/UM-GemiFish/internal/twiliowhatsapp"
	"github.com/jalliet/UM-GemiFish/internal/util"
	"github.com/jalliet/UM-GemiFish/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for GemiFish state data
	DefaultStateDir = "/var/lib/gemifish"
	// DataDirName is the contact record directory inside the state directory
	DataDirName = "data"
	// UploadsDirName is the media namespace root inside the state directory
	UploadsDirName = "uploads"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	// One writer per state directory; the contact store only serializes
	// within a process.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	waOpts := buildWhatsAppOptions(flags)
	storeOpts := buildStoreOptions(flags)
	twilioOpts := buildTwilioOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping GemiFish with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "whatsapp_channel", *flags.whatsappChannel)
	if err := api.Run(waOpts, storeOpts, twilioOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("GemiFish failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("GemiFish exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	WhatsAppDSN     string
	StateDir        string
	OpenAIKey       string
	APIAddr         string
	TwilioSID       string
	TwilioToken     string
	TwilioFrom      string
	WhatsAppChannel bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput        *string
	numeric         *bool
	stateDir        *string
	dbDSN           *string
	waDSN           *string
	openaiKey       *string
	apiAddr         *string
	twilioSID       *string
	twilioToken     *string
	twilioFrom      *string
	whatsappChannel *bool
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
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:        util.GetenvDefault("GEMIFISH_STATE_DIR", DefaultStateDir),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		APIAddr:         os.Getenv("API_ADDR"),
		TwilioSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:      os.Getenv("TWILIO_FROM_NUMBER"),
		WhatsAppChannel: util.ParseBoolEnv("WHATSAPP_CHANNEL", false),
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"GEMIFISH_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"WHATSAPP_CHANNEL", config.WhatsAppChannel)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:        flag.String("qr-output", "", "path to write login QR code for the direct WhatsApp channel"),
		numeric:         flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for GemiFish data (overrides $GEMIFISH_STATE_DIR)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "contact store DSN; empty selects the JSON file store (overrides $DATABASE_URL)"),
		waDSN:           flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow session database DSN (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:       flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for the agent responder (overrides $OPENAI_API_KEY)"),
		apiAddr:         flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		twilioSID:       flag.String("twilio-account-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:     flag.String("twilio-auth-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:      flag.String("twilio-from", config.TwilioFrom, "Twilio WhatsApp sender number (overrides $TWILIO_FROM_NUMBER)"),
		whatsappChannel: flag.Bool("whatsapp-channel", config.WhatsAppChannel, "enable the direct-session WhatsApp channel (overrides $WHATSAPP_CHANNEL)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"whatsappChannel", *flags.whatsappChannel)

	return flags
}

// buildWhatsAppOptions constructs direct-channel WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	waDSN := *flags.waDSN
	if waDSN == "" {
		waDSN = filepath.Join(*flags.stateDir, "whatsmeow.db")
	}
	waOpts = append(waOpts, whatsapp.WithDBDSN(waDSN))
	return waOpts
}

// buildStoreOptions constructs contact store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		dataDir := filepath.Join(*flags.stateDir, DataDirName)
		slog.Debug("No database DSN provided, using JSON file store", "data_dir", dataDir)
		storeOpts = append(storeOpts, store.WithFileDir(dataDir))
	}
	return storeOpts
}

// buildTwilioOptions constructs Twilio configuration options
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	var twilioOpts []twiliowhatsapp.Option
	if *flags.twilioSID != "" {
		twilioOpts = append(twilioOpts, twiliowhatsapp.WithAccountSID(*flags.twilioSID))
	}
	if *flags.twilioToken != "" {
		twilioOpts = append(twilioOpts, twiliowhatsapp.WithAuthToken(*flags.twilioToken))
	}
	if *flags.twilioFrom != "" {
		twilioOpts = append(twilioOpts, twiliowhatsapp.WithFromWhats(*flags.twilioFrom))
	}
	return twilioOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{api.WithUploadsDir(filepath.Join(*flags.stateDir, UploadsDirName))}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.whatsappChannel {
		apiOpts = append(apiOpts, api.WithWhatsAppChannel())
	}
	return apiOpts
}
