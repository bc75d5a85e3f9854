package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zeedohq/reversal-bot/internal/config"
	"github.com/zeedohq/reversal-bot/internal/engine"
	"github.com/zeedohq/reversal-bot/internal/exchange/binance"
	"github.com/zeedohq/reversal-bot/internal/exchange/bybit"
	"github.com/zeedohq/reversal-bot/internal/logger"
	"github.com/zeedohq/reversal-bot/internal/monitoring"
	"github.com/zeedohq/reversal-bot/internal/notifications"
	"github.com/zeedohq/reversal-bot/internal/storage"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Configuration file (e.g., main_account.json)")
		envFile     = flag.String("env", ".env", "Environment file path (default: .env)")
		environment = flag.String("environment", "", "Bybit environment (mainnet, testnet, demo) - overrides config")
	)
	flag.Parse()

	if *configFile == "" {
		log.Fatal("Please specify a config file with -config flag")
	}

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("Warning: Could not load .env file (%v), checking environment variables...", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *environment != "" {
		cfg.Exchange.Environment = *environment
	}

	apiKey, apiSecret, err := apiCredentials()
	if err != nil {
		log.Fatalf("API credentials validation failed: %v", err)
	}

	fmt.Printf("🚀 Reversal scanner starting (account %s, %s)...\n", cfg.AccountID, cfg.Exchange.Environment)

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage backend: %v", err)
	}

	activity, err := logger.NewLogger(cfg.AccountID)
	if err != nil {
		log.Fatalf("Failed to open activity log: %v", err)
	}
	defer activity.Close()

	venue := bybit.NewClient(bybit.Config{
		APIKey:      apiKey,
		APISecret:   apiSecret,
		Environment: cfg.Exchange.Environment,
	})
	reference := binance.NewReference(cfg.Exchange.ReferenceBaseURL)

	health := monitoring.NewHealthChecker()

	eng, err := engine.New(cfg, engine.Deps{
		Venue:     venue,
		Reference: reference,
		Store:     store,
		Notifier:  buildNotifier(cfg),
		Health:    health,
		Activity:  activity,
	})
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	if cfg.Monitoring != nil && cfg.Monitoring.Enabled {
		go serveMonitoring(cfg.Monitoring.ListenAddr, health, eng)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("Engine stopped with error: %v", err)
	}

	fmt.Println("\n🛑 Shutdown signal received...")
	eng.Shutdown()
	fmt.Println("✅ Scanner stopped")
}

// loadEnvFile loads environment variables from a file
func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}

// apiCredentials reads the venue credentials from the environment.
func apiCredentials() (key, secret string, err error) {
	key = os.Getenv("BYBIT_API_KEY")
	secret = os.Getenv("BYBIT_API_SECRET")
	if key == "" {
		return "", "", fmt.Errorf("BYBIT_API_KEY is required (set in environment or .env)")
	}
	if secret == "" {
		return "", "", fmt.Errorf("BYBIT_API_SECRET is required (set in environment or .env)")
	}
	return key, secret, nil
}

// openStore builds the persistence backend selected in the config.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "redis":
		return storage.NewRedisStore(
			cfg.Storage.RedisAddr,
			cfg.Storage.RedisPassword,
			cfg.Storage.RedisDB,
			"reversal-bot:"+cfg.AccountID,
		)
	default:
		dir := cfg.Storage.Dir
		if dir == "" {
			dir = "data"
		}
		return storage.NewFileStore(dir)
	}
}

func buildNotifier(cfg *config.Config) notifications.Notifier {
	if cfg.Notifications != nil && cfg.Notifications.Enabled && cfg.Notifications.TelegramToken != "" {
		return notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChat)
	}
	log.Println("Telegram notifications disabled, alerts go to the process log")
	return notifications.LogNotifier{}
}

// serveMonitoring exposes metrics, health and the pause toggle.
func serveMonitoring(addr string, health *monitoring.HealthChecker, eng *engine.Engine) {
	if addr == "" {
		addr = ":9090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	mux.Handle("/health", health)
	mux.HandleFunc("/pause", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		eng.Pause()
		fmt.Fprintln(w, "paused")
	})
	mux.HandleFunc("/resume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		eng.Resume()
		fmt.Fprintln(w, "resumed")
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Printf("Monitoring listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("Monitoring server stopped: %v", err)
	}
}
