package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/zeedohq/reversal-bot/internal/config"
	"github.com/zeedohq/reversal-bot/internal/storage"
	"github.com/zeedohq/reversal-bot/pkg/reporting"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file used by the bot (selects the storage backend)")
		dataDir    = flag.String("dir", "", "State directory (file backend shortcut, skips -config)")
		days       = flag.Int("days", 30, "Report window in days, ending now")
		xlsxPath   = flag.String("xlsx", "", "Optional Excel output path (e.g., report.xlsx)")
	)
	flag.Parse()

	store, err := openStore(*configFile, *dataDir)
	if err != nil {
		log.Fatalf("Failed to open storage backend: %v", err)
	}

	ledger, err := store.LoadLedger()
	if err != nil {
		log.Fatalf("Failed to load trade ledger: %v", err)
	}
	if len(ledger) == 0 {
		fmt.Println("No trades recorded yet")
		return
	}

	to := time.Now()
	from := to.AddDate(0, 0, -*days)

	summary := reporting.Summarize(ledger, from, to)
	reporting.WriteConsole(os.Stdout, summary)

	if *xlsxPath != "" {
		if err := reporting.WriteXLSX(ledger, summary, *xlsxPath); err != nil {
			log.Fatalf("Failed to write Excel report: %v", err)
		}
		fmt.Printf("\n📊 Excel report saved to %s\n", *xlsxPath)
	}
}

func openStore(configFile, dataDir string) (storage.Store, error) {
	if dataDir != "" {
		return storage.NewFileStore(dataDir)
	}
	if configFile == "" {
		return storage.NewFileStore("data")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
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
