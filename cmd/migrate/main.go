// migrate runs DB migrations from embedded SQL for the configured STORAGE_DRIVER;
// use with go run ./cmd/migrate -direction up.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/itsfredrick/vayva-platform-sub007/internal/config"
	"github.com/itsfredrick/vayva-platform-sub007/internal/db"
	"github.com/itsfredrick/vayva-platform-sub007/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	switch cfg.StorageDriver {
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "sqlite:", err)
			os.Exit(1)
		}
		defer conn.Close()
		err = migrate.RunSQLite(conn, *direction)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
	default:
		if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("migrations %s applied (%s)\n", *direction, cfg.StorageDriver)
}
