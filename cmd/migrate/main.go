// Command migrate applies the docsieve schema migrations.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"docsieve/internal/config"
)

func main() {
	dir := flag.String("dir", "db/migrations", "migrations directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("migrate: loading config: %v", err)
	}

	m, err := migrate.New("file://"+*dir, cfg.DB.DSN())
	if err != nil {
		log.Fatalf("migrate: opening migrations: %v", err)
	}
	defer m.Close()

	args := flag.Args()
	if len(args) < 1 {
		usage()
	}

	switch args[0] {
	case "up":
		run(m.Up, "applied all pending migrations")
	case "down":
		run(m.Down, "reverted all migrations")
	case "steps":
		if len(args) < 2 {
			log.Fatal("migrate: steps requires a count")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("migrate: invalid step count %q", args[1])
		}
		run(func() error { return m.Steps(n) }, fmt.Sprintf("applied %d steps", n))
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("migrate: reading version: %v", err)
		}
		fmt.Printf("version: %d, dirty: %v\n", version, dirty)
	default:
		usage()
	}
}

func run(fn func() error, ok string) {
	if err := fn(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("migrate: " + ok)
}

func usage() {
	fmt.Println("Usage: migrate [-dir path] up|down|steps N|version")
	os.Exit(1)
}
