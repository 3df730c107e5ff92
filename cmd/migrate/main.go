package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"greenlabel.or.id/admin/internal/migrate"
	"greenlabel.or.id/admin/internal/session"
)

func main() {
	log.SetFlags(0)
	var (
		dialect = flag.String("dialect", "postgres", "postgres or sqlite")
		dsn     = flag.String("dsn", os.Getenv("GLI_PG_DSN"), "PostgreSQL DSN or SQLite path")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or GLI_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [-dialect postgres|sqlite] [up|down|status]")
	}

	var (
		d      migrate.Dialect
		driver string
	)
	switch *dialect {
	case "postgres":
		d, driver = migrate.Postgres, "pgx"
	case "sqlite":
		d, driver = migrate.SQLite, "sqlite"
	default:
		log.Fatalf("unknown dialect %q", *dialect)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open(driver, *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := session.NewSQLStorage(db, d, "").Migrator()

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var (
			applied []migrate.Record
			pending []migrate.Migration
		)
		if applied, err = mgr.Status(ctx); err != nil {
			break
		}
		if pending, err = mgr.Pending(ctx); err != nil {
			break
		}
		for _, r := range applied {
			fmt.Printf("applied  %s\n", r)
		}
		for _, m := range pending {
			fmt.Printf("pending  %s_%s\n", m.Version, m.Name)
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
