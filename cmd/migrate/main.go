// Command migrate applies SQL migrations for one service:
//
//	migrate -dir migrations/idp -dsn $DATABASE_URL up
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Iradukunda-Fils/microservices-demo/internal/migrate"
)

func main() {
	var (
		dir = flag.String("dir", "", "migrations directory (e.g. migrations/idp)")
		dsn = flag.String("dsn", os.Getenv("DATABASE_URL"), "database connection string")
	)
	flag.Parse()

	if *dir == "" || *dsn == "" {
		fmt.Fprintln(os.Stderr, "usage: migrate -dir <migrations dir> [-dsn <url>] up|down|status")
		os.Exit(1)
	}
	action := flag.Arg(0)
	if action == "" {
		action = "up"
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	mgr := migrate.NewManager(db, *dir)
	switch action {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var applied []string
		applied, err = mgr.Status(ctx)
		for _, name := range applied {
			fmt.Println(name)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", action)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
		os.Exit(1)
	}
}
