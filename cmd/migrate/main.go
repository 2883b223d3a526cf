package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/saviobatista/fsd-connector/internal/config"
	"github.com/saviobatista/fsd-connector/internal/db/migrations"
	"github.com/saviobatista/fsd-connector/internal/logging"
)

type options struct {
	dbURL    string
	rollback bool
	status   bool
}

func main() {
	cfg, err := config.LoadServices()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	logger := logging.Setup(cfg.LogLevel)

	opts, err := parseFlags(os.Args[1:], cfg.DBConnStr)
	if err != nil {
		logger.WithError(err).Error("invalid arguments")
		os.Exit(2)
	}

	db, err := sql.Open("postgres", opts.dbURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}

	if err := db.Ping(); err != nil {
		logger.WithError(err).Error("failed to ping database")
		db.Close()
		os.Exit(1)
	}

	if err := runMigrate(migrations.New(db, logger), migrations.All(), opts, os.Stdout, logger); err != nil {
		logger.WithError(err).Error("migration failed")
		db.Close()
		os.Exit(1)
	}

	db.Close()
}

func parseFlags(args []string, defaultURL string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.StringVar(&opts.dbURL, "db", defaultURL, "Database connection string")
	fs.BoolVar(&opts.rollback, "rollback", false, "Rollback the last migration")
	fs.BoolVar(&opts.status, "status", false, "Print which migrations are applied")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.rollback && opts.status {
		return opts, fmt.Errorf("-rollback and -status are mutually exclusive")
	}
	return opts, nil
}

// Runner is the part of the migrator the command drives
type Runner interface {
	Migrate(migrations []*migrations.Migration) (int, error)
	Rollback(migrations []*migrations.Migration) error
	Status(migrations []*migrations.Migration) ([]migrations.Status, error)
}

func runMigrate(r Runner, list []*migrations.Migration, opts options, out io.Writer, logger logrus.FieldLogger) error {
	switch {
	case opts.status:
		status, err := r.Status(list)
		if err != nil {
			return err
		}
		for _, s := range status {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Fprintf(out, "%-28s %s\n", s.Name, state)
		}
		return nil
	case opts.rollback:
		return r.Rollback(list)
	default:
		count, err := r.Migrate(list)
		if err != nil {
			return err
		}
		logger.WithField("applied", count).Info("database is up to date")
		return nil
	}
}
