package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"campusroomz/internal/config"
	"campusroomz/internal/db"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "campusroomz",
		Usage: "campus room booking service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/config.yaml",
				EnvVars: []string{"CAMPUSROOMZ_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "debug",
				EnvVars: []string{"CAMPUSROOMZ_DEBUG"},
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and background jobs",
				Action: serve,
			},
			{
				Name:   "export",
				Usage:  "write the audit workbook and prune old records now",
				Action: exportAudit,
			},
			{
				Name:   "backup",
				Usage:  "snapshot the database now",
				Action: backupNow,
			},
			{
				Name:   "sync-rooms",
				Usage:  "load the room catalog file into the database",
				Action: syncRooms,
			},
			{
				Name:  "token",
				Usage: "mint a development bearer token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "sub", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "department"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
				Action: mintToken,
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "campusroomz:", err)
		os.Exit(1)
	}
}

// setup loads the config and builds the root logger.
func setup(cctx *cli.Context) (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, cctx.Bool("debug"), os.Stdout)
	return cfg, logger, nil
}

func newLogger(level, format string, debug bool, out io.Writer) *zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}

	if format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return &logger
}

func openDB(cfg *config.Config, logger *zerolog.Logger) (*db.DB, error) {
	database, err := db.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return database, nil
}
