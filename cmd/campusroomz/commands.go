package main

import (
	"fmt"

	"campusroomz/internal/audit"
	"campusroomz/internal/auth"
	"campusroomz/internal/config"
	"campusroomz/internal/db"

	"github.com/urfave/cli/v2"
)

func exportAudit(cctx *cli.Context) error {
	cfg, logger, err := setup(cctx)
	if err != nil {
		return err
	}
	database, err := openDB(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	svc := audit.NewService(audit.Config{
		ExportDir: cfg.Audit.ExportDir,
		Retention: cfg.AuditRetention(),
	}, database, database, nil, cfg.Clock(), logger)

	report, err := svc.RunExportAndCleanup(cctx.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "exported %d tables (%d rows) to %s, deleted %d old records\n",
		report.Tables, report.Rows, report.Path, report.Deleted)
	return nil
}

func backupNow(cctx *cli.Context) error {
	cfg, logger, err := setup(cctx)
	if err != nil {
		return err
	}
	database, err := openDB(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	backups := db.NewBackupService(database, cfg.Backup.Path, cfg.BackupInterval(), cfg.BackupRetention(), logger)
	path, err := backups.PerformBackup(cctx.Context)
	if err != nil {
		return err
	}
	removed, err := backups.CleanupOldBackups(cfg.Clock()())
	if err != nil {
		logger.Warn().Err(err).Msg("backup cleanup failed")
	}
	fmt.Fprintf(cctx.App.Writer, "backup written to %s (%d old backups removed)\n", path, removed)
	return nil
}

func syncRooms(cctx *cli.Context) error {
	cfg, logger, err := setup(cctx)
	if err != nil {
		return err
	}
	catalog, err := config.LoadRoomsConfig(cfg.Rooms.CatalogPath)
	if err != nil {
		return err
	}
	database, err := openDB(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.SyncRoomsFromConfig(cctx.Context, catalog); err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "synced %d rooms from %s\n", len(catalog.Rooms), cfg.Rooms.CatalogPath)
	return nil
}

func mintToken(cctx *cli.Context) error {
	cfg, _, err := setup(cctx)
	if err != nil {
		return err
	}
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	token, err := verifier.Sign(auth.Identity{
		ID:         cctx.String("sub"),
		Email:      cctx.String("email"),
		Name:       cctx.String("name"),
		Department: cctx.String("department"),
	}, cctx.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, token)
	return nil
}
