package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"roomcal/internal/booking"
	"roomcal/internal/config"
	"roomcal/internal/holiday"
	"roomcal/internal/ics"
	appLog "roomcal/internal/log"
	"roomcal/internal/store"
	"roomcal/internal/web"
)

const version = "0.3.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
	importSrc  string
}

func main() {
	flags := parseFlags()

	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		appLog.Warn("failed to read .env", "error", err.Error())
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("roomcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"rooms", len(conf.Rooms),
		"store", conf.Store.Driver,
		"holidays_file", conf.HolidaysFile,
		"max_occurrences", conf.MaxOccurrences,
		"scan_ceiling_days", conf.ScanCeilingDays,
		"export_path", conf.Export.ICSPath,
		"print_enabled", conf.Print.Enabled,
		"once", flags.once,
		"import", flags.importSrc != "",
	)

	st, err := openStore(conf.Store)
	if err != nil {
		appLog.Error("failed to open store", err, "driver", conf.Store.Driver)
		os.Exit(1)
	}
	defer st.Close()

	holidays, err := holiday.Load(conf.HolidaysFile)
	if err != nil {
		appLog.Error("failed to load holidays", err, "path", conf.HolidaysFile)
		os.Exit(1)
	}

	svc := booking.New(st, booking.Options{
		Rooms:           conf.Rooms,
		Palette:         conf.Palette,
		DefaultColor:    conf.DefaultColor,
		MaxOccurrences:  conf.MaxOccurrences,
		ScanCeilingDays: conf.ScanCeilingDays,
	})

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.importSrc != "" {
		if err := runImport(ctx, svc, flags.importSrc); err != nil {
			appLog.Error("import failed", err)
			os.Exit(1)
		}
		return
	}

	if flags.once {
		if err := writeSnapshot(ctx, svc, conf.Export.ICSPath); err != nil {
			appLog.Error("ics export failed", err, "path", conf.Export.ICSPath)
			os.Exit(1)
		}
		return
	}

	scheduler, err := startExportJob(ctx, svc, conf.Export)
	if err != nil {
		appLog.Error("failed to schedule ics export", err, "cron", conf.Export.Cron)
		os.Exit(1)
	}
	if scheduler != nil {
		defer func() { <-scheduler.Stop().Done() }()
	}

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, svc, holidays, flags.debug).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen, "debug", flags.debug)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server stopped", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	appLog.Info("roomcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/roomcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Write the ICS export once and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&cfg.importSrc, "import", "", "Import events from an ICS file path or http(s) URL and exit")

	flag.Parse()

	return cfg
}

func openStore(sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "postgres":
		return store.OpenPostgres(sc.DSN)
	default:
		appLog.Warn("using in-memory store; events are lost on restart")
		return store.NewMemory(), nil
	}
}

// startExportJob schedules the ICS snapshot. It returns nil when no export
// path is configured.
func startExportJob(ctx context.Context, svc *booking.Service, ec config.ExportConfig) (*cron.Cron, error) {
	if ec.ICSPath == "" {
		return nil, nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(ec.Cron, func() {
		if err := writeSnapshot(ctx, svc, ec.ICSPath); err != nil {
			appLog.Error("ics export failed", err, "path", ec.ICSPath)
		}
	}); err != nil {
		return nil, err
	}
	c.Start()
	appLog.Info("ics export scheduled", "cron", ec.Cron, "path", ec.ICSPath)

	// Write one snapshot right away instead of waiting for the first tick.
	if err := writeSnapshot(ctx, svc, ec.ICSPath); err != nil {
		appLog.Error("initial ics export failed", err, "path", ec.ICSPath)
	}
	return c, nil
}

func writeSnapshot(ctx context.Context, svc *booking.Service, path string) error {
	if path == "" {
		return errors.New("export.ics_path is not configured")
	}
	events, err := svc.List(ctx, booking.Filter{})
	if err != nil {
		return err
	}
	body := ics.Export(events, svc.Rooms(), ics.ExportOptions{Name: "Raumbelegung"})
	if err := ics.WriteFile(path, body); err != nil {
		return err
	}
	appLog.Info("ics export written", "path", path, "events", len(events))
	return nil
}

func runImport(ctx context.Context, svc *booking.Service, src string) error {
	body, err := ics.NewFetcher().Fetch(ctx, src)
	if err != nil {
		return err
	}
	drafts, err := ics.Parse(bytes.NewReader(body), svc.Rooms())
	if err != nil {
		return err
	}
	rep, err := svc.Import(ctx, drafts)
	if err != nil {
		return err
	}
	appLog.Info("import completed",
		"drafts", len(drafts),
		"rows_created", rep.Created,
		"skipped", rep.Skipped,
		"collisions", rep.Collisions,
	)
	return nil
}
