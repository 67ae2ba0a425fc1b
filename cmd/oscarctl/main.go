package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/oscarctl/internal/admin"
	"github.com/danmuck/oscarctl/internal/auth"
	"github.com/danmuck/oscarctl/internal/boss"
	"github.com/danmuck/oscarctl/internal/config"
	"github.com/danmuck/oscarctl/internal/logging"
	"github.com/danmuck/oscarctl/internal/oscar"
	"github.com/danmuck/oscarctl/internal/services"
	"github.com/danmuck/oscarctl/internal/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to oscarctl config.toml (defaults apply when empty)")
	accounts := flag.String("accounts", "", "accounts file to seed, overrides accounts_file")
	flag.Parse()

	logging.ConfigureRuntime("oscarctl")

	cfg, err := loadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oscarctl: %v\n", err)
		os.Exit(1)
	}
	if *accounts != "" {
		cfg.AccountsFile = *accounts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("oscarctl exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg serverConfig) error {
	db, err := store.Open(cfg.DBPath, store.WithCookieTTL(cfg.CookieTTL))
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.AccountsFile != "" {
		if err := seedAccounts(ctx, db, cfg.AccountsFile); err != nil {
			return err
		}
	}

	registry := boss.NewRegistry()
	authSrv := oscar.NewServer(auth.NewService(cfg.Auth, db, db), cfg.authServer())
	bossSrv := oscar.NewServer(boss.NewService(db, registry), cfg.bossServer())

	svcs := services.NewServiceRegistry()
	svcs.Register(&services.Listener{Server: authSrv})
	svcs.Register(&services.Listener{Server: bossSrv})
	svcs.Register(&services.Sessions{Registry: registry})
	svcs.Register(&services.Cookies{DB: db})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return authSrv.ListenAndServe(gctx) })
	g.Go(func() error { return bossSrv.ListenAndServe(gctx) })
	if cfg.AdminAddr != "" {
		adm := admin.New(admin.Config{
			Addr:        cfg.AdminAddr,
			CORSOrigins: cfg.CORSOrigins,
			Token:       cfg.AdminToken,
		}, db, svcs)
		g.Go(func() error { return adm.Serve(gctx) })
	}
	g.Go(func() error { return purgeLoop(gctx, db, cfg.PurgeInterval) })

	log.Info().
		Str("auth_addr", cfg.AuthAddr).
		Str("boss_addr", cfg.BossAddr).
		Str("boss_advertise_addr", cfg.Auth.BossAddr).
		Str("admin_addr", cfg.AdminAddr).
		Bool("tls", cfg.TLS.Enabled()).
		Msg("oscarctl started")
	return g.Wait()
}

func seedAccounts(ctx context.Context, db *store.DB, path string) error {
	file, err := config.LoadAccounts(path)
	if err != nil {
		return err
	}
	for _, a := range config.StoreAccounts(file) {
		if err := db.UpsertAccount(ctx, a); err != nil {
			return fmt.Errorf("seed account %q: %w", a.Screenname, err)
		}
	}
	log.Info().Int("accounts", len(file.Accounts)).Str("path", path).Msg("accounts seeded")
	return nil
}

// purgeLoop drops expired cookies until ctx is cancelled.
func purgeLoop(ctx context.Context, db *store.DB, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := db.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("purge expired cookies")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired cookies purged")
			}
		}
	}
}
