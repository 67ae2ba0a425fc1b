package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danmuck/oscarctl/internal/client"
	"github.com/danmuck/oscarctl/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5190", "auth service address")
	screenname := flag.String("screenname", "", "screenname to sign on as")
	password := flag.String("password", "", "account password")
	tlsOn := flag.Bool("tls", false, "dial with TLS")
	caFile := flag.String("ca", "", "CA bundle for TLS verification")
	insecure := flag.Bool("insecure", false, "skip TLS verification")
	timeout := flag.Duration("timeout", 10*time.Second, "overall probe timeout")
	flag.Parse()

	logging.ConfigureRuntime("oscarprobe")
	if *screenname == "" {
		fmt.Fprintln(os.Stderr, "oscarprobe: -screenname is required")
		os.Exit(2)
	}

	cfg := client.DefaultConfig()
	cfg.TLS = client.TLSConfig{Enabled: *tlsOn, CAFile: *caFile, InsecureSkipVerify: *insecure}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := probe(ctx, *addr, *screenname, *password, cfg); err != nil {
		var le *client.LoginError
		if errors.As(err, &le) {
			log.Error().Uint16("code", le.Code).Str("url", le.URL).Msg("login refused")
			os.Exit(3)
		}
		log.Error().Err(err).Msg("probe failed")
		os.Exit(1)
	}
}

func probe(ctx context.Context, addr, screenname, password string, cfg client.Config) error {
	start := time.Now()
	res, err := client.Login(ctx, addr, screenname, password, cfg)
	if err != nil {
		return err
	}
	log.Info().
		Str("screenname", res.Screenname).
		Str("boss_addr", res.BossAddr).
		Dur("elapsed", time.Since(start)).
		Msg("login accepted")

	sess, err := client.OpenSession(ctx, res, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.Bootstrap(); err != nil {
		return err
	}
	log.Info().
		Int("families", len(sess.Families)).
		Dur("elapsed", time.Since(start)).
		Msg("session online")
	return sess.Signoff()
}
