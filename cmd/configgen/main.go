package main

import (
	"flag"
	"log"

	"github.com/danmuck/oscarctl/internal/config"
)

func main() {
	kind := flag.String("kind", "server", "config kind: server|accounts")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing accounts file")
	input := flag.String("input", "", "accounts path for validation (defaults to cmd/oscarctl/accounts.toml)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = "cmd/oscarctl/accounts.toml"
		}
		cfg, err := config.LoadAccounts(path)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %d accounts at %s", len(cfg.Accounts), path)
		return
	}

	target := *output
	if target == "" {
		switch *kind {
		case "server":
			target = "cmd/oscarctl/config.toml"
		case "accounts":
			target = "cmd/oscarctl/accounts.toml"
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
