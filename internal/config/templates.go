package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server":
		return serverTemplate, nil
	case "accounts":
		return accountsTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `auth_addr = ":5190"
boss_addr = ":5191"
boss_advertise_addr = "127.0.0.1:5191"
admin_addr = "127.0.0.1:8090"
db_path = "oscar.db"
accounts_file = "cmd/oscarctl/accounts.toml"
cookie_ttl = "2m"
idle_timeout = "5m"
write_timeout = "10s"
password_change_url = "http://127.0.0.1:8090/password"
error_url = "http://127.0.0.1:8090/help/login"
cors_origins = ["http://localhost:3000"]
admin_token = ""
purge_interval = "1m"
tls_cert_file = ""
tls_key_file = ""
`

const accountsTemplate = `[[accounts]]
screenname = "alice"
password = "change-me"
email = "alice@example.com"

[[accounts]]
screenname = "bob"
password = "change-me-too"
email = "bob@example.com"
`
