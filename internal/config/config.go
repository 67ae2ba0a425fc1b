package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/oscarctl/internal/store"
	"github.com/pelletier/go-toml/v2"
)

// AccountsFile is the seed file of accounts loaded into the credential store
// at startup.
type AccountsFile struct {
	Accounts []AccountEntry `toml:"accounts"`
}

type AccountEntry struct {
	Screenname string `toml:"screenname"`
	Password   string `toml:"password"`
	Email      string `toml:"email"`
}

func LoadAccounts(path string) (AccountsFile, error) {
	var cfg AccountsFile
	if err := loadToml(path, &cfg); err != nil {
		return AccountsFile{}, err
	}
	if err := ValidateAccounts(cfg); err != nil {
		return AccountsFile{}, err
	}
	return cfg, nil
}

func ParseAccounts(data []byte) (AccountsFile, error) {
	var cfg AccountsFile
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return AccountsFile{}, fmt.Errorf("accounts parse failed: %w", err)
	}
	if err := ValidateAccounts(cfg); err != nil {
		return AccountsFile{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateAccounts(cfg AccountsFile) error {
	seen := make(map[string]int, len(cfg.Accounts))
	for i, entry := range cfg.Accounts {
		if err := ValidateAccountEntry(entry); err != nil {
			return fmt.Errorf("accounts[%d] invalid: %w", i, err)
		}
		key := store.NormalizeScreenname(entry.Screenname)
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("accounts[%d] duplicates accounts[%d] (%s)", i, prev, key)
		}
		seen[key] = i
	}
	return nil
}

func ValidateAccountEntry(entry AccountEntry) error {
	if store.NormalizeScreenname(entry.Screenname) == "" {
		return fmt.Errorf("screenname is required")
	}
	if entry.Password == "" {
		return fmt.Errorf("password is required")
	}
	if strings.ContainsAny(entry.Screenname, "\r\n\t") {
		return fmt.Errorf("screenname contains control characters")
	}
	return nil
}
