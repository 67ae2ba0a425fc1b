package config

import "github.com/danmuck/oscarctl/internal/store"

func StoreAccounts(cfg AccountsFile) []store.Account {
	accounts := make([]store.Account, 0, len(cfg.Accounts))
	for _, entry := range cfg.Accounts {
		accounts = append(accounts, store.Account{
			Screenname: entry.Screenname,
			Password:   entry.Password,
			Email:      entry.Email,
		})
	}
	return accounts
}
