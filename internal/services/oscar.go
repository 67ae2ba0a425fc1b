package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/oscarctl/internal/boss"
	"github.com/danmuck/oscarctl/internal/oscar"
	"github.com/danmuck/oscarctl/internal/store"
)

const actionTimeout = 5 * time.Second

var ErrAdminDisconnect = errors.New("disconnected by operator")

// Listener exposes one OSCAR accept loop.
type Listener struct {
	Server *oscar.Server
}

type ListenerStatus struct {
	Service string `json:"service"`
	Listen  string `json:"listen"`
	Active  int64  `json:"active"`
}

func (l *Listener) Name() string { return l.Server.Name() }

func (l *Listener) Status() (any, error) {
	return ListenerStatus{
		Service: l.Server.Name(),
		Listen:  l.Server.ListenAddr(),
		Active:  l.Server.Active(),
	}, nil
}

func (l *Listener) Actions() map[string]Action {
	return map[string]Action{
		"disconnect": func() (string, error) {
			conns := l.Server.Conns()
			for _, c := range conns {
				c.Close(ErrAdminDisconnect)
			}
			return fmt.Sprintf("closed %d connections", len(conns)), nil
		},
	}
}

// Sessions exposes the BOSS session registry.
type Sessions struct {
	Registry *boss.Registry
}

func (s *Sessions) Name() string { return "sessions" }

func (s *Sessions) Status() (any, error) {
	return s.Registry.Snapshot(), nil
}

func (s *Sessions) Actions() map[string]Action {
	return map[string]Action{
		"count": func() (string, error) {
			return fmt.Sprintf("%d", s.Registry.Len()), nil
		},
	}
}

// Cookies exposes the login cookie table.
type Cookies struct {
	DB *store.DB
}

type CookieStatus struct {
	Outstanding int `json:"outstanding"`
	Accounts    int `json:"accounts"`
}

func (c *Cookies) Name() string { return "cookies" }

func (c *Cookies) Status() (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	outstanding, err := c.DB.CountCookies(ctx)
	if err != nil {
		return nil, err
	}
	accounts, err := c.DB.CountAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return CookieStatus{Outstanding: outstanding, Accounts: accounts}, nil
}

func (c *Cookies) Actions() map[string]Action {
	return map[string]Action{
		"purge": func() (string, error) {
			ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
			defer cancel()
			n, err := c.DB.PurgeExpired(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("purged %d expired cookies", n), nil
		},
	}
}
