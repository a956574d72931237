package mailbox

import (
	"net/http"
	"time"
)

// FactoryConfig selects and parameterizes the mailbox backend.
type FactoryConfig struct {
	Backend   string // "graph" or "imap"
	GraphURL  string
	IMAPAddr  string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// NewFactory returns a Factory for the configured backend. Unknown backends use Graph.
func NewFactory(cfg FactoryConfig) Factory {
	if cfg.Backend == "imap" {
		return func(email, accessToken string) Mailbox {
			return NewIMAPClient(cfg.IMAPAddr, email, accessToken)
		}
	}
	return func(email, accessToken string) Mailbox {
		return NewGraphClient(cfg.GraphURL, accessToken, cfg.Transport, cfg.Timeout)
	}
}
