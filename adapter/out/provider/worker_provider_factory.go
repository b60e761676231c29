package provider

import (
	"fmt"
	"strings"

	"mailbrief/core/port/out"
)

// FactoryConfig holds all provider configurations.
type FactoryConfig struct {
	Provider string // "gmail" (default) or "imap"
	Gmail    GmailConfig
	IMAP     IMAPConfig

	GmailOptions []GmailOption
}

// NewMailboxFactory returns the factory for the configured provider.
func NewMailboxFactory(cfg FactoryConfig) (out.MailboxFactory, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "gmail", "google":
		return NewGmailFactory(cfg.Gmail, cfg.GmailOptions...), nil
	case "imap":
		if cfg.IMAP.Addr == "" {
			return nil, fmt.Errorf("imap provider requires an IMAP address")
		}
		return NewIMAPFactory(cfg.IMAP), nil
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", cfg.Provider)
	}
}

// NeedsOAuth reports whether the provider authenticates through an OAuth consent flow.
func NeedsOAuth(f out.MailboxFactory) bool {
	return f.Provider() == gmailProvider
}
