package bootstrap

import (
	"context"
	"fmt"
	"io"

	"mailbrief/adapter/in/cli"
	"mailbrief/adapter/out/provider"
	"mailbrief/config"
	"mailbrief/core/port/out"
	"mailbrief/pkg/logger"

	"golang.org/x/oauth2"
)

// RunCLI runs one interactive triage pass. Gmail credentials come from the
// token file, with the consent flow run on the terminal when none is stored.
func RunCLI(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer) (*cli.Report, error) {
	tokenFile := cli.NewTokenFile(cfg.GoogleTokenFile)

	core, err := NewCore(cfg, provider.WithTokenRefreshHandler(tokenFile.OnRefresh))
	if err != nil {
		return nil, err
	}

	term := cli.NewTerminal(stdin, stdout)

	var token *oauth2.Token
	if core.OAuth != nil {
		token, err = cli.LoadOrAuthorize(ctx, tokenFile, core.OAuth, term)
		if err != nil {
			return nil, fmt.Errorf("authorize: %w", err)
		}
	}

	mailbox, err := core.Mailboxes.Open(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("open mailbox: %w", err)
	}
	defer closeMailbox(mailbox)

	logger.Debug("Starting triage pass (provider=%s)", core.Mailboxes.Provider())
	return cli.NewRunner(core.Triage, term).Run(ctx, mailbox)
}

func closeMailbox(mailbox out.MailboxGateway) {
	if c, ok := mailbox.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close mailbox")
		}
	}
}
