package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"mailbrief/adapter/out/persistence"
	"mailbrief/adapter/out/provider"
	"mailbrief/adapter/out/summarylog"
	"mailbrief/config"
	"mailbrief/core/agent/llm"
	"mailbrief/core/port/out"
	"mailbrief/core/service/triage"
	"mailbrief/core/service/usage"
	"mailbrief/infra/database"
	"mailbrief/pkg/cache"
	"mailbrief/pkg/crypto"
	"mailbrief/pkg/httputil"
	"mailbrief/pkg/logger"
	"mailbrief/pkg/metrics"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

const sessionKeyPrefix = "mailbrief:session:"

// Core is what a triage pass needs, with no storage behind it.
type Core struct {
	Config *config.Config

	LLMClient  *llm.Client
	Classifier *triage.Classifier
	SummaryLog *summarylog.Appender
	Triage     *triage.Service

	Mailboxes out.MailboxFactory
	// OAuth is nil for providers that log in with static credentials.
	OAuth out.OAuthProvider
}

// Dependencies adds the HTTP server's storage to Core.
type Dependencies struct {
	*Core

	DB    *sqlx.DB
	Redis *redis.Client

	SessionCache cache.Cache
	Sessions     *persistence.SessionStore
	UsageRepo    *persistence.UsageAdapter
	Usage        *usage.Service
}

// NewCore wires the model gateway, classifier, summary log and mailbox
// provider. gmailOpts are passed to the Gmail factory.
func NewCore(cfg *config.Config, gmailOpts ...provider.GmailOption) (*Core, error) {
	loc, err := cfg.SummaryLocation()
	if err != nil {
		return nil, err
	}

	if cfg.LLMAPIKey == "" {
		logger.Warn("LLM_API_KEY is not set; classification calls will be rejected by the model endpoint")
	}
	llmClient := llm.NewClientWithConfig(llm.ClientConfig{
		APIKey:      cfg.LLMAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.LLMTimeout(),
		JSONMode:    cfg.LLMJSONMode,
		HTTPClient:  httputil.NewOptimizedClient(httputil.ModelClientConfig(cfg.LLMTimeout())),
	})

	classifier := triage.NewClassifier(llmClient, cfg.PromptBodyLimit)
	summaryLog := summarylog.NewAppender(cfg.SummaryLogFile, loc)

	factoryCfg := provider.FactoryConfig{
		Provider:     cfg.MailProvider,
		GmailOptions: append([]provider.GmailOption{
			provider.WithHTTPClient(httputil.NewOptimizedClient(httputil.GmailClientConfig(cfg.FetchWorkers))),
		}, gmailOpts...),
		IMAP: provider.IMAPConfig{
			Addr:         cfg.IMAPAddr,
			SMTPAddr:     cfg.SMTPAddr,
			Username:     cfg.MailUsername,
			Password:     cfg.MailPassword,
			Mailbox:      cfg.IMAPMailbox,
			TrashMailbox: cfg.IMAPTrashPath,
			From:         cfg.MailUsername,
		},
	}
	if !cfg.IsIMAP() {
		gmailCfg, err := loadGmailConfig(cfg)
		if err != nil {
			return nil, err
		}
		factoryCfg.Gmail = gmailCfg
	}

	mailboxes, err := provider.NewMailboxFactory(factoryCfg)
	if err != nil {
		return nil, err
	}

	core := &Core{
		Config:     cfg,
		LLMClient:  llmClient,
		Classifier: classifier,
		SummaryLog: summaryLog,
		Triage:     triage.NewService(classifier, summaryLog, cfg.FetchWorkers),
		Mailboxes:  mailboxes,
	}
	if provider.NeedsOAuth(mailboxes) {
		core.OAuth = provider.NewGmailAuth(factoryCfg.Gmail)
	}

	logger.WithFields(map[string]any{
		"provider": mailboxes.Provider(),
		"model":    cfg.LLMModel,
	}).Info("Triage core initialized")
	return core, nil
}

// loadGmailConfig prefers GOOGLE_CLIENT_ID/SECRET and falls back to the
// OAuth client file downloaded from the Google console.
func loadGmailConfig(cfg *config.Config) (provider.GmailConfig, error) {
	if cfg.GoogleClientID != "" {
		return provider.GmailConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}, nil
	}

	data, err := os.ReadFile(cfg.GoogleCredentialsFile)
	if err != nil {
		return provider.GmailConfig{}, fmt.Errorf("no GOOGLE_CLIENT_ID set and %s unreadable: %w", cfg.GoogleCredentialsFile, err)
	}
	oc, err := google.ConfigFromJSON(data, gmail.GmailModifyScope)
	if err != nil {
		return provider.GmailConfig{}, fmt.Errorf("parse %s: %w", cfg.GoogleCredentialsFile, err)
	}

	redirect := oc.RedirectURL
	if os.Getenv("GOOGLE_REDIRECT_URL") != "" || redirect == "" {
		redirect = cfg.GoogleRedirectURL
	}
	return provider.GmailConfig{
		ClientID:     oc.ClientID,
		ClientSecret: oc.ClientSecret,
		RedirectURL:  redirect,
	}, nil
}

// NewDependencies wires Core plus the session cache and usage database.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	core, err := NewCore(cfg)
	if err != nil {
		return nil, nil, err
	}
	deps := &Dependencies{Core: core}

	// Usage database
	db, err := database.NewSQL(cfg.DatabaseURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("usage database: %w", err)
	}
	cleanups = append(cleanups, func() { _ = db.Close() })
	deps.DB = db

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	deps.UsageRepo = persistence.NewUsageAdapter(db)
	if err := deps.UsageRepo.Migrate(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrate usage database: %w", err)
	}
	if err := metrics.RegisterDBStats(db.DB, "usage"); err != nil {
		logger.WithError(err).Warn("Failed to register usage DB stats")
	}
	deps.Usage = usage.NewService(deps.UsageRepo, cfg.MinutesPerEmail)

	// Session cache: Redis when configured, memory otherwise
	if cfg.RedisURL != "" {
		client, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		cleanups = append(cleanups, func() { _ = client.Close() })
		deps.Redis = client
		deps.SessionCache = cache.NewRedisCache(client, sessionKeyPrefix)
	} else {
		if cfg.IsProduction() {
			logger.Warn("REDIS_URL is not set; sessions are kept in memory and lost on restart")
		}
		mem := cache.NewMemoryCache()
		stop := sweepEvery(mem, 10*time.Minute)
		cleanups = append(cleanups, stop)
		deps.SessionCache = mem
	}

	var enc *crypto.Encryptor
	if cfg.EncryptionKey != "" {
		enc, err = crypto.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("session encryption: %w", err)
		}
	} else if cfg.IsProduction() {
		logger.Warn("ENCRYPTION_KEY is not set; session tokens are stored in plaintext")
	}
	deps.Sessions = persistence.NewSessionStore(deps.SessionCache, enc, cfg.SessionTTL())

	return deps, cleanup, nil
}

// sweepEvery drops expired in-memory sessions until the returned func is called.
func sweepEvery(mem *cache.MemoryCache, interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if n := mem.Sweep(); n > 0 {
					logger.Debug("Swept %d expired sessions", n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
