package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/affiliate-orderflow/internal/aws"
	"github.com/imrishuroy/affiliate-orderflow/internal/browser"
	"github.com/imrishuroy/affiliate-orderflow/internal/config"
	"github.com/imrishuroy/affiliate-orderflow/internal/credentials"
	"github.com/imrishuroy/affiliate-orderflow/internal/login"
	"github.com/imrishuroy/affiliate-orderflow/internal/orders"
	"github.com/imrishuroy/affiliate-orderflow/internal/portal"
	"github.com/imrishuroy/affiliate-orderflow/internal/resolver"
	"github.com/imrishuroy/affiliate-orderflow/internal/syncer"
)

// runner is one sync run.
type runner interface {
	Run(ctx context.Context) (*syncer.Summary, error)
}

// newRunner builds the run for the CLI and the Lambda handler.
var newRunner = func(cfg *config.Config, clients *aws.AWSClients, forceLogin bool, log zerolog.Logger) runner {
	return buildSyncer(cfg, clients, forceLogin, log)
}

// buildSyncer wires one run. The browser is only started if login or
// resolution needs it, and the Syncer closes it when the run ends.
func buildSyncer(cfg *config.Config, clients *aws.AWSClients, forceLogin bool, log zerolog.Logger) *syncer.Syncer {
	session := browser.NewLazy(func(context.Context) (browser.Session, error) {
		s, err := browser.NewChromeSession(browser.Options{
			Headless:   cfg.Browser.Headless,
			UserAgent:  cfg.Portal.UserAgent,
			ExtraFlags: cfg.Browser.ExtraFlags,
		}, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	deps := syncer.Deps{
		Cache:  credentials.NewCache(cfg.Storage.HeadersCacheFile, log),
		Portal: portal.NewClient(cfg.Portal.ExportURL, cfg.Portal.RequestTimeout, log),
		Acquirer: login.NewAcquirer(login.Config{
			PortalURL:     cfg.Portal.LoginURL,
			Username:      cfg.Portal.Username,
			Password:      cfg.Portal.Password,
			UserAgent:     cfg.Portal.UserAgent,
			OverrideToken: cfg.Portal.AuthToken,
			SettleTimeout: cfg.Browser.NetworkIdleTimeout,
		}, session, log),
		Ledger:   orders.NewStore(clients.DynamoDB, cfg.AWS.OrdersTable, log),
		Resolver: resolver.New(session, resolver.Options{}, log),
		Browser:  session,
	}
	if cfg.AWS.QueueURL != "" {
		deps.Publisher = aws.NewPublisher(clients.SQS, cfg.AWS.QueueURL)
	}
	if cfg.AWS.MetricsNamespace != "" {
		deps.Metrics = aws.NewMetricsReporter(clients.CloudWatch, cfg.AWS.MetricsNamespace)
	}

	return syncer.New(deps, syncer.Options{
		RedirectBaseURL: cfg.Portal.RedirectBaseURL,
		DownloadDir:     cfg.Storage.DownloadDir,
		ForceLogin:      forceLogin,
		MaxRedirects:    cfg.Portal.MaxRedirects,
	}, log)
}

func newClients(ctx context.Context, cfg *config.Config) (*aws.AWSClients, error) {
	clients, err := aws.NewAWSClients(ctx, aws.Options{
		Region:           cfg.AWS.Region,
		EndpointOverride: cfg.AWS.EndpointOverride,
	})
	if err != nil {
		return nil, fmt.Errorf("init aws clients: %w", err)
	}
	return clients, nil
}
