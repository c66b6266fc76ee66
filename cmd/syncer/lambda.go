package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/imrishuroy/affiliate-orderflow/internal/aws"
	"github.com/imrishuroy/affiliate-orderflow/internal/config"
	"github.com/imrishuroy/affiliate-orderflow/internal/idempotency"
	"github.com/imrishuroy/affiliate-orderflow/internal/logger"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Serve scheduled sync runs as an AWS Lambda handler",
	Long: `lambda starts the Lambda runtime loop. Each scheduled CloudWatch event
triggers one sync; a failed run is returned as an error so the invocation
is marked failed. With TRIGGERS_TABLE set, redelivered events whose run is
in progress or done are skipped.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
		if err != nil {
			return err
		}
		clients, err := newClients(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		lambda.Start(newScheduledHandler(cfg, clients, *log).Handle)
		return nil
	},
}

// scheduledHandler runs one sync per scheduled event. claims is nil when
// trigger dedupe is disabled.
type scheduledHandler struct {
	cfg     *config.Config
	clients *aws.AWSClients
	claims  *idempotency.Store
	log     zerolog.Logger
}

func newScheduledHandler(cfg *config.Config, clients *aws.AWSClients, log zerolog.Logger) *scheduledHandler {
	h := &scheduledHandler{cfg: cfg, clients: clients, log: log}
	if cfg.AWS.TriggersTable != "" {
		h.claims = idempotency.NewStore(clients.DynamoDB, cfg.AWS.TriggersTable, cfg.AWS.TriggerTTL)
	}
	return h
}

// Handle is the Lambda entry point.
func (h *scheduledHandler) Handle(ctx context.Context, ev events.CloudWatchEvent) error {
	log := h.log.With().Str("event_id", ev.ID).Str("source", ev.Source).Logger()
	log.Info().Time("scheduled_at", ev.Time).Msg("scheduled sync triggered")

	claimed := h.claims != nil && ev.ID != ""
	if claimed {
		ok, err := h.claims.TryClaim(ctx, ev.ID, invocationID(ctx))
		if err != nil {
			return fmt.Errorf("claim trigger: %w", err)
		}
		if !ok {
			log.Info().Msg("trigger already claimed; skipping")
			return nil
		}
	}

	sum, runErr := newRunner(h.cfg, h.clients, flagForceLogin, log).Run(ctx)
	if !claimed {
		return runErr
	}

	// The run context may be near its deadline; the claim must still close.
	cctx := context.WithoutCancel(ctx)
	if runErr != nil {
		if err := h.claims.MarkFailed(cctx, ev.ID, runErr.Error()); err != nil {
			log.Error().Err(err).Msg("mark trigger failed")
		}
		return runErr
	}
	if err := h.claims.MarkDone(cctx, ev.ID, sum.String()); err != nil {
		log.Error().Err(err).Msg("mark trigger done")
	}
	return nil
}

func invocationID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.NewString()
}
