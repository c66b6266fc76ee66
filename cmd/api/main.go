package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/affiliate-orderflow/internal/aws"
	"github.com/imrishuroy/affiliate-orderflow/internal/config"
	"github.com/imrishuroy/affiliate-orderflow/internal/handlers"
	"github.com/imrishuroy/affiliate-orderflow/internal/logger"
	"github.com/imrishuroy/affiliate-orderflow/internal/orders"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	clients, err := aws.NewAWSClients(context.Background(), aws.Options{
		Region:           cfg.AWS.Region,
		EndpointOverride: cfg.AWS.EndpointOverride,
	}, aws.ServiceDynamoDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init aws clients")
	}

	r := setupRouter(handlers.HandlerConfig{
		Orders: orders.NewStore(clients.DynamoDB, cfg.AWS.OrdersTable, *log),
		Logger: *log,
	})

	if cfg.App.RunLocal {
		runLocal(r, cfg.App.Port, *log)
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

func runLocal(r *gin.Engine, port int, log zerolog.Logger) {
	addr := fmt.Sprintf(":%d", port)
	log.Info().Str("addr", addr).Msg("running local server")
	if err := r.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to run local server")
	}
}
