package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/solatis/campaignkeeper/internal/assist"
	"github.com/solatis/campaignkeeper/internal/campaign"
	"github.com/solatis/campaignkeeper/internal/core/api"
	"github.com/solatis/campaignkeeper/internal/core/auth"
	"github.com/solatis/campaignkeeper/internal/core/config"
	"github.com/solatis/campaignkeeper/internal/core/db"
	"github.com/solatis/campaignkeeper/internal/core/metrics"
	"github.com/solatis/campaignkeeper/internal/core/server"
	"github.com/solatis/campaignkeeper/internal/core/webhook"
	"github.com/solatis/campaignkeeper/internal/delivery"
	"github.com/solatis/campaignkeeper/internal/rules"
	"github.com/solatis/campaignkeeper/internal/segment"
)

const Version = "0.1.0"

var campaignAPICmd = &cobra.Command{
	Use:   "campaign-api",
	Short: "Start the gRPC campaign API and the receipt webhook listener",
	RunE:  runCampaignAPI,
}

func init() {
	rootCmd.AddCommand(campaignAPICmd)
	campaignAPICmd.Flags().String("host", "0.0.0.0", "server host")
	campaignAPICmd.Flags().Int("port", 50061, "gRPC server port")
	campaignAPICmd.Flags().Int("http-port", 8080, "webhook/metrics HTTP port")
}

func runCampaignAPI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	apiCfg := &cfg.CampaignAPI
	if cmd.Flags().Changed("host") {
		apiCfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		apiCfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("http-port") {
		apiCfg.HTTPPort, _ = cmd.Flags().GetInt("http-port")
	}

	if err := requireDBURL(); err != nil {
		return err
	}
	database, err := db.Open(dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := db.RequireMigrated(database); err != nil {
		return fmt.Errorf("%w - run 'campaignkeeper migrate up' first", err)
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	hmacSecrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(hmacSecrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set CK_HMAC_SECRET environment variable)")
	}
	webhookSecrets, err := config.WebhookSecrets()
	if err != nil {
		return fmt.Errorf("failed to load webhook secrets: %w", err)
	}
	if len(webhookSecrets) == 0 {
		logger.Warn("no webhook secrets configured; every vendor callback will be rejected (set CK_WEBHOOK_SECRET)")
	}

	engine, err := cfg.NewEngine(logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	customers := db.NewCustomerStore(queries)
	segments := db.NewSegmentStore(queries)
	campaigns := db.NewCampaignStore(queries)
	messages := db.NewMessageStore(queries)
	evaluator := segment.NewEvaluator(cfg.Segmentation.PopulationBatchSize, logger)

	locker, closeLocker, err := newLocker(ctx, apiCfg)
	if err != nil {
		return err
	}
	defer closeLocker()
	tracker := delivery.NewTracker(messages, locker, delivery.Config{OnResult: m.ObserveReceipt}, logger)

	materializer := campaign.NewMaterializer(campaign.Deps{
		Engine:     engine,
		Evaluator:  evaluator,
		Population: customers,
		Campaigns:  campaigns,
		Segments:   segments,
		Messages:   messages,
	}, logger)

	var translator rules.Translator
	if apiCfg.TranslatorURL != "" {
		translator = assist.NewHTTPTranslator(apiCfg.TranslatorURL, cfg.Catalog.Fields, logger)
	}

	service, err := api.NewService(api.Deps{
		Engine:       engine,
		Evaluator:    evaluator,
		Population:   customers,
		Translator:   translator,
		Segments:     segments,
		Campaigns:    campaigns,
		Messages:     messages,
		Materializer: materializer,
		Tracker:      tracker,
		Metrics:      m,
	}, apiCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	authenticator := auth.NewAuthenticator(hmacSecrets, queries, logger)
	grpcServer, err := server.NewGRPCServer(apiCfg, service, authenticator, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	httpServer := server.NewHTTPServer(apiCfg, webhook.NewRouter(webhook.Config{
		Tracker:  tracker,
		Verifier: auth.NewSignatureVerifier(webhookSecrets),
		Metrics:  m,
		MaxBatch: apiCfg.MaxBatchSize,
		Health:   database.PingContext,
		Logger:   logger,
	}), logger)

	logger.Info("starting campaignkeeper",
		"version", Version,
		"grpc_port", apiCfg.Port,
		"http_port", apiCfg.HTTPPort,
		"catalog_fields", len(cfg.Catalog.Fields),
		"redis_locks", apiCfg.RedisURL != "",
		"translator", apiCfg.TranslatorURL != "")

	errChan := make(chan error, 2)
	go func() { errChan <- grpcServer.Start(ctx) }()
	go func() { errChan <- httpServer.Start(ctx) }()

	var runErr error
	select {
	case runErr = <-errChan:
		logger.Error("server stopped", "error", runErr)
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := grpcServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// newLocker returns a Redis locker when redis_url is set, otherwise the
// in-process keyed locker (single instance only).
func newLocker(ctx context.Context, cfg *config.CampaignAPIConfig) (delivery.Locker, func(), error) {
	if cfg.RedisURL == "" {
		return delivery.NewKeyedLocker(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis_url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return delivery.NewRedisLocker(client, cfg.LockTTL, logger), func() { client.Close() }, nil
}
