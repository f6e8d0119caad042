package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"

	"github.com/incidentdesk/incidentdesk/internal/config"
	"github.com/incidentdesk/incidentdesk/internal/database"
	"github.com/incidentdesk/incidentdesk/internal/extraction"
	"github.com/incidentdesk/incidentdesk/internal/ingest"
	"github.com/incidentdesk/incidentdesk/internal/jobs"
	"github.com/incidentdesk/incidentdesk/internal/mail"
	"github.com/incidentdesk/incidentdesk/internal/notify"
	"github.com/incidentdesk/incidentdesk/internal/ratelimit"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting incident mail ingestion service...")

	// Initialize database connection
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run database migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Seed configured locations
	if err := database.InitializeDefaults(cfg.SeedLocations); err != nil {
		log.Fatalf("Failed to initialize database defaults: %v", err)
	}

	db := database.GetDB()

	// Operational alert channels
	mailer := notify.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	if !mailer.IsConfigured() {
		log.Println("SMTP is not configured, rate limit alerts will be skipped")
	}
	slackChannel := notify.NewSlackChannel(cfg.SlackWebhookURL)
	if slackChannel.IsConfigured() {
		log.Println("Slack alert mirroring is ENABLED")
	}

	// Rate limiter over the AI call budget
	limiter := ratelimit.New(db, cfg.HourlyCallLimit, cfg.AlertRecipients, mailer, slackChannel)
	log.Printf("Rate limiter initialized (limit: %d calls/hour)", cfg.HourlyCallLimit)

	// AI-assisted incident parser
	extractor := extraction.NewExtractor(limiter, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY is not set, every message will use fallback extraction")
	}

	// Mailbox client
	mailClient := mail.NewClient(mail.Options{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		RefreshToken: cfg.GmailRefreshToken,
		User:         cfg.GmailUser,
	})
	log.Printf("Mailbox client initialized for user: %s", cfg.GmailUser)

	// Pipeline stages
	dedup := ingest.NewDeduplicator(db)
	policy := ingest.NewAttachmentPolicy(cfg.AllowedExtensions, cfg.AttachmentMaxSize)
	factory := ingest.NewFactory(db, policy)
	marker := ingest.NewMailboxStateUpdater(mailClient, cfg.ProcessedLabel)

	// Adaptive scheduler
	bizHours, err := jobs.NewBusinessHours(cfg.Timezone, cfg.BusinessHoursStart, cfg.BusinessHoursEnd)
	if err != nil {
		log.Fatalf("Failed to configure business hours: %v", err)
	}
	poller := jobs.NewPoller(mailClient, dedup, extractor, factory, marker,
		bizHours, cfg.ProcessedLabel, cfg.OffHoursMinGap)

	// Set up graceful shutdown
	stop := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal, cleaning up...")
		close(stop)
	}()

	log.Printf("Poller running (tick: %s, business hours %s-%s %s, off-hours gap: %s)",
		cfg.TickInterval, cfg.BusinessHoursStart, cfg.BusinessHoursEnd, cfg.Timezone, cfg.OffHoursMinGap)

	poller.Start(context.Background(), cfg.TickInterval, stop)

	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
	log.Println("Shutdown complete")
}
