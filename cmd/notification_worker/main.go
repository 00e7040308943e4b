package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/oksasatya/account-management/config"
	"github.com/oksasatya/account-management/internal/notification"
	"github.com/oksasatya/account-management/pkg/helpers"
	"github.com/oksasatya/account-management/pkg/mailer"
	mailtpl "github.com/oksasatya/account-management/pkg/mailer/templates"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-notifications", cfg.Env)

	if cfg.RabbitMQURL == "" || cfg.RabbitMQAccountQueue == "" {
		logger.Fatal("RabbitMQ not configured")
	}
	if cfg.MailSendEnabled && (cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" || cfg.MailgunSender == "") {
		logger.Fatal("Mailgun not configured")
	}
	if !cfg.MailSendEnabled {
		logger.Warn("MAIL_SEND_ENABLED=false; events are consumed but no email is sent")
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.WithError(err).Fatal("amqp dial")
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		logger.WithError(err).Fatal("amqp channel")
	}
	defer func() { _ = ch.Close() }()

	// Prefetch for fair dispatch across workers
	if err := ch.Qos(16, 0, false); err != nil {
		logger.WithError(err).Fatal("qos")
	}
	if err := helpers.DeclareQueue(ch, cfg.RabbitMQAccountQueue); err != nil {
		logger.WithError(err).Fatal("queue declare")
	}
	deliveries, err := ch.Consume(cfg.RabbitMQAccountQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.WithError(err).Fatal("consume")
	}

	brand := mailtpl.Brand{
		CompanyName: cfg.CompanyName,
		AppName:     cfg.AppName,
		LogoURL:     cfg.LogoURL,
		SupportURL:  cfg.SupportURL,
	}
	n := notification.NewNotifier(mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender), brand, logger, cfg.MailSendEnabled)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	done := make(chan struct{})
	go func() {
		n.Consume(ctx, deliveries)
		close(done)
	}()

	logger.WithField("queue", cfg.RabbitMQAccountQueue).Info("notification worker listening")
	<-ctx.Done()
	logger.Info("shutting down...")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}
