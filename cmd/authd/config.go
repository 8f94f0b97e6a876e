package main

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/lumenlms/authcore/mongostore"
)

// appConfig is the full service configuration, loaded from the environment
// with an optional .env overlay for local development.
type appConfig struct {
	Addr            string        `env:"AUTHD_ADDR" envDefault:":8080"`
	MetricsAddr     string        `env:"AUTHD_METRICS_ADDR" envDefault:":9090"`
	LogLevel        string        `env:"AUTHD_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"AUTHD_LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"AUTHD_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	AppName       string `env:"AUTHD_APP_NAME" envDefault:"Lumen LMS"`
	SigningSecret string `env:"AUTHD_SIGNING_SECRET,required"`
	RedisURL      string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	Mongo mongostore.Config

	// DevMail switches the Postmark transport for a logging sender. Never
	// enable it in production: codes land in the logs, not inboxes.
	DevMail          bool   `env:"AUTHD_DEV_MAIL" envDefault:"false"`
	PostmarkToken    string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccount  string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail      string `env:"AUTHD_SENDER_EMAIL"`
	SupportEmail     string `env:"AUTHD_SUPPORT_EMAIL"`
}

func loadConfig() (appConfig, error) {
	// The .env file is optional; a missing one is not an error.
	_ = godotenv.Load()

	var cfg appConfig
	if err := env.Parse(&cfg); err != nil {
		return appConfig{}, err
	}
	return cfg, nil
}
