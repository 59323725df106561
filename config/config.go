package config

import (
	"encoding/json"
	"log"
	"os"
)

type Configuration struct {
	Env      string `json:"env"`
	ApiPort  string `json:"api_port"`
	LogLevel string `json:"log_level"`

	Database string `json:"database"` // "sqlite3" or "postgres"
	DbHost   string `json:"db_host"`
	DbPort   string `json:"db_port"`
	DbUser   string `json:"db_user"`
	DbName   string `json:"db_name"`
	DbPass   string `json:"db_pass"`

	Gateway struct {
		BaseURL string `json:"base_url"`
		ApiKey  string `json:"api_key"`
		// PublicWebhookBase is the externally reachable base URL the gateway
		// pushes events to; the instance ref is appended per instance.
		PublicWebhookBase string `json:"public_webhook_base"`
	} `json:"gateway"`

	Connect struct {
		PollIntervalSeconds int `json:"poll_interval_seconds"`
		CallTimeoutSeconds  int `json:"call_timeout_seconds"`
		FailureThreshold    int `json:"failure_threshold"`
		CooldownSeconds     int `json:"cooldown_seconds"`
		MaxConcurrentPolls  int `json:"max_concurrent_polls"`
	} `json:"connect"`

	Recovery struct {
		StuckAfterMinutes    int `json:"stuck_after_minutes"`
		SweepIntervalSeconds int `json:"sweep_interval_seconds"`
		// DeleteBlockHours is the activity window that blocks instance
		// deletion while conversations are still moving.
		DeleteBlockHours int `json:"delete_block_hours"`
	} `json:"recovery"`

	Intent struct {
		Dispatcher string `json:"dispatcher"` // "http", "amqp" or "none"
		BaseURL    string `json:"base_url"`
		ApiKey     string `json:"api_key"`
		AmqpURL    string `json:"amqp_url"`
		Exchange   string `json:"exchange"`
		RoutingKey string `json:"routing_key"`
	} `json:"intent"`
}

func Get(path string) Configuration {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}
	var c Configuration
	if err := json.Unmarshal(b, &c); err != nil {
		log.Fatal(err)
	}

	// defaults
	if c.Env == "" {
		c.Env = "development"
	}
	if c.ApiPort == "" {
		c.ApiPort = "8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database == "" {
		c.Database = "sqlite3"
	}
	if c.Connect.PollIntervalSeconds <= 0 {
		c.Connect.PollIntervalSeconds = 30
	}
	if c.Connect.CallTimeoutSeconds <= 0 {
		c.Connect.CallTimeoutSeconds = 10
	}
	if c.Connect.FailureThreshold <= 0 {
		c.Connect.FailureThreshold = 3
	}
	if c.Connect.CooldownSeconds <= 0 {
		c.Connect.CooldownSeconds = 60
	}
	if c.Connect.MaxConcurrentPolls <= 0 {
		c.Connect.MaxConcurrentPolls = 64
	}
	if c.Recovery.StuckAfterMinutes <= 0 {
		c.Recovery.StuckAfterMinutes = 60
	}
	if c.Recovery.SweepIntervalSeconds <= 0 {
		c.Recovery.SweepIntervalSeconds = 300
	}
	if c.Recovery.DeleteBlockHours <= 0 {
		c.Recovery.DeleteBlockHours = 24
	}
	if c.Intent.Dispatcher == "" {
		c.Intent.Dispatcher = "none"
	}
	if c.Intent.RoutingKey == "" {
		c.Intent.RoutingKey = "intent.message.received"
	}

	return c
}
