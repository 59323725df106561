package main

import (
	"log"
	"os"
	"time"

	"agendazap/channels"
	"agendazap/channels/mockchan"
	"agendazap/channels/whatsapp"
	"agendazap/config"
	"agendazap/controllers"
	"agendazap/db"
	"agendazap/logger"
	"agendazap/models"
	"agendazap/router"
	"agendazap/services"
	"agendazap/tools"
	"agendazap/workers"

	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg := config.Get(configPath)

	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	zlog.Logger = zl

	db.SetConfigurations(cfg)
	database, err := db.Connect()
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	// Channel registration: once at process start, resolved from the
	// registry afterwards.
	gateway := &tools.GatewayClient{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.ApiKey,
	}
	intent, err := services.NewIntentDispatcher(cfg, zl)
	if err != nil {
		log.Fatal(err)
	}
	channels.Register(models.CHANNEL_TYPE_WHATSAPP, channels.Channel{
		Connection: &whatsapp.ConnectionService{
			Gateway:     gateway,
			WebhookBase: cfg.Gateway.PublicWebhookBase,
		},
		Processor: whatsapp.Processor{},
		Bridge:    &whatsapp.Bridge{Intent: intent},
	})
	channels.Register(models.CHANNEL_TYPE_MOCK, channels.Channel{
		Connection: mockchan.NewConnectionService(),
		Processor:  mockchan.Processor{},
		Bridge:     &mockchan.Bridge{},
	})

	callTimeout := time.Duration(cfg.Connect.CallTimeoutSeconds) * time.Second
	instanceService := services.NewInstanceService(
		database, zl,
		time.Duration(cfg.Recovery.DeleteBlockHours)*time.Hour,
		callTimeout,
	)
	connectFlow := services.NewConnectFlow(database, instanceService, services.FlowOptions{
		PollInterval:     time.Duration(cfg.Connect.PollIntervalSeconds) * time.Second,
		CallTimeout:      callTimeout,
		FailureThreshold: cfg.Connect.FailureThreshold,
		Cooldown:         time.Duration(cfg.Connect.CooldownSeconds) * time.Second,
		MaxConcurrent:    int64(cfg.Connect.MaxConcurrentPolls),
	}, zl)
	defer connectFlow.Shutdown()

	recoveryService := services.NewRecoveryService(
		database, zl,
		time.Duration(cfg.Recovery.StuckAfterMinutes)*time.Minute,
	)
	webhookService := services.NewWebhookService(database, instanceService, intent, zl)

	stopSweep := workers.StartRecoverySweep(
		recoveryService,
		time.Duration(cfg.Recovery.SweepIntervalSeconds)*time.Second,
		zl,
	)
	defer stopSweep()

	controllers.Setup(instanceService, connectFlow, recoveryService, webhookService)

	if cfg.Env != "development" && cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(db.SetDBtoContext(database))
	router.Initialize(r, cfg)

	zl.Info().Str("port", cfg.ApiPort).Msg("agendazap channel service listening")
	if err := r.Run(":" + cfg.ApiPort); err != nil {
		log.Fatal(err)
	}
}
