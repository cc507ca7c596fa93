// Command stridequest runs the mission engine: it loads configuration,
// connects sensors and audio over MQTT, ticks the mission controller and
// serves the HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AaronLay10/StrideQuest/internal/api"
	"github.com/AaronLay10/StrideQuest/internal/audio"
	"github.com/AaronLay10/StrideQuest/internal/catalog"
	"github.com/AaronLay10/StrideQuest/internal/config"
	"github.com/AaronLay10/StrideQuest/internal/events"
	"github.com/AaronLay10/StrideQuest/internal/logs"
	"github.com/AaronLay10/StrideQuest/internal/mqtt"
	"github.com/AaronLay10/StrideQuest/internal/orchestrator"
	"github.com/AaronLay10/StrideQuest/internal/storage/postgres"
	"github.com/AaronLay10/StrideQuest/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stridequest: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envCfg, err := config.LoadEnv()
	if err != nil {
		return err
	}
	cfg, err := config.Load(envCfg.ConfigPath)
	if err != nil {
		return err
	}
	envCfg.Apply(cfg)
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}

	log, err := logs.New(os.Stdout, logs.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Journal: cfg.Log.Journal && logs.UnderSystemd(),
	})
	if err != nil {
		return err
	}
	slog.SetDefault(log)
	events.SetLogger(log)

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "", map[string]interface{}{
		"engine":   cfg.Engine.ID,
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence is optional; the engine runs without a database.
	var history api.History
	var summaries orchestrator.SummarySink
	var pgProbe api.Probe
	if envCfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.Config{
			Host:     envCfg.Postgres.Host,
			Port:     envCfg.Postgres.Port,
			User:     envCfg.Postgres.User,
			Password: secrets.PostgresPassword,
			Database: envCfg.Postgres.Database,
			SSLMode:  envCfg.Postgres.SSLMode,
			EngineID: cfg.Engine.ID,
		})
		if err != nil {
			log.Error("postgres unavailable, continuing without history", "error", err)
		} else {
			defer pg.Close()
			events.SetStore(pg)
			history = pg
			summaries = summarySink(pg)
			pgProbe = func() bool {
				pctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				return pg.Ping(pctx) == nil
			}
		}
	}

	var titleCache catalog.Cache
	if envCfg.RedisURL != "" {
		rc, err := catalog.NewRedisCache(envCfg.RedisURL, cfg.Missions.CacheTTL)
		if err != nil {
			log.Error("redis cache disabled", "error", err)
		} else if err := rc.Ping(ctx); err != nil {
			log.Error("redis cache disabled", "error", err)
			rc.Close()
		} else {
			defer rc.Close()
			titleCache = rc
		}
	}
	missions := catalog.New(cfg.Missions.Dir, titleCache, log)

	client := mqtt.NewClient(mqtt.Options{
		BrokerURL: envCfg.MQTTURL,
		ClientID:  cfg.MQTT.ClientID,
		Username:  envCfg.MQTTUser,
		Password:  secrets.MQTTPassword,
	})

	var mixer *audio.Mixer
	var routes []mqtt.Route
	if cfg.Engine.SimulatedAudio {
		sim := audio.NewSimulated()
		mixer = audio.NewMixer(sim, cfg.Engine.SpeechLeadIn, log)
		sim.Attach(mixer)
	} else {
		device := mqtt.NewAudioDevice(client, cfg.MQTT.AudioCommands, log)
		mixer = audio.NewMixer(device, cfg.Engine.SpeechLeadIn, log)
		device.Attach(mixer)
		routes = append(routes, mqtt.Route{Topic: cfg.MQTT.AudioEvents, Handler: device.Handler()})
	}

	monitor := mqtt.NewMonitor(sensorSpecs(cfg.Sensors), cfg.MQTT.HeartbeatTolerance)

	controller := orchestrator.NewController(orchestrator.Options{
		Audio:     mixer,
		Speech:    mixer,
		Presenter: orchestrator.EventPresenter{},
		Readiness: orchestrator.ReadinessFunc(func() bool {
			return monitor.Ready() && mixer.SpeechReady()
		}),
		Summaries: summaries,
		Pace: orchestrator.PaceConfig{
			SampleWindow:  cfg.Engine.SampleWindow,
			StrideFeet:    cfg.Engine.StrideFeet,
			NotMovingPace: cfg.Engine.NotMovingPace,
		},
		SpeechRetry: cfg.Engine.SpeechRetry,
		Logger:      log,
	})
	mixer.OnFocusLost(controller.RestartCurrentMoment)

	samples := mqtt.NewSampleSubscriber(client, monitor, controller, log)
	routes = append(routes,
		mqtt.Route{Topic: cfg.MQTT.Registration, Handler: samples.RegistrationHandler()},
		mqtt.Route{Topic: cfg.MQTT.Heartbeat, Handler: samples.HeartbeatHandler()},
		mqtt.Route{Topic: cfg.MQTT.Choice, Handler: mqtt.ChoiceHandler(controller, log)},
	)
	client.OnReconnect(samples.Resubscribe)
	if !client.StartWithRetry(log, routes...) {
		log.Warn("mqtt not fully connected; paho keeps retrying in the background")
	}
	defer client.Disconnect()

	monitor.Start(time.Second)
	defer monitor.Stop()

	loop := orchestrator.NewLoop(controller, cfg.Engine.TickInterval)
	loop.Start()
	defer loop.Stop()

	api.InitAuth(api.Credentials{
		AdminUser:    envCfg.AdminUser,
		AdminPass:    secrets.AdminPassword,
		OperatorUser: envCfg.OperatorUser,
		OperatorPass: secrets.OperatorPassword,
	})
	api.InitTLS(envCfg.TLSCert, envCfg.TLSKey)

	server := api.New(api.Options{
		Engine:  controller,
		Catalog: missions,
		History: history,
		RunDefaults: orchestrator.RunSpec{
			MissionLength:  cfg.Run.MissionLength(),
			IntervalLength: cfg.Run.IntervalLength(),
			ChallengePace:  cfg.Run.ChallengePace,
		},
		Probes: api.Probes{
			Sensors:  monitor.Ready,
			Speech:   mixer.SpeechReady,
			MQTT:     client.IsConnected,
			Postgres: pgProbe,
		},
		EngineID: cfg.Engine.ID,
		Logger:   log,
	})

	err = server.ListenAndServe(ctx, cfg.UIPort())
	events.Emit("info", "system.shutdown", "", nil)
	return err
}

func sensorSpecs(sensors map[string]config.SensorConfig) map[string]mqtt.SensorSpec {
	specs := make(map[string]mqtt.SensorSpec, len(sensors))
	for id, s := range sensors {
		specs[id] = mqtt.SensorSpec{Type: s.Type, Required: s.Required, Capabilities: s.Capabilities}
	}
	return specs
}

func summarySink(pg *postgres.Client) orchestrator.SummarySinkFunc {
	return func(ctx context.Context, s orchestrator.RunSummary) error {
		return pg.SaveSummary(ctx, postgres.SummaryRow{
			SessionID:          s.SessionID,
			Mission:            s.Mission,
			StartedAt:          s.StartedAt,
			EndedAt:            s.EndedAt,
			Completed:          s.Completed,
			TotalSteps:         int64(s.TotalSteps),
			IntervalsCompleted: int64(s.IntervalsCompleted),
			EnemiesDefeated:    int64(s.EnemiesDefeated),
			Narrative:          s.Narrative,
		})
	}
}
