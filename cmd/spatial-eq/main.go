package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agusx1211/spatial-eq/internal/analyzer"
	"github.com/agusx1211/spatial-eq/internal/audio"
	"github.com/agusx1211/spatial-eq/internal/config"
	"github.com/agusx1211/spatial-eq/internal/control"
	"github.com/agusx1211/spatial-eq/internal/engine"
	"github.com/agusx1211/spatial-eq/internal/mqtt"
	"github.com/agusx1211/spatial-eq/internal/nats"
	"github.com/agusx1211/spatial-eq/internal/pipeline"
	"github.com/agusx1211/spatial-eq/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}
	if err := run(cfg); err != nil {
		logrus.WithError(err).Fatal("Exiting")
	}
}

// run owns every resource it opens, so teardown happens on startup failures
// as well as on shutdown.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bridge, err := engine.Create(float64(cfg.SampleRate), cfg.BlockSize,
		engine.WithEqChannels(2),
		engine.WithBandCount(cfg.Bands),
		engine.WithRampTime(cfg.RampTime()),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer bridge.Destroy()

	src, err := source.New(source.Options{
		Kind:       source.Kind(cfg.Source),
		SampleRate: cfg.SampleRate,
		Frames:     cfg.BlockSize,
		Color:      cfg.SourceColor,
		ToneHz:     cfg.ToneHz,
		Level:      cfg.SourceLevel,
	})
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	tap, err := analyzer.New(float64(cfg.SampleRate), cfg.SpectrumSize)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	p, err := pipeline.New(bridge, src, tap)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	player, err := audio.NewPlayer(cfg.SampleRate, cfg.BufferSize)
	if err != nil {
		return fmt.Errorf("failed to create audio player: %w", err)
	}
	defer player.Close()

	opts := []control.Option{control.WithResetter(p), control.WithLevelMeter(tap)}
	noise, isNoise := src.(*source.Noise)
	if isNoise {
		opts = append(opts, control.WithColorSetter(noise))
	}
	dispatcher := control.NewDispatcher(bridge, opts...)

	settings, err := bridge.Settings()
	if err != nil {
		return fmt.Errorf("failed to read engine settings: %w", err)
	}

	commandChan := make(chan control.Command, 100)
	var pubs []control.Publisher

	if cfg.MQTTBroker != "" {
		mqttClient, err := mqtt.NewClient(mqtt.Options{
			Broker:   cfg.MQTTBroker,
			Port:     cfg.MQTTPort,
			User:     cfg.MQTTUser,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTTopic,
			Bands:    settings.Bands,
			Color:    isNoise,
		}, commandChan)
		if err != nil {
			return fmt.Errorf("failed to create MQTT client: %w", err)
		}
		defer mqttClient.Close()
		pubs = append(pubs, mqttClient)
	}

	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL, 5, 2*time.Second)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		surface := nats.NewSurface(conn, cfg.NATSSubject, dispatcher.State, commandChan)
		defer surface.Close()
		if err := surface.Start(); err != nil {
			return fmt.Errorf("failed to start NATS surface: %w", err)
		}
		pubs = append(pubs, surface)
	}

	player.Start(p.Render)

	if isNoise {
		go reseedLoop(ctx, noise)
	}
	go dispatcher.Run(ctx, commandChan, cfg.SpectrumInterval, pubs...)

	<-ctx.Done()
	logrus.Info("Shutting down...")
	player.Stop()
	return nil
}

func reseedLoop(ctx context.Context, n *source.Noise) {
	reseed(n)
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reseed(n)
		}
	}
}

func reseed(n *source.Noise) {
	f, err := os.Open("/dev/random")
	if err != nil {
		logrus.WithError(err).Warn("Failed to open /dev/random")
		return
	}
	defer f.Close()

	var seed int64
	if err := binary.Read(f, binary.LittleEndian, &seed); err != nil {
		logrus.WithError(err).Warn("Failed to read /dev/random")
		return
	}
	n.Reseed(seed)
	logrus.Debug("Re-seeded noise from /dev/random")
}
