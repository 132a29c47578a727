package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"
)

// Config is read from flags, falling back to environment variables and then
// to defaults.
type Config struct {
	MQTTBroker   string `name:"mqtt-broker" env:"MQTT_BROKER" default:"localhost" help:"MQTT broker host; empty disables MQTT."`
	MQTTPort     int    `name:"mqtt-port" env:"MQTT_PORT" default:"1883" help:"MQTT broker port."`
	MQTTUser     string `name:"mqtt-user" env:"MQTT_USER" help:"MQTT user name."`
	MQTTPassword string `name:"mqtt-password" env:"MQTT_PASSWORD" help:"MQTT password."`
	MQTTTopic    string `name:"mqtt-topic" env:"MQTT_TOPIC" default:"homeassistant/spatial-eq" help:"Base MQTT topic."`

	NATSURL     string `name:"nats-url" env:"NATS_URL" help:"NATS server URL; empty disables NATS."`
	NATSSubject string `name:"nats-subject" env:"NATS_SUBJECT" default:"spatialeq" help:"Base NATS subject."`

	SampleRate int `name:"sample-rate" env:"SAMPLE_RATE" default:"44100" help:"Sample rate in Hz."`
	BufferSize int `name:"buffer-size" env:"BUFFER_SIZE" default:"2048" help:"Frames rendered per output callback."`
	BlockSize  int `name:"block-size" env:"BLOCK_SIZE" default:"512" help:"Largest block the engine processes at once, in frames."`
	Bands      int `name:"bands" env:"BANDS" default:"10" help:"Number of equalizer bands."`
	RampMS     int `name:"ramp-ms" env:"RAMP_MS" default:"100" help:"Parameter smoothing time in milliseconds."`

	Source      string  `name:"source" env:"SOURCE" default:"noise" enum:"noise,sine,capture" help:"Input: noise, sine or capture."`
	SourceColor float64 `name:"source-color" env:"SOURCE_COLOR" default:"25" help:"Noise color, 0 (brown) to 100 (violet)."`
	ToneHz      float64 `name:"tone-hz" env:"TONE_HZ" default:"440" help:"Sine source frequency."`
	SourceLevel float64 `name:"source-level" env:"SOURCE_LEVEL" default:"0.5" help:"Noise and sine source level."`

	SpectrumInterval time.Duration `name:"spectrum-interval" env:"SPECTRUM_INTERVAL" default:"2s" help:"How often state and spectrum are published."`
	SpectrumSize     int           `name:"spectrum-size" env:"SPECTRUM_SIZE" default:"4096" help:"Analyzer FFT size, a power of two."`

	LogLevel  string `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"trace,debug,info,warn,error" help:"Log level."`
	LogFormat string `name:"log-format" env:"LOG_FORMAT" default:"text" enum:"text,json" help:"Log format."`
}

// Parse reads args, which exclude the program name.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	parser, err := kong.New(cfg,
		kong.Name("spatial-eq"),
		kong.Description("Equalizer and room simulation for a live audio stream"),
		kong.UsageOnError(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, err
	}

	if cfg.MQTTBroker != "" && !strings.HasPrefix(cfg.MQTTBroker, "tcp://") && !strings.HasPrefix(cfg.MQTTBroker, "ssl://") {
		cfg.MQTTBroker = "tcp://" + cfg.MQTTBroker
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	case c.BufferSize <= 0:
		return fmt.Errorf("invalid buffer size %d", c.BufferSize)
	case c.BlockSize <= 0:
		return fmt.Errorf("invalid block size %d", c.BlockSize)
	case c.Bands < 1:
		return fmt.Errorf("invalid band count %d", c.Bands)
	case c.RampMS < 0:
		return fmt.Errorf("invalid ramp time %d ms", c.RampMS)
	case c.SpectrumInterval <= 0:
		return fmt.Errorf("invalid spectrum interval %s", c.SpectrumInterval)
	}
	return nil
}

func (c *Config) RampTime() time.Duration {
	return time.Duration(c.RampMS) * time.Millisecond
}

// Load parses the process arguments and environment and sets up logging.
func Load() (*Config, error) {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		return nil, err
	}
	if err := cfg.SetupLogging(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"mqtt":   fmt.Sprintf("%s:%d", cfg.MQTTBroker, cfg.MQTTPort),
		"topic":  cfg.MQTTTopic,
		"nats":   cfg.NATSURL,
		"source": cfg.Source,
		"rate":   cfg.SampleRate,
		"bands":  cfg.Bands,
	}).Info("Config loaded")
	return cfg, nil
}

// SetupLogging applies LogLevel and LogFormat to the standard logger.
func (c *Config) SetupLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
