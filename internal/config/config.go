package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable holding the YAML config path.
const ConfigFileEnv = "CONFIG_FILE"

const (
	defaultInterval      = 2 * time.Hour
	defaultTimeout       = 10 * time.Second
	defaultHTTPAddr      = ":8000"
	defaultInputPin      = "7" // physical header pin of BCM4
	defaultStorePath     = "data/pod-agent.db"
	defaultBME280Samples = 5
	defaultSoilDryVolts  = 2.8
	defaultSoilWetVolts  = 1.2
	defaultMQTTPort      = 1883
)

var (
	ErrNoPodID     = errors.New("config: pod_id required")
	ErrNoURL       = errors.New("config: publish.url required")
	ErrNoPlants    = errors.New("config: at least one plant required")
	ErrBadInterval = errors.New("config: publish.interval must be positive")
)

// Input kinds.
const (
	InputGPIO = "gpio"
	InputMQTT = "mqtt"
	InputNone = "none"
)

// Hardware kinds.
const (
	HardwareRaspi = "raspi"
	HardwareSim   = "sim"
)

// Config is built once at startup and passed by value afterwards.
type Config struct {
	PodID    string         `yaml:"pod_id"`
	Publish  PublishConfig  `yaml:"publish"`
	Plants   []PlantConfig  `yaml:"plants"`
	Input    InputConfig    `yaml:"input"`
	Hardware HardwareConfig `yaml:"hardware"`
	HTTP     HTTPConfig     `yaml:"http"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Influx   InfluxConfig   `yaml:"influx"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
}

type PublishConfig struct {
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// PlantConfig binds a plant identifier to the ADC channel of its soil probe.
type PlantConfig struct {
	ID          string `yaml:"id"`
	SoilChannel int    `yaml:"soil_channel"`
}

type InputConfig struct {
	Kind string `yaml:"kind"`
	Pin  string `yaml:"pin"`
}

type HardwareConfig struct {
	Kind          string  `yaml:"kind"`
	BME280Samples int     `yaml:"bme280_samples"`
	SoilDryVolts  float64 `yaml:"soil_dry_volts"`
	SoilWetVolts  float64 `yaml:"soil_wet_volts"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type MQTTConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	ClientID       string `yaml:"client_id"`
	TelemetryTopic string `yaml:"telemetry_topic"`
	InputTopic     string `yaml:"input_topic"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool { return strings.TrimSpace(m.Host) != "" }

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Enabled reports whether the history sink is configured.
func (i InfluxConfig) Enabled() bool { return strings.TrimSpace(i.URL) != "" }

type StoreConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config holding every default value.
func Default() Config {
	return Config{
		Publish: PublishConfig{
			Interval: defaultInterval,
			Timeout:  defaultTimeout,
		},
		Input: InputConfig{
			Kind: InputGPIO,
			Pin:  defaultInputPin,
		},
		Hardware: HardwareConfig{
			Kind:          HardwareRaspi,
			BME280Samples: defaultBME280Samples,
			SoilDryVolts:  defaultSoilDryVolts,
			SoilWetVolts:  defaultSoilWetVolts,
		},
		HTTP:  HTTPConfig{Addr: defaultHTTPAddr},
		MQTT:  MQTTConfig{Port: defaultMQTTPort, ClientID: "pod-agent"},
		Store: StoreConfig{Path: defaultStorePath},
		Log:   LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads the optional YAML file at path (falling back to CONFIG_FILE),
// applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString("POD_ID", &cfg.PodID)
	setString("PUBLISH_URL", &cfg.Publish.URL)
	if err := setDuration("PUBLISH_INTERVAL", &cfg.Publish.Interval); err != nil {
		return err
	}
	if err := setDuration("PUBLISH_TIMEOUT", &cfg.Publish.Timeout); err != nil {
		return err
	}
	if v, ok := lookup("PLANT_IDS"); ok {
		cfg.Plants = nil
		for i, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.Plants = append(cfg.Plants, PlantConfig{ID: id, SoilChannel: i})
			}
		}
	}

	setString("INPUT_KIND", &cfg.Input.Kind)
	setString("INPUT_PIN", &cfg.Input.Pin)
	setString("HARDWARE_KIND", &cfg.Hardware.Kind)
	if err := setInt("HARDWARE_BME280_SAMPLES", &cfg.Hardware.BME280Samples); err != nil {
		return err
	}

	setString("HTTP_ADDR", &cfg.HTTP.Addr)

	setString("MQTT_HOST", &cfg.MQTT.Host)
	if err := setInt("MQTT_PORT", &cfg.MQTT.Port); err != nil {
		return err
	}
	setString("MQTT_USER", &cfg.MQTT.User)
	setString("MQTT_PASSWORD", &cfg.MQTT.Password)
	setString("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	setString("MQTT_TELEMETRY_TOPIC", &cfg.MQTT.TelemetryTopic)
	setString("MQTT_INPUT_TOPIC", &cfg.MQTT.InputTopic)

	setString("INFLUX_URL", &cfg.Influx.URL)
	setString("INFLUX_TOKEN", &cfg.Influx.Token)
	setString("INFLUX_ORG", &cfg.Influx.Org)
	setString("INFLUX_BUCKET", &cfg.Influx.Bucket)

	setString("STORE_PATH", &cfg.Store.Path)
	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)
	return nil
}

// Validate checks required values and normalises the topics.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.PodID) == "" {
		return ErrNoPodID
	}
	if strings.TrimSpace(c.Publish.URL) == "" {
		return ErrNoURL
	}
	if c.Publish.Interval <= 0 {
		return ErrBadInterval
	}
	if c.Publish.Timeout <= 0 {
		c.Publish.Timeout = defaultTimeout
	}
	if len(c.Plants) == 0 {
		return ErrNoPlants
	}
	seen := make(map[string]struct{}, len(c.Plants))
	for _, p := range c.Plants {
		if strings.TrimSpace(p.ID) == "" {
			return errors.New("config: plant id must not be empty")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("config: duplicate plant id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	switch c.Input.Kind {
	case InputGPIO, InputNone:
	case InputMQTT:
		if !c.MQTT.Enabled() {
			return errors.New("config: input.kind mqtt needs mqtt.host")
		}
	default:
		return fmt.Errorf("config: unknown input.kind %q", c.Input.Kind)
	}
	switch c.Hardware.Kind {
	case HardwareRaspi, HardwareSim:
	default:
		return fmt.Errorf("config: unknown hardware.kind %q", c.Hardware.Kind)
	}
	if c.Hardware.BME280Samples < 1 {
		c.Hardware.BME280Samples = 1
	}

	if c.MQTT.TelemetryTopic == "" {
		c.MQTT.TelemetryTopic = "pods/" + c.PodID + "/telemetry"
	}
	if c.MQTT.InputTopic == "" {
		c.MQTT.InputTopic = "pods/" + c.PodID + "/water"
	}
	return nil
}

// PlantIDs lists the configured plant identifiers in order.
func (c Config) PlantIDs() []string {
	ids := make([]string, 0, len(c.Plants))
	for _, p := range c.Plants {
		ids = append(ids, p.ID)
	}
	return ids
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func setString(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(key string, dst *int) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

// setDuration accepts Go durations ("30s", "2h") or a bare number of seconds.
func setDuration(key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}
	*dst = d
	return nil
}
