package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SensorADS1115    = "ads1115"
	SensorSimulation = "simulation"

	AlarmGPIO = "gpio"
	AlarmLog  = "log"

	OutputConsole = "console"
	OutputSerial  = "serial"
	OutputMQTT    = "mqtt"
)

type MQTTConfig struct {
	Server   string `json:"server" yaml:"server"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	ClientID string `json:"client_id" yaml:"client_id"`
	// Topic is the base topic; lines go to <topic>/log and emergency stop
	// commands are read from <topic>/estop.
	Topic string `json:"topic" yaml:"topic"`
	// Trigger subscribes to <topic>/estop as an interrupt source.
	Trigger bool `json:"trigger" yaml:"trigger"`
}

type SerialConfig struct {
	Port     string `json:"port" yaml:"port"`
	BaudRate int    `json:"baud_rate" yaml:"baud_rate"`
}

type OutputConfig struct {
	Type   string        `json:"type" yaml:"type"`
	Serial *SerialConfig `json:"serial,omitempty" yaml:"serial,omitempty"`
	MQTT   *MQTTConfig   `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
}

type SensorConfig struct {
	Type       string `json:"type" yaml:"type"`
	I2CBus     string `json:"i2c_bus" yaml:"i2c_bus"`
	I2CAddress int    `json:"i2c_address" yaml:"i2c_address"`
	Channel    int    `json:"channel" yaml:"channel"`
	SampleRate int    `json:"sample_rate" yaml:"sample_rate"`
}

// ConversionConfig is the linear raw-to-volts scale. Zero fields take the
// full scale of the configured sensor.
type ConversionConfig struct {
	MaxRaw         float64 `json:"max_raw" yaml:"max_raw"`
	ReferenceVolts float64 `json:"reference_volts" yaml:"reference_volts"`
}

// Full scale per sensor. The simulated potentiometer mimics a 12-bit ADC on
// a 3.3 V rail; the ADS1115 is read as signed 16 bit with PGA +-4.096 V.
var fullScale = map[string]ConversionConfig{
	SensorSimulation: {MaxRaw: 4095, ReferenceVolts: 3.3},
	SensorADS1115:    {MaxRaw: 32768, ReferenceVolts: 4.096},
}

// ConversionFor returns c with zero fields filled from sensorType's full
// scale.
func ConversionFor(sensorType string, c ConversionConfig) ConversionConfig {
	fs, ok := fullScale[sensorType]
	if !ok {
		return c
	}
	if c.MaxRaw == 0 {
		c.MaxRaw = fs.MaxRaw
	}
	if c.ReferenceVolts == 0 {
		c.ReferenceVolts = fs.ReferenceVolts
	}
	return c
}

type AlarmConfig struct {
	Type      string `json:"type" yaml:"type"`
	Pin       string `json:"pin" yaml:"pin"`
	ActiveLow bool   `json:"active_low" yaml:"active_low"`
}

// ButtonConfig wires a GPIO falling edge to the emergency stop. An empty Pin
// disables it.
type ButtonConfig struct {
	Pin  string `json:"pin" yaml:"pin"`
	Pull string `json:"pull" yaml:"pull"`
}

type Config struct {
	Sensor         SensorConfig     `json:"sensor" yaml:"sensor"`
	Conversion     ConversionConfig `json:"conversion" yaml:"conversion"`
	SamplePeriodMs int              `json:"sample_period_ms" yaml:"sample_period_ms"`
	QueueCapacity  int              `json:"queue_capacity" yaml:"queue_capacity"`
	CooldownMs     int              `json:"cooldown_ms" yaml:"cooldown_ms"`
	TickMs         int              `json:"tick_ms" yaml:"tick_ms"`
	Alarm          AlarmConfig      `json:"alarm" yaml:"alarm"`
	Button         ButtonConfig     `json:"button" yaml:"button"`
	// Signal names an OS signal that acts as the emergency button, e.g. SIGUSR1.
	Signal   string         `json:"signal" yaml:"signal"`
	Outputs  []OutputConfig `json:"outputs" yaml:"outputs"`
	LogLevel string         `json:"log_level" yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		Sensor: SensorConfig{
			Type:       SensorSimulation,
			I2CBus:     "2",
			I2CAddress: 0x48,
			Channel:    0,
			SampleRate: 128,
		},
		Conversion:     fullScale[SensorSimulation],
		SamplePeriodMs: 100,
		QueueCapacity:  10,
		CooldownMs:     2000,
		TickMs:         1,
		Alarm:          AlarmConfig{Type: AlarmLog, Pin: "GPIO25"},
		Button:         ButtonConfig{Pull: "up"},
		Signal:         "SIGUSR1",
		Outputs:        []OutputConfig{{Type: OutputConsole}},
		LogLevel:       "info",
	}
}

func (c Config) SamplePeriod() time.Duration {
	return time.Duration(c.SamplePeriodMs) * time.Millisecond
}

func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

func (c Config) TickPeriod() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// Validate reports the first setting the system cannot run with.
func (c Config) Validate() error {
	switch {
	case c.SamplePeriodMs <= 0:
		return errors.New("sample-period-ms must be > 0")
	case c.QueueCapacity <= 0:
		return errors.New("queue-capacity must be > 0")
	case c.CooldownMs <= 0:
		return errors.New("cooldown-ms must be > 0")
	case c.TickMs <= 0:
		return errors.New("tick-ms must be > 0")
	case c.Conversion.MaxRaw <= 0:
		return errors.New("max-raw must be > 0")
	case c.Sensor.SampleRate <= 0:
		return errors.New("sample-rate must be > 0")
	}
	switch c.Sensor.Type {
	case SensorADS1115, SensorSimulation:
	default:
		return fmt.Errorf("unknown sensor type %q", c.Sensor.Type)
	}
	switch c.Alarm.Type {
	case AlarmLog:
	case AlarmGPIO:
		if c.Alarm.Pin == "" {
			return errors.New("gpio alarm needs a pin")
		}
	default:
		return fmt.Errorf("unknown alarm type %q", c.Alarm.Type)
	}
	if len(c.Outputs) == 0 {
		return errors.New("at least one output is required")
	}
	for _, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case OutputConsole:
		case OutputSerial:
			if o.Serial == nil || o.Serial.Port == "" {
				return errors.New("serial output needs a port")
			}
		case OutputMQTT:
			if o.MQTT == nil || o.MQTT.Server == "" {
				return errors.New("mqtt output needs a server")
			}
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	return nil
}

// LoadFromFlags loads configuration from the process command line.
func LoadFromFlags() (Config, error) {
	return Load(os.Args[1:])
}

// Load reads an optional JSON or YAML config file and applies flags on top.
// Flags override values present in the file.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("ads1115-estop", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON or YAML config file")
	flagSensorType := fs.String("sensor-type", "", "sensor type: ads1115|simulation")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus (e.g., '2' -> /dev/i2c-2)")
	flagI2CAddStr := fs.String("i2c-address", "", "I2C address (decimal or 0x hex)")
	flagChannel := fs.Int("channel", -1, "ADS1115 input channel (0-3)")
	flagSampleRate := fs.Int("sample-rate", -1, "ADS1115 sample rate (SPS)")
	flagMaxRaw := fs.Float64("max-raw", math.NaN(), "Raw value that maps to the reference voltage")
	flagVRef := fs.Float64("vref", math.NaN(), "Reference voltage")
	flagPeriod := fs.Int("sample-period-ms", -1, "Sampling period in ms")
	flagQueue := fs.Int("queue-capacity", -1, "Reading queue capacity")
	flagCooldown := fs.Int("cooldown-ms", -1, "Emergency alarm duration in ms")
	flagTick := fs.Int("tick-ms", -1, "Scheduler tick in ms")
	flagAlarmType := fs.String("alarm-type", "", "alarm output: gpio|log")
	flagAlarmPin := fs.String("alarm-pin", "", "alarm GPIO name (e.g. GPIO25)")
	flagButtonPin := fs.String("button-pin", "", "emergency button GPIO name (e.g. GPIO13)")
	flagButtonPull := fs.String("button-pull", "", "button pull resistor: up|down|none")
	flagSignal := fs.String("signal", "", "OS signal acting as the emergency button ('none' disables)")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,serial,mqtt)")
	flagSerialPort := fs.String("serial-port", "", "Serial output port")
	flagSerialBaud := fs.Int("serial-baud", -1, "Serial output baud rate")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT topic base")
	flagMQTTTrigger := fs.Bool("mqtt-trigger", false, "Accept emergency stop commands on <topic>/estop")
	flagLogLevel := fs.String("log-level", "", "log level: debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	// filled from the sensor type once file and flags are applied
	cfg.Conversion = ConversionConfig{}

	if *cfgPath != "" {
		if err := loadFile(*cfgPath, &cfg); err != nil {
			return cfg, err
		}
	}

	if *flagSensorType != "" {
		cfg.Sensor.Type = *flagSensorType
	}
	if *flagI2CBus != "" {
		cfg.Sensor.I2CBus = *flagI2CBus
	}
	if *flagI2CAddStr != "" {
		v, err := parseIntOrHex(*flagI2CAddStr)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.Sensor.I2CAddress = v
	}
	if *flagChannel != -1 {
		cfg.Sensor.Channel = *flagChannel
	}
	if *flagSampleRate != -1 {
		cfg.Sensor.SampleRate = *flagSampleRate
	}
	if !math.IsNaN(*flagMaxRaw) {
		cfg.Conversion.MaxRaw = *flagMaxRaw
	}
	if !math.IsNaN(*flagVRef) {
		cfg.Conversion.ReferenceVolts = *flagVRef
	}
	if *flagPeriod != -1 {
		cfg.SamplePeriodMs = *flagPeriod
	}
	if *flagQueue != -1 {
		cfg.QueueCapacity = *flagQueue
	}
	if *flagCooldown != -1 {
		cfg.CooldownMs = *flagCooldown
	}
	if *flagTick != -1 {
		cfg.TickMs = *flagTick
	}
	if *flagAlarmType != "" {
		cfg.Alarm.Type = *flagAlarmType
	}
	if *flagAlarmPin != "" {
		cfg.Alarm.Pin = *flagAlarmPin
	}
	if *flagButtonPin != "" {
		cfg.Button.Pin = *flagButtonPin
	}
	if *flagButtonPull != "" {
		cfg.Button.Pull = *flagButtonPull
	}
	if *flagSignal != "" {
		cfg.Signal = *flagSignal
		if strings.EqualFold(cfg.Signal, "none") {
			cfg.Signal = ""
		}
	}
	if *flagOutputs != "" {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	if *flagSerialPort != "" || *flagSerialBaud != -1 {
		apply := func(s *SerialConfig) {
			if *flagSerialPort != "" {
				s.Port = *flagSerialPort
			}
			if *flagSerialBaud != -1 {
				s.BaudRate = *flagSerialBaud
			}
		}
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == OutputSerial {
				if cfg.Outputs[i].Serial == nil {
					cfg.Outputs[i].Serial = &SerialConfig{}
				}
				apply(cfg.Outputs[i].Serial)
				applied = true
			}
		}
		if !applied {
			out := OutputConfig{Type: OutputSerial, Serial: &SerialConfig{}}
			apply(out.Serial)
			cfg.Outputs = append(cfg.Outputs, out)
		}
	}
	// map mqtt flags into every mqtt output (create one if missing)
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" || *flagMQTTTrigger {
		apply := func(m *MQTTConfig) {
			if *flagMQTTServer != "" {
				m.Server = *flagMQTTServer
			}
			if *flagMQTTUser != "" {
				m.Username = *flagMQTTUser
			}
			if *flagMQTTPass != "" {
				m.Password = *flagMQTTPass
			}
			if *flagClientID != "" {
				m.ClientID = *flagClientID
			}
			if *flagTopic != "" {
				m.Topic = *flagTopic
			}
			if *flagMQTTTrigger {
				m.Trigger = true
			}
		}
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == OutputMQTT {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				apply(cfg.Outputs[i].MQTT)
				applied = true
			}
		}
		if !applied {
			out := OutputConfig{Type: OutputMQTT, MQTT: &MQTTConfig{}}
			apply(out.MQTT)
			cfg.Outputs = append(cfg.Outputs, out)
		}
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	cfg.Conversion = ConversionFor(cfg.Sensor.Type, cfg.Conversion)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
