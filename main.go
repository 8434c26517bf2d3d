package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ericogr/ads1115-estop/pkg/alarm"
	"github.com/ericogr/ads1115-estop/pkg/app"
	"github.com/ericogr/ads1115-estop/pkg/config"
	"github.com/ericogr/ads1115-estop/pkg/output"
	"github.com/ericogr/ads1115-estop/pkg/output/console"
	"github.com/ericogr/ads1115-estop/pkg/output/mqtt"
	"github.com/ericogr/ads1115-estop/pkg/output/serial"
	"github.com/ericogr/ads1115-estop/pkg/sensor"
	"github.com/ericogr/ads1115-estop/pkg/trigger"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"periph.io/x/host/v3"
)

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: l}))
}

func run(cfg config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if usesGPIO(cfg) {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("host init: %w", err)
		}
	}

	src, err := initSensor(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	sink, err := initOutputs(cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	alm, err := initAlarm(cfg, log)
	if err != nil {
		return err
	}
	defer alm.Set(false)

	sources, err := initTriggers(cfg)
	if err != nil {
		return err
	}

	sys, err := app.New(cfg, app.Deps{Sensor: src, Sink: sink, Alarm: alm, Logger: log})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sys.Run(ctx) })
	for _, s := range sources {
		g.Go(func() error { return s.Run(ctx, sys.Interrupt) })
	}
	return g.Wait()
}

func usesGPIO(cfg config.Config) bool {
	return cfg.Alarm.Type == config.AlarmGPIO || cfg.Button.Pin != ""
}

func initSensor(cfg config.Config) (sensor.Source, error) {
	switch cfg.Sensor.Type {
	case config.SensorADS1115:
		return sensor.NewADS1115Sensor(cfg.Sensor)
	case config.SensorSimulation:
		return sensor.NewFakeSensor(cfg.Conversion.MaxRaw), nil
	}
	return nil, fmt.Errorf("unknown sensor type %q", cfg.Sensor.Type)
}

func initOutputs(cfg config.Config) (output.Sink, error) {
	var sinks output.Multi
	for _, oc := range cfg.Outputs {
		var (
			s   output.Sink
			err error
		)
		switch strings.ToLower(oc.Type) {
		case config.OutputConsole:
			s = console.NewConsole()
		case config.OutputSerial:
			if oc.Serial == nil {
				err = errors.New("serial output without serial settings")
				break
			}
			s, err = serial.NewSerial(*oc.Serial)
		case config.OutputMQTT:
			if oc.MQTT == nil {
				err = errors.New("mqtt output without mqtt settings")
				break
			}
			s, err = mqtt.NewMQTT(*oc.MQTT)
		default:
			err = fmt.Errorf("unknown output type %q", oc.Type)
		}
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("output %s: %w", oc.Type, err)
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

func initAlarm(cfg config.Config, log *slog.Logger) (alarm.Output, error) {
	if cfg.Alarm.Type == config.AlarmGPIO {
		return alarm.Open(cfg.Alarm.Pin, cfg.Alarm.ActiveLow, log)
	}
	return alarm.NewLog(log), nil
}

func initTriggers(cfg config.Config) ([]trigger.Source, error) {
	var sources []trigger.Source
	if cfg.Button.Pin != "" {
		pull, err := trigger.ParsePull(cfg.Button.Pull)
		if err != nil {
			return nil, err
		}
		g, err := trigger.OpenGPIO(cfg.Button.Pin, pull)
		if err != nil {
			return nil, err
		}
		sources = append(sources, g)
	}
	if cfg.Signal != "" && !strings.EqualFold(cfg.Signal, "none") {
		sig, err := trigger.ParseSignal(cfg.Signal)
		if err != nil {
			return nil, err
		}
		sources = append(sources, trigger.NewSignal(sig))
	}
	for _, oc := range cfg.Outputs {
		if strings.EqualFold(oc.Type, config.OutputMQTT) && oc.MQTT != nil && oc.MQTT.Trigger {
			m, err := trigger.NewMQTT(*oc.MQTT)
			if err != nil {
				return nil, err
			}
			sources = append(sources, m)
		}
	}
	return sources, nil
}
