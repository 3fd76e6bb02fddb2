package main

import (
	"time"

	"github.com/fieldscope/fieldscope/internal/model"
)

const (
	defaultBrokerHost      = "localhost"
	defaultBrokerPort      = 1883
	defaultTopicPrefix     = "EQ1"
	defaultSampleHz        = float64(model.DefaultSampleHz)
	defaultWindowSeconds   = float64(model.DefaultWindowSeconds)
	defaultRefreshInterval = model.DefaultRefreshInterval
	defaultStaleAfter      = model.DefaultSensorStaleAfter
	defaultBindHost        = "127.0.0.1"
	defaultAPIPort         = 3000
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	BrokerHost          string        `mapstructure:"broker-host"`
	BrokerPort          int           `mapstructure:"broker-port"`
	SupervisorUsername  string        `mapstructure:"supervisor-username"`
	SupervisorPassword  string        `mapstructure:"supervisor-password"`
	MeasurementUsername string        `mapstructure:"measurement-username"`
	MeasurementPassword string        `mapstructure:"measurement-password"`
	TopicPrefix         string        `mapstructure:"topic-prefix"`
	SampleHz            float64       `mapstructure:"sample-hz"`
	WindowSeconds       float64       `mapstructure:"window-seconds"`
	RefreshInterval     time.Duration `mapstructure:"refresh-interval"`
	SensorStaleAfter    time.Duration `mapstructure:"sensor-stale-after"`
	CatalogPath         string        `mapstructure:"catalog-path"`
	APIEnabled          bool          `mapstructure:"api-enabled"`
	APIPort             int           `mapstructure:"api-port"`
	APIAddr             string        `mapstructure:"api-addr"`
	ArchivePath         string        `mapstructure:"archive-path"`
	ConfigPath          string        `mapstructure:"-"` // not from config file
}
