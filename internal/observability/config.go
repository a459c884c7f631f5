package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/journeys/internal/config"
	gormlogger "gorm.io/gorm/logger"
)

// Config is the resolved telemetry setup shared by the logger, tracer and
// meter providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel            string
	LogFormat           string
	LogSampleInitial    int
	LogSampleThereafter int

	DBLogLevel  gormlogger.LogLevel
	DBSlowQuery time.Duration

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	tel := cfg.Telemetry

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "journeys"
	}
	ratio := tel.OTelSamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}
	protocol := tel.OTelProtocol
	if protocol != "http" {
		protocol = "grpc"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             tel.LogLevel,
		LogFormat:            tel.LogFormat,
		LogSampleInitial:     tel.LogSampleInitial,
		LogSampleThereafter:  tel.LogSampleThereafter,
		DBLogLevel:           parseDBLogLevel(tel.DBLogLevel),
		DBSlowQuery:          tel.DBSlowQuery,
		OtelEnabled:          tel.OTelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug is true for debug logging or any non-production environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func parseDBLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent", "off":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
