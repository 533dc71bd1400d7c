package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// InitLogger configures the process-wide logrus logger: JSON lines outside
// development, colored text locally.
func InitLogger(cfg *Config) {
	logrus.SetOutput(os.Stdout)

	if cfg.IsDevelopment() {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logrus.WithField("log_level", cfg.Server.LogLevel).Warn("⚠️  Unknown log level, falling back to info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
