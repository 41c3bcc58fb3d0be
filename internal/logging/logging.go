package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a logrus logger writing to stdout and a rotated file under dir.
func New(dir, level string) (*logrus.Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create logs folder failed: %w", err)
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "ship-notification.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 7,
		MaxAge:     30, // days
		Compress:   true,
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return logger, nil
}
