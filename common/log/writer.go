package log

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
)

// WriterConfig configures the rotating log file a node writes next to its
// data directory.
type WriterConfig struct {
	Filename   string `json:"filename"`
	MaxSize    int    `json:"maxsize"`
	MaxAge     int    `json:"maxage"`
	MaxBackups int    `json:"maxbackups"`
	LocalTime  bool   `json:"localtime"`
	Compress   bool   `json:"compress"`
}

func (cfg *WriterConfig) Validate() error {
	if cfg.Filename == "" {
		return errors.IllegalArgumentError.New("FilenameRequired")
	}
	if cfg.MaxSize < 0 || cfg.MaxAge < 0 || cfg.MaxBackups < 0 {
		return errors.IllegalArgumentError.New("NegativeRotationLimit")
	}
	return nil
}

func NewWriter(cfg *WriterConfig) (io.Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		LocalTime:  cfg.LocalTime,
		Compress:   cfg.Compress,
	}, nil
}
