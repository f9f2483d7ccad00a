package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080"`
	GrpcPort int    `env:"GRPC_PORT,default=9090"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	DebugPort      int    `env:"DEBUG_PORT,default=8081"`

	JwtSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	PushTimeout          time.Duration `env:"PUSH_TIMEOUT,default=2s"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	RegistryShards       int           `env:"REGISTRY_SHARDS,default=32"`
	ConversationStripes  int           `env:"CONVERSATION_STRIPES,default=256"`
	LimitMessages        int           `env:"LIMIT_MESSAGES,default=50"`
	MaxAttachmentSize    int           `env:"MAX_ATTACHMENT_SIZE,default=10485760"`

	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=60s"`
	PingInterval time.Duration `env:"PING_INTERVAL,default=30s"`
	MaxFrameSize int           `env:"MAX_FRAME_SIZE,default=65536"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=1s"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s"`
	QueueWarnRatio  float64       `env:"QUEUE_WARN_RATIO,default=0.8"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Validate checks the relations between settings that tags cannot express.
func (c Config) Validate() error {
	if len(c.JwtSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.PingInterval <= 0 || c.MetricInterval <= 0 {
		return fmt.Errorf("PING_INTERVAL and METRIC_INTERVAL must be positive")
	}
	if c.PingInterval >= c.ReadTimeout {
		return fmt.Errorf("PING_INTERVAL (%s) must be shorter than READ_TIMEOUT (%s)", c.PingInterval, c.ReadTimeout)
	}
	if c.PushTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("PUSH_TIMEOUT and WRITE_TIMEOUT must be positive")
	}
	if c.QueueWarnRatio <= 0 || c.QueueWarnRatio > 1 {
		return fmt.Errorf("QUEUE_WARN_RATIO must be in (0, 1], got %v", c.QueueWarnRatio)
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("MAX_FRAME_SIZE must be positive, got %d", c.MaxFrameSize)
	}
	if c.ConnectionBufferSize <= 0 {
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	}
	return nil
}

func (c Config) HTTPAddress() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

func (c Config) GrpcAddress() string { return fmt.Sprintf("%s:%d", c.Host, c.GrpcPort) }
