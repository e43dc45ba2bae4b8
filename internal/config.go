package internal

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// SchedulerConfig configures the scheduler process: membership registry and root of
// sessions created with the scheduler placement.
type SchedulerConfig struct {
	ListenAddr      string        `env:"LISTEN_ADDR,default=0.0.0.0:7100" validate:"required,hostname_port"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	ClusterSecret   string        `env:"CLUSTER_SECRET,required=true" validate:"min=16"`
	TokenDuration   time.Duration `env:"TOKEN_DURATION,default=5m" validate:"gt=0"`
	HeartbeatTTL    time.Duration `env:"HEARTBEAT_TTL,default=15s" validate:"gt=0"`
	ReapInterval    time.Duration `env:"REAP_INTERVAL,default=5s" validate:"gt=0"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=2s" validate:"gt=0"`
	Store           string        `env:"SESSION_STORE,default=memory" validate:"oneof=memory badger"`
	DebugPort       int           `env:"DEBUG_PORT" validate:"omitempty,gt=0,lt=65536"`
}

// WorkerConfig configures a worker process. AdvertiseAddr is the worker's identity:
// the address peers and clients dial to reach it.
type WorkerConfig struct {
	ListenAddr        string        `env:"LISTEN_ADDR,default=0.0.0.0:7101" validate:"required,hostname_port"`
	AdvertiseAddr     string        `env:"ADVERTISE_ADDR,required=true" validate:"required,hostname_port"`
	SchedulerAddr     string        `env:"SCHEDULER_ADDR,required=true" validate:"required,hostname_port"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	ClusterSecret     string        `env:"CLUSTER_SECRET,required=true" validate:"min=16"`
	TokenDuration     time.Duration `env:"TOKEN_DURATION,default=5m" validate:"gt=0"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=5s" validate:"gt=0"`
	JoinTimeout       time.Duration `env:"JOIN_TIMEOUT,default=10s" validate:"gt=0"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=2s" validate:"gt=0"`
	Store             string        `env:"SESSION_STORE,default=memory" validate:"oneof=memory badger"`
	DebugPort         int           `env:"DEBUG_PORT" validate:"omitempty,gt=0,lt=65536"`
}

func LoadSchedulerConfig() (SchedulerConfig, error) {
	var cfg SchedulerConfig
	if err := load(&cfg); err != nil {
		return SchedulerConfig{}, err
	}
	return cfg, nil
}

func LoadWorkerConfig() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := load(&cfg); err != nil {
		return WorkerConfig{}, err
	}
	return cfg, nil
}

func load(cfg any) error {
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
