package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SchedulerAddr string        `envconfig:"SCHEDULER_ADDR" default:"localhost:7100"`
	ClusterSecret string        `envconfig:"CLUSTER_SECRET" required:"true"`
	TokenDuration time.Duration `envconfig:"TOKEN_DURATION" default:"5m"`
	// COMMS_PLACEMENT selects which process originates the group id: client, worker or scheduler
	Placement string `envconfig:"COMMS_PLACEMENT" default:"client"`
	// COMMS_P2P exchanges point-to-point endpoints once the group id is shared
	P2P     bool          `envconfig:"COMMS_P2P" default:"false"`
	Verbose bool          `envconfig:"VERBOSE" default:"false"`
	Timeout time.Duration `envconfig:"RENDEZVOUS_TIMEOUT" default:"30s"`
	// COLOURS enables colorized output for better readability
	Colours bool `envconfig:"COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
