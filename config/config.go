// Package config holds the env-driven configuration for the outdial services.
package config

import (
	"github.com/pitabwire/frame/config"
)

// AgentConfig holds configuration for the call engine API service.
type AgentConfig struct {
	config.ConfigurationDefault
	PolicyDir         string `envDefault:"./policies" env:"POLICY_DIR"`
	NotifyMaxRetries  int    `envDefault:"5"          env:"NOTIFY_MAX_RETRIES"`
	NotifyTimeoutSec  int    `envDefault:"10"         env:"NOTIFY_TIMEOUT_SEC"`
	NotifyBackoffSec  int    `envDefault:"1"          env:"NOTIFY_BACKOFF_INITIAL_SEC"`
	NotifyBackoffMax  int    `envDefault:"300"        env:"NOTIFY_BACKOFF_MAX_SEC"`
	CBFailThreshold   int    `envDefault:"5"          env:"CB_FAILURE_THRESHOLD"`
	CBResetTimeoutSec int    `envDefault:"60"         env:"CB_RESET_TIMEOUT_SEC"`
}

// WorkerConfig holds configuration for the dial worker service.
type WorkerConfig struct {
	config.ConfigurationDefault
	WorkerID        string `envDefault:""                      env:"WORKER_ID"`
	PolicyDir       string `envDefault:"./policies"            env:"POLICY_DIR"`
	PollIntervalSec int    `envDefault:"5"                     env:"POLL_INTERVAL_SEC"`
	AgentAPIURL     string `envDefault:"http://localhost:8080" env:"AGENT_API_URL"`
	DialTimeoutSec  int    `envDefault:"15"                    env:"DIAL_TIMEOUT_SEC"`
}
