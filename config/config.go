// Copyright 2024-2025 Ali Sufyan Baig
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the daemon configuration from the environment,
// optionally seeded from a .env file. Configuration errors are detected
// here, before anything starts; they are fatal to process start and
// never a runtime condition.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alisufyanbaig-dev/internet-load-balancer/balancer"
	"github.com/alisufyanbaig-dev/internet-load-balancer/intf"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type AppConfig struct {
	Proxy    ProxyConfig
	Admin    AdminConfig
	Balancer BalancerConfig
	Health   HealthConfig
	Log      LogConfig
}

type ProxyConfig struct {
	ListenAddr string `envconfig:"PROXY_LISTEN_ADDR" default:"127.0.0.1:8080"`
	// Interfaces pins the egress paths as name=ip pairs. When empty the
	// daemon discovers usable interfaces from the OS instead.
	Interfaces         []string      `envconfig:"PROXY_INTERFACES"`
	MaxClients         int           `envconfig:"PROXY_MAX_CLIENTS" default:"512"`
	HeaderTimeout      time.Duration `envconfig:"PROXY_HEADER_TIMEOUT" default:"5s"`
	ConnectTimeout     time.Duration `envconfig:"PROXY_CONNECT_TIMEOUT" default:"2s"`
	IdleTimeout        time.Duration `envconfig:"PROXY_IDLE_TIMEOUT" default:"10s"`
	MaxConnectAttempts int           `envconfig:"PROXY_MAX_CONNECT_ATTEMPTS" default:"3"`
}

type AdminConfig struct {
	ListenAddr     string        `envconfig:"ADMIN_LISTEN_ADDR" default:"127.0.0.1:8081"`
	ReportInterval time.Duration `envconfig:"ADMIN_REPORT_INTERVAL" default:"30s"`
}

type BalancerConfig struct {
	FailureThreshold     int           `envconfig:"LB_FAILURE_THRESHOLD" default:"3"`
	DegradedResponseTime time.Duration `envconfig:"LB_DEGRADED_RESPONSE_TIME" default:"2s"`
	MaxConnsPerInterface int           `envconfig:"LB_MAX_CONNS_PER_INTERFACE" default:"100"`
	WeightSuccessRate    float64       `envconfig:"LB_WEIGHT_SUCCESS_RATE" default:"1.0"`
	WeightResponseTime   float64       `envconfig:"LB_WEIGHT_RESPONSE_TIME" default:"1.0"`
	WeightLoad           float64       `envconfig:"LB_WEIGHT_LOAD" default:"1.0"`
	DegradedPenalty      float64       `envconfig:"LB_DEGRADED_PENALTY" default:"0.5"`
	SaturationPenalty    float64       `envconfig:"LB_SATURATION_PENALTY" default:"0.1"`
}

type HealthConfig struct {
	ProbeTarget           string        `envconfig:"HEALTH_PROBE_TARGET" default:"1.1.1.1:443"`
	ProbeInterval         time.Duration `envconfig:"HEALTH_PROBE_INTERVAL" default:"15s"`
	RecoveryProbeInterval time.Duration `envconfig:"HEALTH_RECOVERY_PROBE_INTERVAL" default:"5s"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the optional .env file at path, then the environment.
func Load(path string) (AppConfig, error) {
	_ = godotenv.Load(path)

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// Policy assembles the selection policy shared by the core components.
func (c AppConfig) Policy() intf.Policy {
	return intf.Policy{
		FailureThreshold:      c.Balancer.FailureThreshold,
		DegradedResponseTime:  c.Balancer.DegradedResponseTime,
		ProbeInterval:         c.Health.ProbeInterval,
		RecoveryProbeInterval: c.Health.RecoveryProbeInterval,
		MaxConnsPerInterface:  c.Balancer.MaxConnsPerInterface,
		ConnectTimeout:        c.Proxy.ConnectTimeout,
		IdleTimeout:           c.Proxy.IdleTimeout,
		MaxConnectAttempts:    c.Proxy.MaxConnectAttempts,
	}
}

// Weights assembles the scoring weights for the load balancer.
func (c AppConfig) Weights() balancer.Weights {
	return balancer.Weights{
		SuccessRate:       c.Balancer.WeightSuccessRate,
		ResponseTime:      c.Balancer.WeightResponseTime,
		Load:              c.Balancer.WeightLoad,
		DegradedPenalty:   c.Balancer.DegradedPenalty,
		SaturationPenalty: c.Balancer.SaturationPenalty,
	}
}

// ParseInterfaces turns the configured name=ip pairs into identities.
func (c AppConfig) ParseInterfaces() ([]intf.Identity, error) {
	ids := make([]intf.Identity, 0, len(c.Proxy.Interfaces))
	for _, entry := range c.Proxy.Interfaces {
		name, ip, ok := strings.Cut(entry, "=")
		if !ok || name == "" || ip == "" {
			return nil, fmt.Errorf("invalid interface entry %q, want name=ip", entry)
		}
		ids = append(ids, intf.Identity{Name: name, IP: ip})
	}
	return ids, nil
}
