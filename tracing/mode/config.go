/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package mode

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// EnvIsProduction is the process-wide flag mirroring the resolved mode.
const EnvIsProduction = "DOMINO_IS_PRODUCTION"

// DefaultModelType is the type recorded on AI system model records.
const DefaultModelType = "AI System"

// EnvConfig is the environment the resolver reads.
type EnvConfig struct {
	// ModelID identifies the production logged model. Required in production.
	ModelID string `env:"DOMINO_AI_SYSTEM_MODEL_ID"`
	// ModelName names development external models.
	ModelName string `env:"DOMINO_AI_SYSTEM_MODEL_NAME"`
	// ConfigPath is the AI system configuration file used when Options
	// leaves it empty.
	ConfigPath string `env:"DOMINO_AI_SYSTEM_CONFIG_PATH,default=ai_system_config.yaml"`
	// IsProduction is the published mode flag.
	IsProduction bool `env:"DOMINO_IS_PRODUCTION,default=false"`
}

func loadEnv(ctx context.Context, l envconfig.Lookuper) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// FromEnv reports whether the process was resolved into production mode.
// It is for code deep in a call stack that has no access to the resolver.
// An unset flag means development.
func FromEnv(ctx context.Context) (bool, error) {
	cfg, err := loadEnv(ctx, envconfig.OsLookuper())
	if err != nil {
		return false, err
	}
	return cfg.IsProduction, nil
}

func publish(isProduction bool) error {
	return os.Setenv(EnvIsProduction, strconv.FormatBool(isProduction))
}

// readSystemConfig loads the AI system configuration blob. YAML is a superset
// of JSON so both formats parse. A missing or malformed file yields empty
// params and a warning.
func readSystemConfig(ctx context.Context, path string) map[string]any {
	log := clog.FromContext(ctx).With("path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("AI system config not found, using empty params")
		} else {
			log.With("error", err.Error()).Warn("Failed to read AI system config, using empty params")
		}
		return map[string]any{}
	}

	var params map[string]any
	if err := yaml.Unmarshal(data, &params); err != nil {
		log.With("error", err.Error()).Warn("Failed to parse AI system config, using empty params")
		return map[string]any{}
	}
	if params == nil {
		params = map[string]any{}
	}
	return params
}
