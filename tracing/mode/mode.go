/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package mode decides once per process whether tracing runs in development
// or production and binds the matching AI system identity.
//
// The resolver is a small state machine:
//
//	Uninitialized -> Development
//	Uninitialized -> Production
//
// Both bound states are terminal. Resolving again with the same mode returns
// the identity already bound; asking for the other mode is a
// *ConfigurationError.
//
// Development binds a fresh external model scoped to the active run and does
// not make it the active model, so development traces are linked through the
// run only. Production resolves a logged model by id and makes it active, so
// every trace is linked to it.
package mode

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"chainguard.dev/evaltrace/tracing/autolog"
	"chainguard.dev/evaltrace/tracing/backend"
	"chainguard.dev/evaltrace/tracing/retry"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
)

// Mode is the resolver state.
type Mode int

const (
	Uninitialized Mode = iota
	Development
	Production
)

func (m Mode) String() string {
	switch m {
	case Development:
		return "development"
	case Production:
		return "production"
	default:
		return "uninitialized"
	}
}

// Options selects the mode and how to bind it.
type Options struct {
	IsProduction bool
	// AISystemConfigPath overrides DOMINO_AI_SYSTEM_CONFIG_PATH.
	AISystemConfigPath string
	// ExperimentName, when set, binds traces to that experiment.
	ExperimentName string
	// Frameworks names the autolog integrations to enable.
	Frameworks []string
}

// Identity is the AI system bound for the process lifetime.
type Identity struct {
	Mode  Mode
	Model backend.Model
	// Run is the development run. Zero in production.
	Run          backend.Run
	ExperimentID string
	Frameworks   []string
}

// IsProduction reports whether the identity is a production binding.
func (i Identity) IsProduction() bool {
	return i.Mode == Production
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookuper replaces the process environment as the configuration source.
func WithLookuper(l envconfig.Lookuper) Option {
	return func(r *Resolver) { r.lookuper = l }
}

// WithRetry sets the retry policy for backend calls made while binding.
func WithRetry(cfg retry.Config) Option {
	return func(r *Resolver) { r.retry = cfg }
}

// Resolver binds the process to an AI system identity.
type Resolver struct {
	be       backend.Backend
	lookuper envconfig.Lookuper
	retry    retry.Config

	mu       sync.Mutex
	identity Identity
}

// NewResolver creates an uninitialized Resolver over be.
func NewResolver(be backend.Backend, opts ...Option) *Resolver {
	r := &Resolver{
		be:       be,
		lookuper: envconfig.OsLookuper(),
		retry:    retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Current returns the bound identity, or false while uninitialized.
func (r *Resolver) Current() (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identity, r.identity.Mode != Uninitialized
}

// State returns the resolver state.
func (r *Resolver) State() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identity.Mode
}

// Resolve binds the process to a development or production identity.
func (r *Resolver) Resolve(ctx context.Context, opts Options) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := Development
	if opts.IsProduction {
		want = Production
	}
	switch r.identity.Mode {
	case Uninitialized:
	case want:
		return r.identity, nil
	default:
		return Identity{}, &ConfigurationError{
			Reason: fmt.Sprintf("already bound to %s, cannot switch to %s", r.identity.Mode, want),
		}
	}

	env, err := loadEnv(ctx, r.lookuper)
	if err != nil {
		return Identity{}, &ConfigurationError{Reason: "reading environment", Err: err}
	}

	var id Identity
	if want == Production {
		// Checked before any backend traffic.
		if env.ModelID == "" {
			return Identity{}, &ConfigurationError{Reason: "DOMINO_AI_SYSTEM_MODEL_ID is required in production"}
		}
		id, err = r.bindProduction(ctx, opts, env)
	} else {
		id, err = r.bindDevelopment(ctx, opts, env)
	}
	if err != nil {
		return Identity{}, err
	}

	if err := publish(want == Production); err != nil {
		clog.FromContext(ctx).With("error", err.Error()).Warn("Failed to publish mode flag")
	}
	r.identity = id
	clog.FromContext(ctx).With("mode", id.Mode.String()).
		With("model_id", id.Model.ID).
		With("run_id", id.Run.ID).
		Info("Tracing mode resolved")
	return id, nil
}

// bind selects the experiment and enables autolog integrations.
func (r *Resolver) bind(ctx context.Context, opts Options) (string, []string, error) {
	var experimentID string
	if opts.ExperimentName != "" {
		var err error
		experimentID, err = retry.Do(ctx, r.retry, "set_experiment", retry.Transient, func() (string, error) {
			return r.be.SetExperiment(ctx, opts.ExperimentName)
		})
		if err != nil {
			return "", nil, fmt.Errorf("binding experiment %q: %w", opts.ExperimentName, err)
		}
	}
	return experimentID, autolog.Enable(ctx, opts.Frameworks...), nil
}

func (r *Resolver) bindProduction(ctx context.Context, opts Options, env EnvConfig) (Identity, error) {
	experimentID, frameworks, err := r.bind(ctx, opts)
	if err != nil {
		return Identity{}, err
	}

	model, err := retry.Do(ctx, r.retry, "get_model", retry.Transient, func() (backend.Model, error) {
		return r.be.GetModel(ctx, env.ModelID)
	})
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return Identity{}, &ConfigurationError{Reason: fmt.Sprintf("production model %q does not exist", env.ModelID), Err: err}
		}
		return Identity{}, fmt.Errorf("fetching production model: %w", err)
	}
	if err := retry.Call(ctx, r.retry, "set_active_model", func() error {
		return r.be.SetActiveModel(ctx, model.ID)
	}); err != nil {
		return Identity{}, fmt.Errorf("activating production model: %w", err)
	}

	return Identity{
		Mode:         Production,
		Model:        model,
		ExperimentID: experimentID,
		Frameworks:   frameworks,
	}, nil
}

func (r *Resolver) bindDevelopment(ctx context.Context, opts Options, env EnvConfig) (Identity, error) {
	experimentID, frameworks, err := r.bind(ctx, opts)
	if err != nil {
		return Identity{}, err
	}

	run, ok, err := r.be.ActiveRun(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("looking up active run: %w", err)
	}
	if !ok {
		return Identity{}, &ConfigurationError{Reason: "development mode requires an active run"}
	}
	if experimentID == "" {
		experimentID = run.ExperimentID
	}

	path := opts.AISystemConfigPath
	if path == "" {
		path = env.ConfigPath
	}
	params := readSystemConfig(ctx, path)

	name := env.ModelName
	if name == "" {
		name = opts.ExperimentName
	}
	if name == "" {
		name = "ai-system"
	}

	model, err := retry.Do(ctx, r.retry, "create_external_model", retry.Transient, func() (backend.Model, error) {
		return r.be.CreateExternalModel(ctx, backend.ExternalModelSpec{
			Name:         name,
			Type:         DefaultModelType,
			ExperimentID: experimentID,
			RunID:        run.ID,
			Params:       maps.Clone(params),
		})
	})
	if err != nil {
		return Identity{}, fmt.Errorf("creating external model: %w", err)
	}

	return Identity{
		Mode:         Development,
		Model:        model,
		Run:          run,
		ExperimentID: experimentID,
		Frameworks:   frameworks,
	}, nil
}
