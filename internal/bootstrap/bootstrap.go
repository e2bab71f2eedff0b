// Package bootstrap wires the proxy's collaborators from process settings,
// shared by the api and tasks CLI entry points. Settings are loaded once,
// then handed to constructors in dependency order.
package bootstrap

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/R3E-Network/evmrpcproxy/internal/chainregistry"
	"github.com/R3E-Network/evmrpcproxy/internal/config"
	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcclient"
	"github.com/R3E-Network/evmrpcproxy/internal/healthcheck"
	"github.com/R3E-Network/evmrpcproxy/internal/logging"
	"github.com/R3E-Network/evmrpcproxy/internal/nodeconfig"
	"github.com/R3E-Network/evmrpcproxy/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
)

// App bundles the constructed collaborators an entry point needs.
type App struct {
	Settings *config.Settings
	Logger   *logging.Logger
	Chains   *chainregistry.Registry
	Client   *evmrpcclient.Client
	Checker  *healthcheck.Checker
	Stats    *stats.Aggregator
}

// Build loads settings and config files from disk and constructs the
// engine: chain config, public fallback, secrets, template validation,
// then the client, checker, and stats aggregator.
func Build(serviceName string) (*App, error) {
	settings := config.LoadSettings("")
	logger := logging.NewFromEnv(serviceName)

	privateRaw, err := os.ReadFile(settings.EVMRPCConfigPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: reading %s: %w", settings.EVMRPCConfigPath, err)
	}
	private, err := nodeconfig.LoadChainsYAML(privateRaw)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	var public map[string]map[string]nodeconfig.NodeConfig
	if settings.EVMRPCPublicConfigPath != "" {
		if publicRaw, err := os.ReadFile(settings.EVMRPCPublicConfigPath); err == nil {
			public, err = nodeconfig.LoadChainsYAML(publicRaw)
			if err != nil {
				return nil, fmt.Errorf("bootstrap: %w", err)
			}
		}
	}

	var secrets nodeconfig.Secrets
	if settings.EVMRPCSecretsPath != "" {
		secretsRaw, err := os.ReadFile(settings.EVMRPCSecretsPath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: reading %s: %w", settings.EVMRPCSecretsPath, err)
		}
		secrets, err = nodeconfig.LoadSecretsYAML(secretsRaw)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	} else {
		secrets = nodeconfig.Secrets{}
	}

	declaredNames := make([]string, 0, len(secrets))
	for name := range secrets {
		declaredNames = append(declaredNames, name)
	}
	for chainName, nodes := range private {
		for nodeName, cfg := range nodes {
			if err := cfg.ValidateTemplate(declaredNames); err != nil {
				return nil, fmt.Errorf("bootstrap: chain %s node %s: %w", chainName, nodeName, err)
			}
		}
	}

	resolved := nodeconfig.CombineConfigWithPublic(private, public, secrets, settings.EVMRPCFallbackToPublic)
	nodeRegistry := nodeconfig.BuildRegistry(resolved, nil)

	chainRegistry := chainregistry.New(chainregistry.DefaultChains())

	metrics := stats.NewMetrics(prometheus.DefaultRegisterer)

	client := evmrpcclient.New(nodeRegistry, secrets, logger)
	client.RetryAttempts = settings.RetryAttempts
	client.DoUpstreamDebug = settings.EVMRPCDoUpstreamDebug
	client.Metrics = metrics

	checker := healthcheck.New(client, chainRegistry, logger)

	var sink stats.Sink
	if settings.StatsSinkURL != "" {
		sink = stats.NewHTTPSink(settings.StatsSinkURL, settings.StatsTableName, &http.Client{Timeout: 10 * time.Second})
	}
	aggregator := stats.New(sink, logger).
		WithPeriod(time.Duration(settings.StatsMinSyncPeriod * float64(time.Second))).
		WithMetrics(metrics)

	return &App{
		Settings: settings,
		Logger:   logger,
		Chains:   chainRegistry,
		Client:   client,
		Checker:  checker,
		Stats:    aggregator,
	}, nil
}
