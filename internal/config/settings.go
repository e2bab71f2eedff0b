package config

import (
	"strings"

	"github.com/joho/godotenv"
)

// Settings holds process-level configuration, read once at startup from
// ERP_-prefixed environment variables.
type Settings struct {
	Env string

	APIBind string
	APIPort int

	EVMRPCConfigPath       string
	EVMRPCPublicConfigPath string
	EVMRPCSecretsPath      string
	EVMRPCFallbackToPublic bool
	EVMRPCDoUpstreamDebug  bool

	// AuthTokens maps an opaque bearer token to a human-readable requester
	// name. internal/httpapi's token resolver consults this map first and
	// falls back to the JWT path.
	AuthTokens map[string]string
	// JWTSigningKey, if set, enables the JWT bearer path (sub claim names
	// the requester) validated with golang-jwt/jwt/v5.
	JWTSigningKey string

	StatsSinkURL       string
	StatsTableName     string
	StatsMinSyncPeriod float64

	RetryAttempts          int
	HealthCheckRunPauseSec float64
}

const envPrefix = "ERP_"

// LoadSettings reads process settings from the environment, optionally
// preloaded from a .env file via godotenv for dev setups.
func LoadSettings(envFile string) *Settings {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load()
	}

	s := &Settings{
		Env:                    GetEnv(envPrefix+"ENV", "dev"),
		APIBind:                GetEnv(envPrefix+"API_BIND", "0.0.0.0"),
		APIPort:                GetEnvInt(envPrefix+"API_PORT", 8080),
		EVMRPCConfigPath:       GetEnv(envPrefix+"EVMRPC_CONFIG", "config/evmrpc.yaml"),
		EVMRPCPublicConfigPath: GetEnv(envPrefix+"EVMRPC_PUBLIC_CONFIG", "config/evmrpc_public.yaml"),
		EVMRPCSecretsPath:      GetEnv(envPrefix+"EVMRPC_SECRETS", ""),
		EVMRPCFallbackToPublic: GetEnvBool(envPrefix+"EVMRPC_FALLBACK_TO_PUBLIC", true),
		EVMRPCDoUpstreamDebug:  GetEnvBool(envPrefix+"EVMRPC_DO_UPSTREAM_DEBUG", false),
		JWTSigningKey:          GetEnv(envPrefix+"JWT_SIGNING_KEY", ""),
		StatsSinkURL:           GetEnv(envPrefix+"STATS_SINK_URL", ""),
		StatsTableName:         GetEnv(envPrefix+"STATS_TABLE_NAME", "evmrpc_stats"),
		StatsMinSyncPeriod:     GetEnvFloat(envPrefix+"STATS_MIN_SYNC_PERIOD_SEC", 60.0),
		RetryAttempts:          GetEnvInt(envPrefix+"RETRY_ATTEMPTS", 5),
		HealthCheckRunPauseSec: GetEnvFloat(envPrefix+"HEALTHCHECK_RUN_PAUSE_SEC", 60.0),
	}

	s.AuthTokens = parseAuthTokens(GetEnv(envPrefix+"AUTH_TOKENS", "xlocalonlyauthtoken=xlocalonly"))
	return s
}

// parseAuthTokens parses a "token=requester,token2=requester2" list into
// the opaque-token map.
func parseAuthTokens(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out
}
