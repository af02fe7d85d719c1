package config

import (
	"errors"
	"io/fs"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ZilDuck/zerosum-market-resolver/internal/log"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	ViewSourceRpc  = "rpc"
	ViewSourceTzkt = "tzkt"
)

type Config struct {
	Env     string
	Network string
	Debug   bool
	LogPath string

	MarketplaceAddress string
	NetworksFile       string
	ViewSource         string
	Viewer             string
	Fanout             int
	StaleCheck         bool
	BalanceCacheTTL    time.Duration
	Classify           bool

	HttpPort string

	Tzkt          TzktConfig
	Node          NodeConfig
	ElasticSearch ElasticSearchConfig
	Aws           AwsConfig
}

type AwsConfig struct {
	AccessKey string
	SecretKey string
	Token     string
	Region    string
}

type TzktConfig struct {
	Url       string
	Debug     bool
	Timeout   int
	RateLimit float64
	Retries   int
}

type NodeConfig struct {
	Url     string
	Debug   bool
	Timeout int
	Retries int
}

type ElasticSearchConfig struct {
	Hosts       []string
	Sniff       bool
	HealthCheck bool
	Debug       bool
	Username    string
	Password    string
	Aws         bool
	Index       string
	Refresh     string
}

// Init loads .env when present and sets up the global logger.
func Init() {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		zap.L().With(zap.Error(err)).Fatal("Unable to init config")
	}

	initLogger()
}

func initLogger() {
	log.NewLogger(Get().LogPath, Get().Debug)
}

func Get() *Config {
	return &Config{
		Env:                getString("ENV", ""),
		Network:            getString("NETWORK", "ghostnet"),
		Debug:              getBool("DEBUG", false),
		LogPath:            getString("LOG_PATH", ""),
		MarketplaceAddress: getString("MARKETPLACE_ADDRESS", ""),
		NetworksFile:       getString("NETWORKS_FILE", ""),
		ViewSource:         getString("VIEW_SOURCE", ViewSourceRpc),
		Viewer:             getString("VIEWER_ADDRESS", ""),
		Fanout:             getInt("FANOUT", 8),
		StaleCheck:         getBool("STALE_CHECK", true),
		BalanceCacheTTL:    getDuration("BALANCE_CACHE_TTL", 30*time.Second),
		Classify:           getBool("CLASSIFY_COLLECTIONS", false),
		HttpPort:           getString("HTTP_PORT", "8080"),
		Tzkt: TzktConfig{
			Url:       getString("TZKT_URL", ""),
			Timeout:   getInt("TZKT_TIMEOUT", 30),
			Debug:     getBool("TZKT_DEBUG", false),
			RateLimit: getFloat("TZKT_RATE_LIMIT", 8),
			Retries:   getInt("TZKT_RETRIES", 3),
		},
		Node: NodeConfig{
			Url:     getString("NODE_URL", ""),
			Timeout: getInt("NODE_TIMEOUT", 30),
			Debug:   getBool("NODE_DEBUG", false),
			Retries: getInt("NODE_RETRIES", 3),
		},
		Aws: AwsConfig{
			AccessKey: getString("AWS_ACCESS_KEY_ID", ""),
			SecretKey: getString("AWS_SECRET_KEY_ID", ""),
			Token:     getString("AWS_SESSION_TOKEN", ""),
			Region:    getString("AWS_REGION", ""),
		},
		ElasticSearch: ElasticSearchConfig{
			Hosts:       getSlice("ELASTIC_SEARCH_HOSTS", make([]string, 0), ","),
			Sniff:       getBool("ELASTIC_SEARCH_SNIFF", true),
			HealthCheck: getBool("ELASTIC_SEARCH_HEALTH_CHECK", true),
			Debug:       getBool("ELASTIC_SEARCH_DEBUG", false),
			Username:    getString("ELASTIC_SEARCH_USERNAME", ""),
			Password:    getString("ELASTIC_SEARCH_PASSWORD", ""),
			Aws:         getBool("ELASTIC_SEARCH_AWS", false),
			Index:       getString("ELASTIC_SEARCH_INDEX", "listings"),
			Refresh:     getString("ELASTIC_SEARCH_REFRESH", "wait_for"),
		},
	}
}

func getString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

func getInt(key string, defaultValue int) int {
	valStr := getString(key, "")
	val, _, err := big.ParseFloat(valStr, 10, 0, big.ToNearestEven)
	if err != nil {
		return defaultValue
	}

	intVal, _ := val.Int64()
	return int(intVal)
}

func getFloat(key string, defaultValue float64) float64 {
	if val, err := strconv.ParseFloat(getString(key, ""), 64); err == nil {
		return val
	}

	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	valStr := getString(key, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}

	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if val, err := time.ParseDuration(getString(key, "")); err == nil {
		return val
	}

	return defaultValue
}

func getSlice(key string, defaultVal []string, sep string) []string {
	valStr := getString(key, "")
	if valStr == "" {
		return defaultVal
	}

	return strings.Split(valStr, sep)
}
