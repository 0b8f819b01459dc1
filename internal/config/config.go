package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ZilDuck/solana-card-market/internal/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Env       string
	Debug     bool
	LogPath   string
	SentryDsn string
	FeeBps    uint16

	Solana   SolanaConfig
	Metadata MetadataConfig
	Sync     SyncConfig
	Orders   OrdersConfig
}

type SolanaConfig struct {
	RpcUrl            string
	Commitment        string
	ProgramId         string
	Authority         string
	MetadataProgramId string
	KeypairPath       string
	ConfirmRetries    int
	ConfirmInterval   time.Duration
}

type MetadataConfig struct {
	IpfsHosts         []string
	Timeout           time.Duration
	Retries           int
	Concurrency       int
	RequestsPerSecond float64
	CacheTtl          time.Duration
	PlaceholderImage  string
}

type SyncConfig struct {
	Attempts int
	Backoff  time.Duration
}

type OrdersConfig struct {
	Url     string
	Timeout time.Duration
	DbPath  string
	Port    string
}

var ipfsHosts = []string{
	"https://gateway.pinata.cloud",
	"https://cloudflare-ipfs.com",
	"https://gateway.ipfs.io",
}

var (
	v    = newViper()
	once sync.Once
)

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	return v
}

// Init loads .env when present and sets up the global logger for app.
func Init(app string) {
	once.Do(func() {
		if _, err := os.Stat(".env"); err == nil {
			if err := godotenv.Load(".env"); err != nil {
				zap.L().With(zap.Error(err)).Fatal("Unable to init config")
			}
		}
	})

	cfg := Get()
	log.NewLogger(cfg.LogPath, cfg.Debug, cfg.SentryDsn, app)
}

func Get() *Config {
	return &Config{
		Env:       getString("ENV", "dev"),
		Debug:     getBool("DEBUG", false),
		LogPath:   getString("LOG_PATH", "./var/log/market.log"),
		SentryDsn: getString("SENTRY_DSN", ""),
		FeeBps:    uint16(getInt("FEE_BPS", 250)),
		Solana: SolanaConfig{
			RpcUrl:            getString("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
			Commitment:        getString("SOLANA_COMMITMENT", "confirmed"),
			ProgramId:         getString("SOLANA_PROGRAM_ID", ""),
			Authority:         getString("SOLANA_AUTHORITY", ""),
			MetadataProgramId: getString("SOLANA_METADATA_PROGRAM_ID", "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"),
			KeypairPath:       getString("SOLANA_KEYPAIR", "~/.config/solana/id.json"),
			ConfirmRetries:    getInt("SOLANA_CONFIRM_RETRIES", 30),
			ConfirmInterval:   getDuration("SOLANA_CONFIRM_INTERVAL", time.Second),
		},
		Metadata: MetadataConfig{
			IpfsHosts:         getSlice("IPFS_HOSTS", ipfsHosts, ","),
			Timeout:           getDuration("METADATA_TIMEOUT", 10*time.Second),
			Retries:           getInt("METADATA_RETRIES", 3),
			Concurrency:       getInt("METADATA_CONCURRENCY", 8),
			RequestsPerSecond: getFloat("METADATA_RPS", 20),
			CacheTtl:          getDuration("METADATA_CACHE_TTL", 10*time.Minute),
			PlaceholderImage:  getString("METADATA_PLACEHOLDER_IMAGE", ""),
		},
		Sync: SyncConfig{
			Attempts: getInt("SYNC_ATTEMPTS", 3),
			Backoff:  getDuration("SYNC_BACKOFF", 2*time.Second),
		},
		Orders: OrdersConfig{
			Url:     getString("ORDERS_URL", ""),
			Timeout: getDuration("ORDERS_TIMEOUT", 10*time.Second),
			DbPath:  getString("ORDERS_DB_PATH", "./var/orders.db"),
			Port:    getString("ORDERS_PORT", "8080"),
		},
	}
}

func getString(key string, defaultValue string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v.SetDefault(key, defaultValue)
	return v.GetInt(key)
}

func getFloat(key string, defaultValue float64) float64 {
	v.SetDefault(key, defaultValue)
	return v.GetFloat64(key)
}

func getBool(key string, defaultValue bool) bool {
	v.SetDefault(key, defaultValue)
	return v.GetBool(key)
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v.SetDefault(key, defaultValue)
	return v.GetDuration(key)
}

func getSlice(key string, defaultVal []string, sep string) []string {
	valStr := getString(key, "")
	if valStr == "" {
		return defaultVal
	}

	vals := strings.Split(valStr, sep)
	for i := range vals {
		vals[i] = strings.TrimSpace(vals[i])
	}
	return vals
}
