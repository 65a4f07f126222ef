package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Bot    BotConfig
	Store  StoreConfig
	Media  MediaConfig
	Export ExportConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	bot, err := loadBotConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	media, err := loadMediaConfig()
	if err != nil {
		return nil, err
	}

	export, err := loadExportConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Bot: bot, Store: store, Media: media, Export: export}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// APIToken 保护 /api 路由，为空时不挂载。
	APIToken string
}

// loadServerConfig 解析服务器监听地址与 API 令牌。
func loadServerConfig() (ServerConfig, error) {
	token := strings.TrimSpace(os.Getenv("API_TOKEN"))
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, APIToken: token}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, APIToken: token}, nil
}

// BotConfig 描述对话机器人配置。
type BotConfig struct {
	Token              string
	Admins             []string
	DefaultLanguage    string
	RequireMedia       bool
	Location           *time.Location
	SessionTTL         time.Duration
	PersistTimeout     time.Duration
	PersistRetries     int
	PersistConcurrency int
	// RateLimit 是每个用户每秒允许的消息数，0 表示不限流。
	RateLimit float64
	RateBurst int
}

// TelegramEnabled 表示是否配置了 Telegram token。
func (c BotConfig) TelegramEnabled() bool {
	return c.Token != ""
}

func loadBotConfig() (BotConfig, error) {
	requireMedia, err := parseBoolEnv("BOT_REQUIRE_MEDIA", true)
	if err != nil {
		return BotConfig{}, err
	}

	location, err := parseLocationEnv("BOT_TIMEZONE")
	if err != nil {
		return BotConfig{}, err
	}

	ttl, err := parseDurationEnv("BOT_SESSION_TTL", 24*time.Hour)
	if err != nil {
		return BotConfig{}, err
	}

	persistTimeout, err := parseDurationEnv("BOT_PERSIST_TIMEOUT", 10*time.Second)
	if err != nil {
		return BotConfig{}, err
	}

	retries := 2
	if override, err := parseOptionalIntEnv("BOT_PERSIST_RETRIES"); err != nil {
		return BotConfig{}, err
	} else if override != nil {
		if *override < 0 {
			retries = 0
		} else {
			retries = *override
		}
	}

	concurrency := 4
	if override, err := parseOptionalIntEnv("BOT_PERSIST_CONCURRENCY"); err != nil {
		return BotConfig{}, err
	} else if override != nil && *override > 0 {
		concurrency = *override
	}

	var rateLimit float64
	if limit, err := parseOptionalFloatEnv("BOT_RATE_LIMIT"); err != nil {
		return BotConfig{}, err
	} else if limit != nil && *limit > 0 {
		rateLimit = *limit
	}

	burst := 5
	if override, err := parseOptionalIntEnv("BOT_RATE_BURST"); err != nil {
		return BotConfig{}, err
	} else if override != nil && *override > 0 {
		burst = *override
	}

	return BotConfig{
		Token:              strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		Admins:             parseListEnv("BOT_ADMINS"),
		DefaultLanguage:    getEnvOrDefault("BOT_DEFAULT_LANGUAGE", "ru"),
		RequireMedia:       requireMedia,
		Location:           location,
		SessionTTL:         ttl,
		PersistTimeout:     persistTimeout,
		PersistRetries:     retries,
		PersistConcurrency: concurrency,
		RateLimit:          rateLimit,
		RateBurst:          burst,
	}, nil
}

// StoreDriver 标识观测记录的存储后端。
type StoreDriver string

const (
	StoreMemory   StoreDriver = "memory"
	StoreSQLite   StoreDriver = "sqlite"
	StorePostgres StoreDriver = "postgres"
)

// StoreConfig 描述持久化配置。
type StoreConfig struct {
	Driver      StoreDriver
	SQLitePath  string
	DatabaseURL string
}

func loadStoreConfig() (StoreConfig, error) {
	driver := StoreDriver(strings.ToLower(getEnvOrDefault("STORE_DRIVER", string(StoreSQLite))))
	cfg := StoreConfig{
		Driver:      driver,
		SQLitePath:  getEnvOrDefault("SQLITE_PATH", "data/observations.db"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}

	switch driver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return StoreConfig{}, fmt.Errorf("DATABASE_URL required for %s store", driver)
		}
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value: %q", driver)
	}
	return cfg, nil
}

// MediaConfig 描述导出时媒体链接的生成方式。
type MediaConfig struct {
	Driver     string
	BaseURL    string
	LinkExpiry time.Duration
	S3         S3Config
}

// S3Config 描述 S3 / MinIO 镜像桶。
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

func loadMediaConfig() (MediaConfig, error) {
	expiry, err := parseDurationEnv("MEDIA_LINK_EXPIRY", 24*time.Hour)
	if err != nil {
		return MediaConfig{}, err
	}

	pathStyle, err := parseBoolEnv("MEDIA_S3_PATH_STYLE", false)
	if err != nil {
		return MediaConfig{}, err
	}

	cfg := MediaConfig{
		Driver:     strings.ToLower(getEnvOrDefault("MEDIA_DRIVER", "telegram")),
		BaseURL:    strings.TrimSpace(os.Getenv("MEDIA_BASE_URL")),
		LinkExpiry: expiry,
		S3: S3Config{
			Bucket:          strings.TrimSpace(os.Getenv("MEDIA_S3_BUCKET")),
			Region:          getEnvOrDefault("MEDIA_S3_REGION", "us-east-1"),
			Prefix:          strings.TrimSpace(os.Getenv("MEDIA_S3_PREFIX")),
			Endpoint:        strings.TrimSpace(os.Getenv("MEDIA_S3_ENDPOINT")),
			AccessKeyID:     strings.TrimSpace(os.Getenv("MEDIA_S3_ACCESS_KEY_ID")),
			SecretAccessKey: strings.TrimSpace(os.Getenv("MEDIA_S3_SECRET_ACCESS_KEY")),
			SessionToken:    strings.TrimSpace(os.Getenv("MEDIA_S3_SESSION_TOKEN")),
			PathStyle:       pathStyle,
		},
	}

	switch cfg.Driver {
	case "telegram":
	case "s3":
		if cfg.S3.Bucket == "" {
			return MediaConfig{}, fmt.Errorf("MEDIA_S3_BUCKET required for s3 media driver")
		}
	case "static":
		if cfg.BaseURL == "" {
			return MediaConfig{}, fmt.Errorf("MEDIA_BASE_URL required for static media driver")
		}
	default:
		return MediaConfig{}, fmt.Errorf("invalid MEDIA_DRIVER value: %q", cfg.Driver)
	}
	return cfg, nil
}

// ExportConfig 描述导出行为。
type ExportConfig struct {
	ResolveTimeout time.Duration
	Concurrency    int
}

func loadExportConfig() (ExportConfig, error) {
	timeout, err := parseDurationEnv("EXPORT_RESOLVE_TIMEOUT", 10*time.Second)
	if err != nil {
		return ExportConfig{}, err
	}

	concurrency := 8
	if override, err := parseOptionalIntEnv("EXPORT_CONCURRENCY"); err != nil {
		return ExportConfig{}, err
	} else if override != nil && *override > 0 {
		concurrency = *override
	}

	return ExportConfig{ResolveTimeout: timeout, Concurrency: concurrency}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseDurationEnv 接受 time.ParseDuration 格式，纯数字按秒处理。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("invalid %s value %q: negative duration", key, raw)
		}
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: negative duration", key, raw)
	}
	return val, nil
}

func parseListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLocationEnv(key string) (*time.Location, error) {
	name := strings.TrimSpace(os.Getenv(key))
	if name == "" {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, name, err)
	}
	return loc, nil
}
