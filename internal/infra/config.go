package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервиса.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Bot      BotConfig      `mapstructure:"bot"`
	EPM      EPMConfig      `mapstructure:"epm"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig описывает подключение к Redis (справочник бесед).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig описывает подключение к PostgreSQL (audit trail).
// URL пустой — аудит пишется только в лог, сервис остаётся работоспособным.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// BotConfig — учётные данные приложения Teams-бота и endpoint логина
// Bot Framework для проактивной отправки.
type BotConfig struct {
	AppID       string        `mapstructure:"app_id"`
	AppPassword string        `mapstructure:"app_password"`
	TokenURL    string        `mapstructure:"token_url"`
	TokenScope  string        `mapstructure:"token_scope"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// EPMConfig — downstream-система авторизации (BeyondTrust EPM):
// базовый URL и client-credentials для management API.
type EPMConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// WebhookConfig — общий ключ для входящего webhook-а от ITSM/PRA.
type WebhookConfig struct {
	SharedKey string `mapstructure:"shared_key"`
}

// AuditConfig настраивает буферизацию audit trail.
type AuditConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. Переменные окружения перекрывают файл:
	// EPM_CLIENT_SECRET перекроет epm.client_secret
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3978)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("bot.token_url", "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token")
	v.SetDefault("bot.token_scope", "https://api.botframework.com/.default")
	v.SetDefault("bot.send_timeout", 15*time.Second)
	v.SetDefault("epm.timeout", 15*time.Second)
	v.SetDefault("audit.buffer_size", 1000)
	v.SetDefault("audit.flush_interval", 1*time.Second)
	v.SetDefault("audit.batch_size", 100)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}
