package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env      string
	Port     string
	DBDSN    string
	MediaDir string
	Log      LogConfig
	HTTP     HTTPConfig
	Session  SessionConfig
	Redis    RedisConfig
	Blob     BlobConfig
	Mail     MailConfig
	AuthKey  AuthKeyConfig
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	File   string // optional, written in addition to stdout
}

type HTTPConfig struct {
	BodyLimit       int
	RateMax         int
	RateWindow      time.Duration
	LoginRateMax    int
	LoginRateWindow time.Duration
	CSRF            bool
	CookieSecure    bool
	SSEHeartbeat    time.Duration
	SSEMaxClients   int
}

type SessionConfig struct {
	Backend     string // memory, sql, redis
	IdleTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type BlobConfig struct {
	Backend string // local, s3
	S3      S3Config
}

type S3Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UsePathStyle  bool
	PublicBaseURL string
}

type MailConfig struct {
	Backend  string // log, smtp
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type AuthKeyConfig struct {
	TTL time.Duration
}

// Load reads an optional TOML file and GOODS_* environment variables.
// Environment wins over the file, the file wins over defaults. An empty
// file path looks for ./config.toml.
func Load(file string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("GOODS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		Env:      v.GetString("app.env"),
		Port:     v.GetString("http.port"),
		DBDSN:    v.GetString("db.dsn"),
		MediaDir: v.GetString("media.dir"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			File:   v.GetString("log.file"),
		},
		HTTP: HTTPConfig{
			BodyLimit:       v.GetInt("http.body_limit"),
			RateMax:         v.GetInt("http.rate_max"),
			RateWindow:      v.GetDuration("http.rate_window"),
			LoginRateMax:    v.GetInt("http.login_rate_max"),
			LoginRateWindow: v.GetDuration("http.login_rate_window"),
			CSRF:            v.GetBool("http.csrf"),
			CookieSecure:    v.GetBool("http.cookie_secure"),
			SSEHeartbeat:    v.GetDuration("http.sse_heartbeat"),
			SSEMaxClients:   v.GetInt("http.sse_max_clients"),
		},
		Session: SessionConfig{
			Backend:     v.GetString("session.backend"),
			IdleTimeout: v.GetDuration("session.idle_timeout"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Blob: BlobConfig{
			Backend: v.GetString("blob.backend"),
			S3: S3Config{
				Endpoint:      v.GetString("blob.s3.endpoint"),
				Region:        v.GetString("blob.s3.region"),
				Bucket:        v.GetString("blob.s3.bucket"),
				AccessKey:     v.GetString("blob.s3.access_key"),
				SecretKey:     v.GetString("blob.s3.secret_key"),
				UsePathStyle:  v.GetBool("blob.s3.use_path_style"),
				PublicBaseURL: v.GetString("blob.s3.public_base_url"),
			},
		},
		Mail: MailConfig{
			Backend:  v.GetString("mail.backend"),
			Host:     v.GetString("mail.host"),
			Port:     v.GetInt("mail.port"),
			Username: v.GetString("mail.username"),
			Password: v.GetString("mail.password"),
			From:     v.GetString("mail.from"),
		},
		AuthKey: AuthKeyConfig{
			TTL: v.GetDuration("auth_key.ttl"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("http.port", "8080")
	v.SetDefault("db.dsn", "goodscommunity.db") // sqlite file in project root
	v.SetDefault("media.dir", "./web/media")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "./goodscommunity.log")
	v.SetDefault("http.body_limit", 6<<20) // profile images are capped at 5 MiB
	v.SetDefault("http.rate_max", 120)
	v.SetDefault("http.rate_window", time.Minute)
	v.SetDefault("http.login_rate_max", 5)
	v.SetDefault("http.login_rate_window", 10*time.Minute)
	v.SetDefault("http.csrf", false)
	v.SetDefault("http.cookie_secure", false)
	v.SetDefault("http.sse_heartbeat", 30*time.Second)
	v.SetDefault("http.sse_max_clients", 1000)
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.idle_timeout", 30*time.Minute)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("blob.backend", "local")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.s3.use_path_style", true)
	v.SetDefault("mail.backend", "log")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "no-reply@goodscommunity.test")
	v.SetDefault("auth_key.ttl", 30*time.Minute)
}

func (c Config) Validate() error {
	switch c.Session.Backend {
	case "memory", "sql", "redis":
	default:
		return fmt.Errorf("config: unknown session backend %q", c.Session.Backend)
	}
	switch c.Blob.Backend {
	case "local":
	case "s3":
		if c.Blob.S3.Bucket == "" || c.Blob.S3.AccessKey == "" || c.Blob.S3.SecretKey == "" {
			return errors.New("config: s3 blob backend needs bucket, access key and secret key")
		}
	default:
		return fmt.Errorf("config: unknown blob backend %q", c.Blob.Backend)
	}
	switch c.Mail.Backend {
	case "log":
	case "smtp":
		if c.Mail.Host == "" {
			return errors.New("config: smtp mail backend needs a host")
		}
	default:
		return fmt.Errorf("config: unknown mail backend %q", c.Mail.Backend)
	}
	if c.HTTP.BodyLimit <= 0 {
		return errors.New("config: http body limit must be positive")
	}
	return nil
}
