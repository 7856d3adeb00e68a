package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Refund   RefundConfig   `yaml:"refund"`
	Auth     AuthConfig     `yaml:"auth"`
	Email    EmailConfig    `yaml:"email"`
	Log      LogConfig      `yaml:"log"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type HTTPConfig struct {
	Address        string   `yaml:"address"`
	SwaggerDir     string   `yaml:"swagger_dir"`
	CORSOrigins    []string `yaml:"cors_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `yaml:"driver"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	if d.MaxConns > 0 {
		dsn += fmt.Sprintf(" pool_max_conns=%d", d.MaxConns)
	}
	return dsn
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	RefundEventsTopic  string   `yaml:"refund_events_topic"`
	GroupID            string   `yaml:"group_id"`
}

type BookingConfig struct {
	FlightsCacheTTL   int `yaml:"flights_cache_ttl_seconds"`
	SeatClaimTTL      int `yaml:"seat_claim_ttl_seconds"`
	ReferenceAttempts int `yaml:"reference_attempts"`
}

type GatewayConfig struct {
	Endpoint       string `yaml:"endpoint"`
	QueryEndpoint  string `yaml:"query_endpoint"`
	PartnerCode    string `yaml:"partner_code"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	RedirectURL    string `yaml:"redirect_url"`
	IPNURL         string `yaml:"ipn_url"`
	SuccessCode    int    `yaml:"success_code"`
	Currency       string `yaml:"currency"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type RefundConfig struct {
	// DelayQualifies makes an airline delay on any leg enough for a refund
	// request, in addition to cancellations.
	DelayQualifies bool `yaml:"delay_qualifies"`
}

type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
	Issuer          string `yaml:"issuer"`
}

// EmailConfig points the worker at an SMTP relay. An empty host makes the
// worker log messages instead of sending them.
type EmailConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WorkerConfig struct {
	ReconcileSchedule     string `yaml:"reconcile_schedule"`
	ReconcileAfterMinutes int    `yaml:"reconcile_after_minutes"`
	ReconcileBatch        int    `yaml:"reconcile_batch"`
}

func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// Default returns the configuration used for any key the file leaves out.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:        ":8080",
			RateLimitRPS:   100,
			RateLimitBurst: 200,
		},
		GRPC:    GRPCConfig{Address: ":9090"},
		Storage: StorageConfig{Driver: "postgres"},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "airticket",
			Name:    "airticket",
			SSLMode: "disable",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Kafka: KafkaConfig{
			Brokers:            []string{"localhost:9092"},
			NotificationsTopic: "booking-notifications",
			BookingEventsTopic: "booking-events",
			RefundEventsTopic:  "refund-events",
			GroupID:            "airticket-worker",
		},
		Booking: BookingConfig{
			FlightsCacheTTL:   60,
			SeatClaimTTL:      10,
			ReferenceAttempts: 5,
		},
		Gateway: GatewayConfig{
			SuccessCode:    0,
			Currency:       "VND",
			TimeoutSeconds: 30,
		},
		Auth: AuthConfig{
			TokenTTLMinutes: 60,
			Issuer:          "airticket",
		},
		Email: EmailConfig{
			SMTPPort: 587,
			From:     "no-reply@airticket.local",
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Worker: WorkerConfig{
			ReconcileSchedule:     "@every 5m",
			ReconcileAfterMinutes: 15,
			ReconcileBatch:        50,
		},
	}
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.Database.Password, "DATABASE_PASSWORD")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.Gateway.SecretKey, "GATEWAY_SECRET_KEY")
	override(&cfg.Gateway.AccessKey, "GATEWAY_ACCESS_KEY")
	override(&cfg.Auth.JWTSecret, "JWT_SECRET")
	override(&cfg.Email.Password, "SMTP_PASSWORD")
}
