package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// const dsn = "host=localhost user=postgres password=password dbname=hallpass port=5432 sslmode=disable TimeZone=Asia/Seoul"

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

// LOCAL_TIME_FORMAT is the zone-less form browsers send from datetime-local inputs.
const LOCAL_TIME_FORMAT = "2006-01-02T15:04"

type Config struct {
	Env             string
	Port            string
	StoreDriver     string
	JWTSecret       []byte
	PassTokenSecret []byte
	PassSecretID    string
	AppHost         string
	SeedUsersFile   string

	SchoolLocation *time.Location
	// SchoolDayEnd is the wall-clock offset from midnight at which early-leave passes lapse.
	SchoolDayEnd time.Duration
	OutingGrace  time.Duration

	DatabaseDSN       string
	DBMaxIdleConns    int
	DBMaxOpenConns    int
	DBConnMaxLifetime time.Duration

	StoreTimeout        time.Duration
	StoreRetries        int
	ExpirySweepInterval time.Duration
	ExpirySweepBatch    int

	RedisHost           string
	QRCacheTTL          time.Duration
	VerifyMaxFailures   int64
	VerifyFailureWindow time.Duration

	KafkaBroker     string
	PassEventsTopic string
	EmailsTopic     string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
}

func Load() (*Config, error) {
	loc, err := time.LoadLocation(getenv("SCHOOL_TIMEZONE", "Asia/Seoul"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHOOL_TIMEZONE: %w", err)
	}
	dayEnd, err := parseClock(getenv("SCHOOL_DAY_END", "17:00"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHOOL_DAY_END: %w", err)
	}
	var tokenSecret []byte
	if v := os.Getenv("PASS_TOKEN_SECRET"); v != "" {
		tokenSecret, err = hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PASS_TOKEN_SECRET: %w", err)
		}
	}
	cfg := &Config{
		Env:                 getenv("API_ENV", "local"),
		Port:                getenv("API_PORT", "9090"),
		StoreDriver:         getenv("STORE_DRIVER", "postgres"),
		JWTSecret:           []byte(os.Getenv("JWT_SECRET")),
		PassTokenSecret:     tokenSecret,
		PassSecretID:        os.Getenv("PASS_SECRET_ID"),
		AppHost:             os.Getenv("APP_HOST"),
		SeedUsersFile:       os.Getenv("SEED_USERS_FILE"),
		SchoolLocation:      loc,
		SchoolDayEnd:        dayEnd,
		OutingGrace:         getenvDuration("OUTING_GRACE", 30*time.Minute),
		DatabaseDSN:         GetDSN(),
		DBMaxIdleConns:      getenvInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns:      getenvInt("DB_MAX_OPEN_CONNS", 50),
		DBConnMaxLifetime:   getenvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		StoreTimeout:        getenvDuration("STORE_TIMEOUT", 5*time.Second),
		StoreRetries:        getenvInt("STORE_RETRIES", 3),
		ExpirySweepInterval: getenvDuration("EXPIRY_SWEEP_INTERVAL", time.Minute),
		ExpirySweepBatch:    getenvInt("EXPIRY_SWEEP_BATCH", 500),
		RedisHost:           os.Getenv("REDIS_HOST"),
		QRCacheTTL:          getenvDuration("QR_CACHE_TTL", 2*time.Hour),
		VerifyMaxFailures:   int64(getenvInt("VERIFY_MAX_FAILURES", 10)),
		VerifyFailureWindow: getenvDuration("VERIFY_FAILURE_WINDOW", time.Minute),
		KafkaBroker:         os.Getenv("KAFKA_BROKER"),
		PassEventsTopic:     getenv("PASS_EVENTS_TOPIC", "pass-events"),
		EmailsTopic:         getenv("EMAIL_QUEUE", "emails"),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPPort:            getenvInt("SMTP_PORT", 587),
		SMTPUsername:        os.Getenv("SMTP_USERNAME"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		MailFrom:            getenv("MAIL_FROM", "no-reply@hallpass.local"),
	}
	if cfg.StoreDriver != "postgres" && cfg.StoreDriver != "memory" {
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.ExpirySweepBatch < 1 {
		return nil, fmt.Errorf("EXPIRY_SWEEP_BATCH must be at least 1, got %d", cfg.ExpirySweepBatch)
	}
	if cfg.DBMaxOpenConns < 1 || cfg.DBMaxIdleConns < 0 || cfg.DBMaxIdleConns > cfg.DBMaxOpenConns {
		return nil, fmt.Errorf("invalid database pool: %d idle, %d open", cfg.DBMaxIdleConns, cfg.DBMaxOpenConns)
	}
	return cfg, nil
}

func (c *Config) IsProd() bool {
	return c.Env == "production"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid value for %s, using %d: %s\n", key, fallback, err.Error())
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid duration for %s, using %s: %s\n", key, fallback, err.Error())
		return fallback
	}
	return d
}

// parseClock reads "HH:MM" into an offset from midnight.
func parseClock(v string) (time.Duration, error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid minute in %q", v)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
