package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	UseMemoryStore bool

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	LockTTL       time.Duration

	StaffJWTSecret     string
	CORSAllowedOrigins []string

	DefaultClinicID string
	DefaultDoctorID string

	// Session working-window defaults applied when a day session is created.
	SessionStartLocal       string
	SessionEndLocal         string
	SlotMinutes             int
	MicroBufferMinutes      int
	BreakEveryN             int
	BreakMinutes            int
	EmergencyReserveMinutes int

	// SendGrid staff alert configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	StaffAlertEmails  []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		LockTTL:       getEnvAsDuration("SESSION_LOCK_TTL", 15*time.Second),

		StaffJWTSecret:     getEnv("STAFF_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", "*"),

		DefaultClinicID: getEnv("DEFAULT_CLINIC_ID", "default"),
		DefaultDoctorID: getEnv("DEFAULT_DOCTOR_ID", "default"),

		SessionStartLocal:       getEnv("SESSION_START_LOCAL", "17:00"),
		SessionEndLocal:         getEnv("SESSION_END_LOCAL", "20:00"),
		SlotMinutes:             getEnvAsInt("SLOT_MINUTES", 9),
		MicroBufferMinutes:      getEnvAsInt("MICRO_BUFFER_MINUTES", 2),
		BreakEveryN:             getEnvAsInt("BREAK_EVERY_N", 6),
		BreakMinutes:            getEnvAsInt("BREAK_MINUTES", 10),
		EmergencyReserveMinutes: getEnvAsInt("EMERGENCY_RESERVE_MINUTES", 20),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "OPD Queue"),
		StaffAlertEmails:  getEnvAsList("STAFF_ALERT_EMAILS", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
