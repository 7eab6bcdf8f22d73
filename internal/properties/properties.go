package properties

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func RootPath() string {
	if root := os.Getenv("ROOT_PATH"); root != "" {
		return root
	}
	return "."
}

// Config holds every externally supplied setting. It is read once at startup
// and handed to collaborators explicitly.
type Config struct {
	RootPath string
	Port     string
	LogLevel string

	DatabaseURL string

	StoragePublicBaseURL string

	CopernicusClientID     string
	CopernicusClientSecret string
	CopernicusTokenURL     string
	SentinelProcessURL     string
	SentinelRetries        int

	WeatherAPIURL string

	DiscordErrorNotificationURL   string
	DiscordSuccessNotificationURL string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	AlertSMSTo       string

	JWTSecret   string
	CORSOrigins []string
}

func Load() Config {
	cfg := Config{
		RootPath: RootPath(),
		Port:     getenv("PORT", "4000"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		StoragePublicBaseURL: getenv("STORAGE_PUBLIC_BASE_URL", "http://localhost:4000/objects"),

		CopernicusClientID:     os.Getenv("COPERNICUS_CLIENT_ID"),
		CopernicusClientSecret: os.Getenv("COPERNICUS_CLIENT_SECRET"),
		CopernicusTokenURL:     getenv("COPERNICUS_TOKEN_URL", "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"),
		SentinelProcessURL:     getenv("SENTINEL_PROCESS_URL", "https://sh.dataspace.copernicus.eu/api/v1/process"),
		SentinelRetries:        getenvInt("SENTINEL_RETRIES", 3),

		WeatherAPIURL: getenv("WEATHER_API_URL", "https://api.open-meteo.com/v1/forecast"),

		DiscordErrorNotificationURL:   os.Getenv("DISCORD_ERROR_NOTIFICATION_URL"),
		DiscordSuccessNotificationURL: os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		AlertSMSTo:       os.Getenv("ALERT_SMS_TO"),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		CORSOrigins: getenvList("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000"),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			getenv("POSTGRES_USER", "postgres"),
			getenv("POSTGRES_PASSWORD", "postgres"),
			getenv("POSTGRES_HOST", "localhost"),
			getenv("POSTGRES_PORT", "5432"),
			getenv("POSTGRES_DB", "croplens"),
		)
	}

	return cfg
}

// DataPath joins parts under ROOT_PATH/data.
func (c Config) DataPath(parts ...string) string {
	return filepath.Join(append([]string{c.RootPath, "data"}, parts...)...)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getenvList(k, def string) []string {
	var out []string
	for _, v := range strings.Split(getenv(k, def), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
