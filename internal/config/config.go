package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	ListenAddr       string
	Role             string
	HostURL          string // direct transport: host websocket URL to join
	CloudURL         string // relay-store base URL, empty disables cloud sync
	CloudAPIKey      string
	EventName        string
	EventSecret      string
	CountdownSeconds int
	AutoSeconds      int
	TransitionSecs   int
	TeleopSeconds    int
	EndgameAtSeconds int
}

func Default() Config {
	return Config{
		ListenAddr:       ":8080",
		Role:             "HOST",
		CountdownSeconds: 3,
		AutoSeconds:      30,
		TransitionSecs:   8,
		TeleopSeconds:    120,
		EndgameAtSeconds: 100,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("LISTEN_ADDR"); raw != "" {
		cfg.ListenAddr = raw
	}
	if raw := os.Getenv("SCORER_ROLE"); raw != "" {
		cfg.Role = raw
	}
	if raw := os.Getenv("HOST_URL"); raw != "" {
		cfg.HostURL = raw
	}
	if raw := os.Getenv("CLOUD_URL"); raw != "" {
		cfg.CloudURL = raw
	}
	if raw := os.Getenv("CLOUD_API_KEY"); raw != "" {
		cfg.CloudAPIKey = raw
	}
	if raw := os.Getenv("EVENT_NAME"); raw != "" {
		cfg.EventName = raw
	}
	if raw := os.Getenv("EVENT_SECRET"); raw != "" {
		cfg.EventSecret = raw
	}
	if raw := os.Getenv("COUNTDOWN_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.CountdownSeconds = value
		}
	}
	if raw := os.Getenv("AUTO_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.AutoSeconds = value
		}
	}
	if raw := os.Getenv("TRANSITION_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.TransitionSecs = value
		}
	}
	if raw := os.Getenv("TELEOP_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.TeleopSeconds = value
		}
	}
	if raw := os.Getenv("ENDGAME_AT_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.EndgameAtSeconds = value
		}
	}
	return cfg
}
