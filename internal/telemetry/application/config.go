package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	telemetry "foundry-telemetry/internal/telemetry/domain"
)

const defaultConfigPath = "configs/stations.yaml"

// ScheduleConfig defines the working calendar shared by every station.
type ScheduleConfig struct {
	StartDate string   `yaml:"start_date"`
	EndDate   string   `yaml:"end_date"`
	Weekdays  []string `yaml:"weekdays"`
	Hours     []int    `yaml:"hours"`
	Shift     struct {
		Start int `yaml:"start"`
		End   int `yaml:"end"`
	} `yaml:"shift"`
	Timezone string `yaml:"timezone"`
}

// LiveConfig paces the replay of today's rows.
type LiveConfig struct {
	Pace time.Duration `yaml:"pace"`
}

// RealtimeConfig drives the per-station real-time loop.
type RealtimeConfig struct {
	Enabled              bool          `yaml:"enabled"`
	SampleInterval       time.Duration `yaml:"sample_interval"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	ErrorBackoff         time.Duration `yaml:"error_backoff"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors"`
}

// RetryConfig bounds sink write retries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Initial     time.Duration `yaml:"initial"`
	MaxInterval time.Duration `yaml:"max_interval"`
}

// FeedConfig drives the dashboard push loop.
type FeedConfig struct {
	PushInterval time.Duration `yaml:"push_interval"`
}

// Config defines simulator configuration.
type Config struct {
	Schedule ScheduleConfig            `yaml:"schedule"`
	Live     LiveConfig                `yaml:"live"`
	Realtime RealtimeConfig            `yaml:"realtime"`
	Retry    RetryConfig               `yaml:"retry"`
	Feed     FeedConfig                `yaml:"feed"`
	Seed     uint64                    `yaml:"seed"`
	Stations []telemetry.StationConfig `yaml:"stations"`

	location *time.Location
}

// DefaultConfig returns the defaults applied before the YAML file is read.
func DefaultConfig() Config {
	cfg := Config{
		Live:     LiveConfig{Pace: 30 * time.Second},
		Realtime: RealtimeConfig{Enabled: true, SampleInterval: time.Minute, PollInterval: 30 * time.Second, ErrorBackoff: 10 * time.Second},
		Retry:    RetryConfig{MaxAttempts: 5, Initial: 500 * time.Millisecond, MaxInterval: 30 * time.Second},
		Feed:     FeedConfig{PushInterval: 5 * time.Second},
	}
	cfg.Schedule.Weekdays = []string{"mon", "tue", "wed", "thu", "fri", "sat"}
	cfg.Schedule.Shift.Start = 9
	cfg.Schedule.Shift.End = 18
	cfg.Schedule.Timezone = "Local"
	return cfg
}

// LoadConfig loads config from yaml and env.
func LoadConfig() (Config, error) {
	path := getenvDefault("SIMULATOR_CONFIG", defaultConfigPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("simulator config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults, applies env overrides and validates.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", telemetry.ErrConfig, err)
	}

	if pace := getenvDuration("LIVE_PACE", 0); pace > 0 {
		cfg.Live.Pace = pace
	}
	if seed := getenvUint("SEED", 0); seed != 0 {
		cfg.Seed = seed
	}
	if end := os.Getenv("END_DATE"); end != "" {
		cfg.Schedule.EndDate = end
	}
	if os.Getenv("REALTIME_DISABLED") == "true" {
		cfg.Realtime.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every station and the schedule before any generation starts.
func (c *Config) Validate() error {
	if len(c.Stations) == 0 {
		return fmt.Errorf("%w: no stations configured", telemetry.ErrConfig)
	}
	names := make(map[string]bool, len(c.Stations))
	tables := make(map[string]bool, len(c.Stations))
	for _, st := range c.Stations {
		if err := st.Validate(); err != nil {
			return err
		}
		if names[st.Name] {
			return fmt.Errorf("%w: duplicate station %s", telemetry.ErrConfig, st.Name)
		}
		if tables[st.Table] {
			return fmt.Errorf("%w: table %s owned by more than one station", telemetry.ErrConfig, st.Table)
		}
		names[st.Name] = true
		tables[st.Table] = true
	}
	if c.Live.Pace < 0 || c.Realtime.SampleInterval <= 0 || c.Realtime.PollInterval <= 0 || c.Realtime.ErrorBackoff <= 0 {
		return fmt.Errorf("%w: intervals must be positive", telemetry.ErrConfig)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("%w: retry.max_attempts must be > 0", telemetry.ErrConfig)
	}
	_, err := c.Window()
	return err
}

// Location returns the schedule time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.location != nil {
		return c.location, nil
	}
	name := c.Schedule.Timezone
	if name == "" || name == "Local" {
		c.location = time.Local
		return c.location, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %s: %v", telemetry.ErrConfig, name, err)
	}
	c.location = loc
	return loc, nil
}

// Window builds the schedule window. An empty end_date leaves it open-ended.
func (c *Config) Window() (telemetry.ScheduleWindow, error) {
	loc, err := c.Location()
	if err != nil {
		return telemetry.ScheduleWindow{}, err
	}
	start, err := parseDate(c.Schedule.StartDate, loc)
	if err != nil {
		return telemetry.ScheduleWindow{}, fmt.Errorf("%w: start_date: %v", telemetry.ErrConfig, err)
	}
	var end time.Time
	if c.Schedule.EndDate != "" {
		end, err = parseDate(c.Schedule.EndDate, loc)
		if err != nil {
			return telemetry.ScheduleWindow{}, fmt.Errorf("%w: end_date: %v", telemetry.ErrConfig, err)
		}
	}
	weekdays := make([]time.Weekday, 0, len(c.Schedule.Weekdays))
	for _, name := range c.Schedule.Weekdays {
		wd, err := parseWeekday(name)
		if err != nil {
			return telemetry.ScheduleWindow{}, err
		}
		weekdays = append(weekdays, wd)
	}
	hours := c.Schedule.Hours
	if len(hours) == 0 {
		for h := c.Schedule.Shift.Start; h < c.Schedule.Shift.End; h++ {
			hours = append(hours, h)
		}
	}
	return telemetry.NewScheduleWindow(start, end, weekdays, hours, loc)
}

// StationByName returns the configured station.
func (c *Config) StationByName(name string) (telemetry.StationConfig, bool) {
	for _, st := range c.Stations {
		if st.Name == name {
			return st, true
		}
	}
	return telemetry.StationConfig{}, false
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	return time.ParseInLocation(time.DateOnly, value, loc)
}

func parseWeekday(value string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "sun", "sunday":
		return time.Sunday, nil
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("%w: unknown weekday %q", telemetry.ErrConfig, value)
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvUint(key string, fallback uint64) uint64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
