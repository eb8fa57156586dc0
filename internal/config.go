package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nbgirder/internal/contents"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var httpURL = regexp.MustCompile(`^https?://[^/\s]+`)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Girder   GirderConfig      `yaml:"girder"`
	Contents ContentsConfig    `yaml:"contents"`
	Auth     AuthConfig        `yaml:"auth"`
	Events   EventsConfig      `yaml:"events"`
	Import   ImportConfig      `yaml:"import"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Girder.Validate(); err != nil {
		return fmt.Errorf("girder: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `yaml:"cors_origins"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// GirderConfig holds the connection to the Girder server and where the
// contents root lives in it.
type GirderConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
	Token  string `yaml:"token"`
	// Root is a Girder resource path; "{login}" is replaced with the
	// authenticated user's login.
	Root              string        `yaml:"root"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Validate validates the Girder configuration.
func (c *GirderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIURL, validation.Required, validation.Match(httpURL).Error("must be an http(s) URL")),
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// ContentsConfig tunes the contents adapter.
type ContentsConfig struct {
	AllowNonEmptyDelete bool `yaml:"allow_non_empty_delete"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// EventsConfig tunes the change event stream.
type EventsConfig struct {
	// TreeThrottle is the minimum interval between tree.changed events.
	TreeThrottle time.Duration `yaml:"tree_throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TreeThrottle, validation.Min(time.Duration(0))),
	)
}

// ImportConfig describes a local directory mirrored into the contents tree.
// An empty Dir disables importing.
type ImportConfig struct {
	Dir       string `yaml:"dir"`
	Target    string `yaml:"target"`
	StatePath string `yaml:"state_path"`
	// Watch keeps importing changes after the initial sync.
	Watch bool `yaml:"watch"`
}

// Enabled reports whether a directory is configured.
func (c *ImportConfig) Enabled() bool {
	return c.Dir != ""
}

// Validate validates the import configuration.
func (c *ImportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.StatePath, validation.When(c.Dir != "", validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8888,
			},
		},
		Girder: GirderConfig{
			APIURL:  "http://localhost:8080/api/v1",
			Root:    contents.DefaultRoot,
			Timeout: 30 * time.Second,
		},
		Contents: ContentsConfig{
			AllowNonEmptyDelete: true,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Events: EventsConfig{
			TreeThrottle: 2 * time.Second,
		},
		Import: ImportConfig{
			StatePath: "./nbgirder-import.db",
		},
	}
}
