package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"wifi-provisiond/internal/console"
	"wifi-provisiond/internal/netctl"
	"wifi-provisiond/internal/provision"
	"wifi-provisiond/internal/store"
	"wifi-provisiond/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Interface  string `yaml:"interface"`
	MarkerPath string `yaml:"marker_path"`
	Boot       struct {
		Timeout          string `yaml:"timeout"`
		InterfaceWait    string `yaml:"interface_wait"`
		FallbackDisabled bool   `yaml:"fallback_disabled"`
	} `yaml:"boot"`
	Hotspot struct {
		SSID      string `yaml:"ssid"`
		Password  string `yaml:"password"`
		IPAddress string `yaml:"ip_address"`
		DHCPRange string `yaml:"dhcp_range"`
		Channel   int    `yaml:"channel"`
	} `yaml:"hotspot"`
	Connect struct {
		Attempts       int      `yaml:"attempts"`
		AttemptTimeout string   `yaml:"attempt_timeout"`
		PollInterval   string   `yaml:"poll_interval"`
		Backoff        []string `yaml:"backoff"`
	} `yaml:"connect"`
	Gateway struct {
		CommandTimeout string `yaml:"command_timeout"`
	} `yaml:"gateway"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		ClientID    string `yaml:"client_id"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Hooks struct {
		Dir           string   `yaml:"dir"`
		ExecAllowlist []string `yaml:"exec_allowlist"`
		ExecTimeout   string   `yaml:"exec_timeout"`
	} `yaml:"hooks"`
	Console struct {
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"console"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) validate() error {
	// An empty password means an open setup hotspot; when set it must be a
	// valid WPA passphrase.
	if pw := c.Hotspot.Password; pw != "" && (len(pw) < 8 || len(pw) > 63) {
		return fmt.Errorf("hotspot.password must be 8-63 characters when set")
	}
	// Channel 0 leaves the choice to NetworkManager.
	if c.Hotspot.Channel < 0 || c.Hotspot.Channel > 13 {
		return fmt.Errorf("hotspot.channel must be 0-13, got %d", c.Hotspot.Channel)
	}
	if c.Connect.Attempts < 0 {
		return fmt.Errorf("connect.attempts must be positive")
	}
	for _, field := range []struct{ name, val string }{
		{"boot.timeout", c.Boot.Timeout},
		{"boot.interface_wait", c.Boot.InterfaceWait},
		{"connect.attempt_timeout", c.Connect.AttemptTimeout},
		{"connect.poll_interval", c.Connect.PollInterval},
		{"gateway.command_timeout", c.Gateway.CommandTimeout},
		{"hooks.exec_timeout", c.Hooks.ExecTimeout},
	} {
		if field.val == "" {
			continue
		}
		if _, err := time.ParseDuration(field.val); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	for i, b := range c.Connect.Backoff {
		if _, err := time.ParseDuration(b); err != nil {
			return fmt.Errorf("connect.backoff[%d]: %w", i, err)
		}
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Optional .env for secrets kept out of the YAML file.
	_ = godotenv.Load()

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("wifi-provisiond starting", "version", version)

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	var gwOpts []netctl.NMCLIOption
	if cfg.Gateway.CommandTimeout != "" {
		gwOpts = append(gwOpts, netctl.WithCommandTimeout(mustDuration(cfg.Gateway.CommandTimeout)))
	}
	gw := netctl.NewNMCLI(logger, gwOpts...)

	events := provision.NewEventBus(logger)
	mgr := provision.New(gw, provisionConfig(cfg), events, db, logger)

	// Hooks subscribe before boot so they observe the boot-time transition
	// (no-op when built with no_hooks).
	hookEngine := initHooks(mgr, cfg, logger)

	var webOpts []web.ServerOption
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, web.WithVersion(version))

	webServer := web.NewServer(mgr, db, logger, webOpts...)

	httpServer := &http.Server{
		Addr:        cfg.Web.Listen,
		Handler:     webServer,
		ReadTimeout: 15 * time.Second,
		// A connect request blocks for the whole retry loop, up to three
		// 40s attempts plus backoff.
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// The API comes up before boot mode selection so status stays reachable
	// while the radio settles.
	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := mgr.Boot(bootCtx); err != nil {
		// The device may have no working radio path, but the web and serial
		// surfaces are already up for diagnosis.
		logger.Error("boot mode selection", "err", err)
	}
	bootCancel()

	// MQTT connects after boot, once the device has whatever uplink it is
	// going to get (no-op when built with no_mqtt).
	mqttPub := initMQTT(mgr, cfg, logger)

	cons := console.New(mgr, db, console.Config{
		Port: cfg.Console.Port,
		Baud: cfg.Console.Baud,
	}, version, logger)
	cons.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	cons.Stop()
	hookEngine.Stop()
	mqttPub.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()

	logger.Info("goodbye")
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "0.0.0.0:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "/var/lib/wifi-provisiond/history.db"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "wifi-provisiond"
	}
	if cfg.Console.Baud == 0 {
		cfg.Console.Baud = 115200
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Secrets can come from the environment instead of the YAML file.
	if v := os.Getenv("WIFI_PROVISIOND_API_KEY"); v != "" {
		cfg.Web.APIKey = v
	}
	if v := os.Getenv("WIFI_PROVISIOND_HOTSPOT_PASSWORD"); v != "" {
		cfg.Hotspot.Password = v
	}
	if v := os.Getenv("WIFI_PROVISIOND_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	return &cfg, nil
}

// provisionConfig merges the YAML config onto the stock policy.
func provisionConfig(cfg *Config) provision.Config {
	pc := provision.DefaultConfig()
	pc.Interface = cfg.Interface
	if cfg.MarkerPath != "" {
		pc.MarkerPath = cfg.MarkerPath
	}
	if cfg.Boot.Timeout != "" {
		pc.BootTimeout = mustDuration(cfg.Boot.Timeout)
	}
	if cfg.Boot.InterfaceWait != "" {
		pc.InterfaceWait = mustDuration(cfg.Boot.InterfaceWait)
	}
	pc.FallbackDisabled = cfg.Boot.FallbackDisabled
	if cfg.Connect.Attempts > 0 {
		pc.Attempts = cfg.Connect.Attempts
	}
	if cfg.Connect.AttemptTimeout != "" {
		pc.AttemptTimeout = mustDuration(cfg.Connect.AttemptTimeout)
	}
	if cfg.Connect.PollInterval != "" {
		pc.PollInterval = mustDuration(cfg.Connect.PollInterval)
	}
	if len(cfg.Connect.Backoff) > 0 {
		backoff := make([]time.Duration, len(cfg.Connect.Backoff))
		for i, b := range cfg.Connect.Backoff {
			backoff[i] = mustDuration(b)
		}
		pc.Backoff = backoff
	}
	if cfg.Hotspot.SSID != "" {
		pc.Hotspot.SSID = cfg.Hotspot.SSID
	}
	pc.Hotspot.Password = cfg.Hotspot.Password
	if cfg.Hotspot.IPAddress != "" {
		pc.Hotspot.IPAddress = cfg.Hotspot.IPAddress
	}
	if cfg.Hotspot.DHCPRange != "" {
		pc.Hotspot.DHCPRange = cfg.Hotspot.DHCPRange
	}
	if cfg.Hotspot.Channel != 0 {
		pc.Hotspot.Channel = cfg.Hotspot.Channel
	}
	return pc
}

// mustDuration parses a duration already vetted by Config.validate.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
