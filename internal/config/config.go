package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application. It is built once at
// process start and passed to component constructors; nothing reads ambient
// state after that.
type Config struct {
	Panel     PanelConfig     `mapstructure:"panel"`
	Mail      MailConfig      `mapstructure:"mail"`
	Captcha   CaptchaConfig   `mapstructure:"captcha"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Report    ReportConfig    `mapstructure:"report"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// PanelConfig holds credentials and identifiers for the hosting panel.
type PanelConfig struct {
	Email       string        `mapstructure:"email"`
	Password    string        `mapstructure:"password"`
	VPSID       string        `mapstructure:"vps_id"`
	LoginURL    string        `mapstructure:"login_url"`
	Timezone    string        `mapstructure:"timezone"`
	StepTimeout time.Duration `mapstructure:"step_timeout"`
}

// MailConfig holds IMAP credentials and the optional sender/subject filters
// for the verification-code mailbox.
type MailConfig struct {
	IMAPHost      string        `mapstructure:"imap_host"`
	IMAPPort      int           `mapstructure:"imap_port"`
	IMAPUser      string        `mapstructure:"imap_user"`
	IMAPPassword  string        `mapstructure:"imap_password"`
	FromFilter    string        `mapstructure:"from_filter"`
	SubjectFilter string        `mapstructure:"subject_filter"`
	CodeTimeout   time.Duration `mapstructure:"code_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	ScanLimit     int           `mapstructure:"scan_limit"`
}

// CaptchaConfig holds the external image-captcha recognition endpoint.
type CaptchaConfig struct {
	APIURL     string        `mapstructure:"api_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// TelegramConfig holds the optional notification channel credentials.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// BrowserConfig holds browser session settings. The headless toggle is
// accepted for compatibility but the driver always runs visible: the renewal
// page's interactive challenge does not pass in headless sessions.
type BrowserConfig struct {
	Headless      bool   `mapstructure:"headless"`
	ProxyServer   string `mapstructure:"proxy_server"`
	RunnerIP      string `mapstructure:"runner_ip"`
	ScreenshotDir string `mapstructure:"screenshot_dir"`
}

// ReportConfig holds paths for the per-run status artifacts.
type ReportConfig struct {
	CachePath  string `mapstructure:"cache_path"`
	ReadmePath string `mapstructure:"readme_path"`
}

// DatabaseConfig holds the run-history database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig holds HTTP server configuration for daemon mode.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SchedulerConfig holds the daemon-mode schedule.
type SchedulerConfig struct {
	CronSpec string `mapstructure:"cron_spec"`
}

// LoadConfig loads configuration from an optional config file and
// environment variables. Environment variables override the file.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("panel.login_url", "https://secure.xserver.ne.jp/xapanel/login/xvps/")
	viper.SetDefault("panel.timezone", "Asia/Tokyo")
	viper.SetDefault("panel.step_timeout", "30s")

	viper.SetDefault("mail.imap_port", 993)
	viper.SetDefault("mail.code_timeout", "120s")
	viper.SetDefault("mail.poll_interval", "5s")
	viper.SetDefault("mail.scan_limit", 12)

	viper.SetDefault("captcha.api_url", "https://captcha-120546510085.asia-northeast1.run.app")
	viper.SetDefault("captcha.timeout", "20s")
	viper.SetDefault("captcha.max_retries", 3)
	viper.SetDefault("captcha.retry_delay", "2s")

	viper.SetDefault("browser.headless", false)
	viper.SetDefault("browser.screenshot_dir", ".")

	viper.SetDefault("report.cache_path", "cache.json")
	viper.SetDefault("report.readme_path", "README.md")

	viper.SetDefault("database.path", "renewal.db")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	// Default: one run per day, early morning JST.
	viper.SetDefault("scheduler.cron_spec", "0 0 21 * * *")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	viper.BindEnv("panel.email", "XSERVER_EMAIL")
	viper.BindEnv("panel.password", "XSERVER_PASSWORD")
	viper.BindEnv("panel.vps_id", "XSERVER_VPS_ID")
	viper.BindEnv("panel.step_timeout", "WAIT_TIMEOUT")

	viper.BindEnv("mail.imap_host", "MAIL_IMAP_HOST")
	viper.BindEnv("mail.imap_port", "MAIL_IMAP_PORT")
	viper.BindEnv("mail.imap_user", "MAIL_IMAP_USER")
	viper.BindEnv("mail.imap_password", "MAIL_IMAP_PASS")
	viper.BindEnv("mail.from_filter", "MAIL_FROM_FILTER")
	viper.BindEnv("mail.subject_filter", "MAIL_SUBJECT_FILTER")

	viper.BindEnv("captcha.api_url", "CAPTCHA_API_URL")

	viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	viper.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID")

	viper.BindEnv("browser.headless", "USE_HEADLESS")
	viper.BindEnv("browser.proxy_server", "PROXY_SERVER")
	viper.BindEnv("browser.runner_ip", "RUNNER_IP")

	viper.BindEnv("database.path", "DB_PATH")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("scheduler.cron_spec", "SCHEDULER_CRON_SPEC")
}

// DetailURL returns the server detail page for the configured VPS.
func (c *PanelConfig) DetailURL() string {
	return fmt.Sprintf("https://secure.xserver.ne.jp/xapanel/xvps/server/detail?id=%s", c.VPSID)
}

// ExtendURL returns the renewal page for the configured VPS.
func (c *PanelConfig) ExtendURL() string {
	return fmt.Sprintf("https://secure.xserver.ne.jp/xapanel/xvps/server/freevps/extend/index?id_vps=%s", c.VPSID)
}

// IMAPAddr returns the host:port dial address for the mailbox.
func (c *MailConfig) IMAPAddr() string {
	return fmt.Sprintf("%s:%d", c.IMAPHost, c.IMAPPort)
}

// MailboxConfigured reports whether the verification-code mailbox is usable.
func (c *MailConfig) MailboxConfigured() bool {
	return c.IMAPHost != "" && c.IMAPUser != "" && c.IMAPPassword != ""
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Panel.Email == "" || c.Panel.Password == "" {
		return fmt.Errorf("panel email and password are required")
	}

	if c.Panel.VPSID == "" {
		return fmt.Errorf("panel vps_id is required")
	}

	if strings.TrimSpace(c.Captcha.APIURL) == "" {
		return fmt.Errorf("captcha api_url is required")
	}

	if c.Mail.PollInterval <= 0 || c.Mail.CodeTimeout <= 0 {
		return fmt.Errorf("mail poll_interval and code_timeout must be greater than 0")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	return nil
}
