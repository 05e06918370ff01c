// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/luyichou/webtech-autopost/internal/locate"
)

// Config is the root application configuration. It is constructed once at
// process start and passed by reference into each component; there is no
// ambient/static configuration state.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Portal     PortalConfig     `mapstructure:"portal" yaml:"portal"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Retry      RetryConfig      `mapstructure:"retry" yaml:"retry"`
	Recognizer RecognizerConfig `mapstructure:"recognizer" yaml:"recognizer"`
	Locators   LocatorsConfig   `mapstructure:"locators" yaml:"locators"`
	Keywords   KeywordsConfig   `mapstructure:"keywords" yaml:"keywords"`
	Chat       ChatConfig       `mapstructure:"chat" yaml:"chat"`
	Uploader   UploaderConfig   `mapstructure:"uploader" yaml:"uploader"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// PortalConfig carries the target CMS and its credentials. The username
// and password are immutable inputs; nothing in the workflow mutates them.
type PortalConfig struct {
	LoginURL string `mapstructure:"login_url" yaml:"login_url"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
}

// BrowserConfig holds settings for the driven Chrome instance.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	ScreenshotDir     string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	WaitTimeout       time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	SettleInterval    time.Duration `mapstructure:"settle_interval" yaml:"settle_interval"`
}

// RetryConfig tunes the login state machine and the publish flow's
// bounded retries. Login backoff is linear (base * attempt index): the
// dominant cost per attempt is recognition latency, not server load, so
// exponential growth buys nothing.
type RetryConfig struct {
	MaxLoginAttempts int           `mapstructure:"max_login_attempts" yaml:"max_login_attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	ListRetries      int           `mapstructure:"list_retries" yaml:"list_retries"`
	ListSettle       time.Duration `mapstructure:"list_settle" yaml:"list_settle"`
	EditorSettle     time.Duration `mapstructure:"editor_settle" yaml:"editor_settle"`
	FrameAttachWait  time.Duration `mapstructure:"frame_attach_wait" yaml:"frame_attach_wait"`
}

// RecognizerConfig configures the vision-model CAPTCHA recognizer.
type RecognizerConfig struct {
	APIKey         string        `mapstructure:"api_key" yaml:"-"`
	Models         []string      `mapstructure:"models" yaml:"models"`
	Instruction    string        `mapstructure:"instruction" yaml:"instruction"`
	APITimeout     time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	ManualFallback bool          `mapstructure:"manual_fallback" yaml:"manual_fallback"`
}

// LocatorsConfig externalizes every DOM lookup the workflows perform.
// Changing the portal's markup should require only changes here, never
// changes to the flow logic.
type LocatorsConfig struct {
	UsernameField   []locate.Strategy `mapstructure:"username_field" yaml:"username_field"`
	PasswordField   []locate.Strategy `mapstructure:"password_field" yaml:"password_field"`
	CaptchaField    []locate.Strategy `mapstructure:"captcha_field" yaml:"captcha_field"`
	CaptchaImage    []locate.Strategy `mapstructure:"captcha_image" yaml:"captcha_image"`
	SubmitButton    []locate.Strategy `mapstructure:"submit_button" yaml:"submit_button"`
	NewsNavLink     []locate.Strategy `mapstructure:"news_nav_link" yaml:"news_nav_link"`
	ArticleListRow  []locate.Strategy `mapstructure:"article_list_row" yaml:"article_list_row"`
	AddArticle      []locate.Strategy `mapstructure:"add_article" yaml:"add_article"`
	TitleInput      []locate.Strategy `mapstructure:"title_input" yaml:"title_input"`
	AddContentBlock []locate.Strategy `mapstructure:"add_content_block" yaml:"add_content_block"`
	EditorFrame     []locate.Strategy `mapstructure:"editor_frame" yaml:"editor_frame"`
	SaveButton      []locate.Strategy `mapstructure:"save_button" yaml:"save_button"`
	SuccessMessage  []locate.Strategy `mapstructure:"success_message" yaml:"success_message"`
	CategorySelect  []locate.Strategy `mapstructure:"category_select" yaml:"category_select"`
}

// KeywordsConfig carries the post-submission page inspection vocabulary.
type KeywordsConfig struct {
	Submit         []string `mapstructure:"submit" yaml:"submit"`
	LoginError     []string `mapstructure:"login_error" yaml:"login_error"`
	LoginSuccess   []string `mapstructure:"login_success" yaml:"login_success"`
	CaptchaMarkers []string `mapstructure:"captcha_markers" yaml:"captcha_markers"`
}

// ChatConfig configures the chat webhook collaborator layer.
type ChatConfig struct {
	Addr           string `mapstructure:"addr" yaml:"addr"`
	ChannelSecret  string `mapstructure:"channel_secret" yaml:"-"`
	ChannelToken   string `mapstructure:"channel_token" yaml:"-"`
	APIEndpoint    string `mapstructure:"api_endpoint" yaml:"api_endpoint"`
	CommandPrefix  string `mapstructure:"command_prefix" yaml:"command_prefix"`
	HistoryFile    string `mapstructure:"history_file" yaml:"history_file"`
	DraftModel     string `mapstructure:"draft_model" yaml:"draft_model"`
	PushPerMinute  int    `mapstructure:"push_per_minute" yaml:"push_per_minute"`
	MaxHistoryTurn int    `mapstructure:"max_history_turns" yaml:"max_history_turns"`
}

// UploaderConfig holds the Cloudinary credentials for image hosting.
type UploaderConfig struct {
	CloudName string `mapstructure:"cloud_name" yaml:"cloud_name"`
	APIKey    string `mapstructure:"api_key" yaml:"-"`
	APISecret string `mapstructure:"api_secret" yaml:"-"`
	Folder    string `mapstructure:"folder" yaml:"folder"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
}

// SetDefaults initializes default values for every configuration
// parameter that has a sensible one. Locator and keyword cascade
// defaults are applied after unmarshal (see applyLocatorDefaults)
// because viper does not merge defaults into nested struct slices.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autopost")
	v.SetDefault("logger.log_file", "autopost.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.screenshot_dir", "img")
	v.SetDefault("browser.wait_timeout", "15s")
	v.SetDefault("browser.navigation_timeout", "15s")
	v.SetDefault("browser.settle_interval", "3s")

	// -- Retry --
	v.SetDefault("retry.max_login_attempts", 5)
	v.SetDefault("retry.base_delay", "2s")
	v.SetDefault("retry.list_retries", 3)
	v.SetDefault("retry.list_settle", "5s")
	v.SetDefault("retry.editor_settle", "2s")
	v.SetDefault("retry.frame_attach_wait", "1s")

	// -- Recognizer --
	v.SetDefault("recognizer.models", []string{"gemini-2.5-flash", "gemini-2.5-pro"})
	v.SetDefault("recognizer.instruction",
		"What's in this image? Identify the letters and numbers. Respond only with the identified text.")
	v.SetDefault("recognizer.api_timeout", "30s")
	v.SetDefault("recognizer.manual_fallback", true)

	// -- Chat --
	v.SetDefault("chat.addr", ":5001")
	v.SetDefault("chat.api_endpoint", "https://api.line.me")
	v.SetDefault("chat.command_prefix", "發文")
	v.SetDefault("chat.history_file", "conversations.json")
	v.SetDefault("chat.draft_model", "gemini-2.5-flash")
	v.SetDefault("chat.push_per_minute", 60)
	v.SetDefault("chat.max_history_turns", 20)

	// -- Uploader --
	v.SetDefault("uploader.endpoint", "https://api.cloudinary.com")
	v.SetDefault("uploader.folder", "autopost")

	// -- Keywords --
	v.SetDefault("keywords.submit", []string{"登", "login", "submit", "提交", "確認", "ok"})
	v.SetDefault("keywords.login_success",
		[]string{"成功", "歡迎", "welcome", "dashboard", "admin", "system"})
	v.SetDefault("keywords.login_error", []string{
		"驗證碼錯誤", "verification code", "captcha", "驗證失敗",
		"登錄失敗", "login failed", "用戶名或密碼錯誤", "帳號或密碼錯誤",
	})
	v.SetDefault("keywords.captcha_markers", []string{"驗證", "captcha", "verification"})
}

// NewFromViper builds and validates a Config from a prepared viper
// instance. Sensitive values are bound to environment variables here so
// they never have to live in the config file.
func NewFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("portal.username", "AUTOPOST_PORTAL_USERNAME")
	v.BindEnv("portal.password", "AUTOPOST_PORTAL_PASSWORD")
	v.BindEnv("recognizer.api_key", "AUTOPOST_GEMINI_API_KEY")
	v.BindEnv("chat.channel_secret", "AUTOPOST_LINE_CHANNEL_SECRET")
	v.BindEnv("chat.channel_token", "AUTOPOST_LINE_CHANNEL_TOKEN")
	v.BindEnv("uploader.api_key", "AUTOPOST_CLOUDINARY_API_KEY")
	v.BindEnv("uploader.api_secret", "AUTOPOST_CLOUDINARY_API_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.applyLocatorDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefault creates a configuration populated with defaults only.
func NewDefault() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewFromViper(v)
	if err != nil {
		// Defaults are static; a failure here is a programming error.
		panic(fmt.Sprintf("failed to build default config: %v", err))
	}
	return cfg
}

// applyLocatorDefaults fills any locator cascade left empty by the
// config file with the known defaults for the target portal.
func (c *Config) applyLocatorDefaults() {
	def := func(dst *[]locate.Strategy, strategies ...locate.Strategy) {
		if len(*dst) == 0 {
			*dst = strategies
		}
	}

	def(&c.Locators.UsernameField, locate.CSS("input[name='username']"))
	def(&c.Locators.PasswordField, locate.CSS("input[name='userpwd']"))
	def(&c.Locators.CaptchaField, locate.CSS("input[name='checknum']"))
	def(&c.Locators.CaptchaImage,
		locate.CSS("img[src*='img.php']"),
		locate.CSS("img[src*='captcha']"),
		locate.CSS("img[src*='verify']"),
		locate.CSS("img[src*='code']"),
		locate.CSS("img[alt*='驗證碼']"),
		locate.CSS("img[alt*='captcha']"),
		locate.CSS(".captcha img"),
		locate.CSS("#captcha img"),
	)
	if len(c.Locators.SubmitButton) == 0 {
		strategies := []locate.Strategy{
			locate.CSS("input[type='submit']"),
			locate.CSS("button[type='submit']"),
		}
		strategies = append(strategies, locate.KeywordXPath(c.Keywords.Submit)...)
		c.Locators.SubmitButton = strategies
	}
	def(&c.Locators.NewsNavLink,
		locate.XPath("//li[contains(@class, 'haschild')]//a[contains(text(), '最新消息')]"))
	def(&c.Locators.ArticleListRow, locate.CSS("div.list-data ul.list-con li.li-data"))
	def(&c.Locators.AddArticle, locate.CSS("a.btn.new[href*='#/article-edit']"))
	def(&c.Locators.TitleInput, locate.CSS("div.form-input input[placeholder='輸入文章標題']"))
	def(&c.Locators.AddContentBlock, locate.CSS("div.add-style > button.btn.new[title='新增']"))
	def(&c.Locators.EditorFrame, locate.CSS("iframe.cke_wysiwyg_frame"))
	def(&c.Locators.SaveButton, locate.CSS("div#fixed-bottom button.btn.send"))
	def(&c.Locators.SuccessMessage,
		locate.XPath("//*[contains(@class, 'el-message') and contains(@class, 'success')] | //*[contains(text(), '成功')]"))
	def(&c.Locators.CategorySelect,
		locate.CSS("select[name*='category']"),
		locate.CSS("select[id*='category']"),
		locate.CSS("#category"),
		locate.CSS(".category-select"),
	)
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Retry.MaxLoginAttempts <= 0 {
		return fmt.Errorf("retry.max_login_attempts must be a positive integer")
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must not be negative")
	}
	if c.Retry.ListRetries <= 0 {
		return fmt.Errorf("retry.list_retries must be a positive integer")
	}
	if c.Browser.WaitTimeout <= 0 {
		return fmt.Errorf("browser.wait_timeout must be a positive duration")
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser window dimensions must be positive")
	}
	if len(c.Recognizer.Models) == 0 {
		return fmt.Errorf("recognizer.models must list at least one model")
	}
	return nil
}
