// Package config collects and serves configuration for the whole syndication
// bot. It:
//  1. reads environment variables from .env (via godotenv),
//  2. normalizes and validates the values,
//  3. caches the result in a process-wide singleton,
//  4. exposes thread-safe read access through an R/W mutex.
//
// Business context: a run has three independent parsers (RSS, Telegram,
// Mastodon) that can each be toggled on or off, a single Publisher with its
// own retry/backoff tuning and a dry-run switch, a throttle shared by every
// outbound call, and an optional janitor endpoint for failure reporting.
// Per-source settings (feed URLs, Telegram channel ids, Mastodon handles to
// follow) live in their own JSON documents named here but loaded by the
// sourcesconfig package, not by this package.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// EnvConfig holds the settings read from the environment (.env). These are
// the "operational" knobs for a run: which parsers are enabled, publisher
// retry/backoff tuning, remote credentials, throttle rate, and the on-disk
// paths for the durable queue and per-parser seen-state files.
//
// NB: values have already been validated/normalized by loadConfig. Callers
// may assume EnvConfig is internally consistent once Load has returned nil.
type EnvConfig struct {
	AppName string
	LogLevel string

	ThrottleRPS int

	MaxPostAgeMonths int

	PublisherDryRun         bool
	PublisherMaxRetries     int
	PublisherSleepTimeSec   int
	PublisherMediaStorage   string
	PublisherOnlyOldestPost bool

	DefaultMaxLength    int
	DefaultMergeContent bool

	RSSEnabled      bool
	TelegramEnabled bool
	MastodonEnabled bool

	QueueFile             string
	FeedsStateFile        string
	AccountsStateFile     string
	MastodonSeenStateFile string
	TelegramStateFile     string
	FiltersFile           string
	FeedsConfigFile       string
	AccountsConfigFile    string
	TelegramConfigFile    string

	TelegramAPIID           int
	TelegramAPIHash         string
	TelegramPhoneNumber     string
	TelegramSessionFile     string
	TelegramPeersCache      string
	TelegramIgnoreOffsets   bool
	TelegramDateToStartFrom time.Time

	MastodonInstanceURL  string
	MastodonAccessToken  string
	MastodonDialect      string
	MastodonOnlyPublic   bool
	MastodonIgnoreOffset bool

	JanitorEndpoint string
}

// Config holds the process-wide configuration singleton.
//
// Thread-safety: public getters take an RLock. Load takes the exclusive
// Lock for the duration of the (re)build.
type Config struct {
	Env      EnvConfig
	warnings []string
	mu       sync.RWMutex
}

// Default values for environment parameters and related files.
const (
	defaultAppName = "feedbot"

	defaultThrottleRPS = 2

	defaultMaxPostAgeMonths = 6

	defaultPublisherMaxRetries   = 3
	defaultPublisherSleepTimeSec = 30
	defaultPublisherMediaStorage = "data/media"

	defaultDefaultMaxLength = 500

	defaultLogLevel = "info"

	defaultQueueFile             = "data/queue.yaml"
	defaultFeedsStateFile        = "data/feeds.yaml"
	defaultAccountsStateFile     = "data/accounts.yaml"
	defaultMastodonSeenStateFile = "data/mastodon_seen.json"
	defaultTelegramStateFile     = "data/telegram.yaml"
	defaultFiltersFile           = "assets/filter_profiles.json"
	defaultFeedsConfigFile       = "assets/feeds.json"
	defaultAccountsConfigFile    = "assets/accounts.json"
	defaultTelegramConfigFile    = "assets/telegram_sources.json"

	defaultTelegramSessionFile = "data/session.bin"
	defaultTelegramPeersCache  = "data/peers_cache.bbolt"

	defaultMastodonDialect = "mastodon"
)

var (
	cfgInstance *Config
	cfgDone     bool
)

// Load is the entry point for initializing the global configuration. On
// first call it:
//  1. reads .env,
//  2. builds an EnvConfig,
//  3. stores the result in the cfgInstance singleton.
//
// A second call returns an error, to avoid racing the configuration at
// startup.
func Load(envPath string) error {
	if cfgDone {
		return errors.New("config already loaded")
	}
	if cfgInstance == nil {
		cfgInstance = &Config{}
	}
	cfgInstance.mu.Lock()
	defer cfgInstance.mu.Unlock()
	newCfg, err := loadConfig(envPath)
	if err != nil {
		return err
	}
	cfgInstance = newCfg
	cfgDone = true
	return nil
}

// loadConfig performs the actual load/validate without touching global
// state, so tests can build a throwaway Config and inspect it.
func loadConfig(envPath string) (*Config, error) {
	// A missing .env is tolerated: every setting this bot reads except
	// the Mastodon publish credentials (and the Telegram credentials when
	// that parser is enabled) has a sane default, and those can also come
	// from the process environment.
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var warnings []string
	var fatal []string

	appName := strings.TrimSpace(os.Getenv("APP_NAME"))
	if appName == "" {
		appName = defaultAppName
	}
	logLevel := sanitizeLogLevel(os.Getenv("LOG_LEVEL"), &warnings)
	throttleRPS := parseIntDefault("THROTTLE_RPS", defaultThrottleRPS, greaterThanZero, &warnings)
	maxPostAgeMonths := parseIntDefault("MAX_POST_AGE_MONTHS", defaultMaxPostAgeMonths, nonNegative, &warnings)

	dryRun := parseBoolDefault("PUBLISHER_DRY_RUN", false)
	maxRetries := parseIntDefault("PUBLISHER_MAX_RETRIES", defaultPublisherMaxRetries, nonNegative, &warnings)
	sleepTime := parseIntDefault("PUBLISHER_SLEEP_TIME_SEC", defaultPublisherSleepTimeSec, nonNegative, &warnings)
	mediaStorage := sanitizeFile("PUBLISHER_MEDIA_STORAGE", os.Getenv("PUBLISHER_MEDIA_STORAGE"),
		defaultPublisherMediaStorage, &warnings)
	onlyOldest := parseBoolDefault("PUBLISHER_ONLY_OLDEST_POST_EVERY_ITERATION", false)

	maxLength := parseIntDefault("DEFAULT_MAX_LENGTH", defaultDefaultMaxLength, greaterThanZero, &warnings)
	mergeContent := parseBoolDefault("DEFAULT_MERGE_CONTENT", false)

	rssEnabled := parseBoolDefault("RSS_PARSER_ENABLED", true)
	telegramEnabled := parseBoolDefault("TELEGRAM_PARSER_ENABLED", false)
	mastodonEnabled := parseBoolDefault("MASTODON_PARSER_ENABLED", false)

	queueFile := sanitizeFile("QUEUE_FILE", os.Getenv("QUEUE_FILE"), defaultQueueFile, &warnings)
	feedsStateFile := sanitizeFile("FEEDS_STATE_FILE", os.Getenv("FEEDS_STATE_FILE"), defaultFeedsStateFile, &warnings)
	accountsStateFile := sanitizeFile("ACCOUNTS_STATE_FILE", os.Getenv("ACCOUNTS_STATE_FILE"),
		defaultAccountsStateFile, &warnings)
	mastodonSeenStateFile := sanitizeFile("MASTODON_SEEN_STATE_FILE", os.Getenv("MASTODON_SEEN_STATE_FILE"),
		defaultMastodonSeenStateFile, &warnings)
	telegramStateFile := sanitizeFile("TELEGRAM_STATE_FILE", os.Getenv("TELEGRAM_STATE_FILE"),
		defaultTelegramStateFile, &warnings)
	filtersFile := sanitizeFile("FILTERS_FILE", os.Getenv("FILTERS_FILE"), defaultFiltersFile, &warnings)
	feedsConfigFile := sanitizeFile("FEEDS_CONFIG_FILE", os.Getenv("FEEDS_CONFIG_FILE"),
		defaultFeedsConfigFile, &warnings)
	accountsConfigFile := sanitizeFile("ACCOUNTS_CONFIG_FILE", os.Getenv("ACCOUNTS_CONFIG_FILE"),
		defaultAccountsConfigFile, &warnings)
	telegramConfigFile := sanitizeFile("TELEGRAM_CONFIG_FILE", os.Getenv("TELEGRAM_CONFIG_FILE"),
		defaultTelegramConfigFile, &warnings)

	var apiID int
	var apiHash, phone string
	if telegramEnabled {
		var err error
		apiID, err = parseRequiredInt("TELEGRAM_API_ID")
		if err != nil {
			fatal = append(fatal, err.Error())
		}
		apiHash = strings.TrimSpace(os.Getenv("TELEGRAM_API_HASH"))
		if apiHash == "" {
			fatal = append(fatal, "env TELEGRAM_API_HASH must be set when TELEGRAM_PARSER_ENABLED=true")
		}
		phone = strings.TrimSpace(os.Getenv("TELEGRAM_PHONE_NUMBER"))
		if phone == "" {
			fatal = append(fatal, "env TELEGRAM_PHONE_NUMBER must be set when TELEGRAM_PARSER_ENABLED=true")
		}
	}
	sessionFile := sanitizeFile("TELEGRAM_SESSION_FILE", os.Getenv("TELEGRAM_SESSION_FILE"),
		defaultTelegramSessionFile, &warnings)
	peersCache := sanitizeFile("TELEGRAM_PEERS_CACHE", os.Getenv("TELEGRAM_PEERS_CACHE"),
		defaultTelegramPeersCache, &warnings)
	telegramIgnoreOffsets := parseBoolDefault("TELEGRAM_IGNORE_OFFSETS", false)
	telegramStartFrom := parseDateDefault("TELEGRAM_DATE_TO_START_FROM", &warnings)

	// Mastodon is always the publish target (the Publisher posts every
	// outgoing status there), independent of MASTODON_PARSER_ENABLED,
	// which only toggles the *ingestion* parser that reblogs other
	// accounts. Credentials are therefore required unconditionally,
	// matching Publisher.__init__'s unconditional mastodon.Mastodon(...)
	// connection in the original.
	mastodonURL := strings.TrimSpace(os.Getenv("MASTODON_INSTANCE_URL"))
	if mastodonURL == "" {
		fatal = append(fatal, "env MASTODON_INSTANCE_URL must be set")
	}
	mastodonToken := strings.TrimSpace(os.Getenv("MASTODON_ACCESS_TOKEN"))
	if mastodonToken == "" {
		fatal = append(fatal, "env MASTODON_ACCESS_TOKEN must be set")
	}
	mastodonDialect := sanitizeDialect(os.Getenv("MASTODON_DIALECT"), &warnings)
	mastodonOnlyPublic := parseBoolDefault("MASTODON_ONLY_PUBLIC_VISIBILITY", true)
	mastodonIgnoreOffset := parseBoolDefault("MASTODON_IGNORE_TOOTS_OFFSET", false)

	janitorEndpoint := strings.TrimSpace(os.Getenv("JANITOR_ENDPOINT"))

	if len(fatal) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(fatal, "; "))
	}

	env := EnvConfig{
		AppName:     appName,
		LogLevel:    logLevel,
		ThrottleRPS: throttleRPS,

		MaxPostAgeMonths: maxPostAgeMonths,

		PublisherDryRun:         dryRun,
		PublisherMaxRetries:     maxRetries,
		PublisherSleepTimeSec:   sleepTime,
		PublisherMediaStorage:   mediaStorage,
		PublisherOnlyOldestPost: onlyOldest,

		DefaultMaxLength:    maxLength,
		DefaultMergeContent: mergeContent,

		RSSEnabled:      rssEnabled,
		TelegramEnabled: telegramEnabled,
		MastodonEnabled: mastodonEnabled,

		QueueFile:             queueFile,
		FeedsStateFile:        feedsStateFile,
		AccountsStateFile:     accountsStateFile,
		MastodonSeenStateFile: mastodonSeenStateFile,
		TelegramStateFile:     telegramStateFile,
		FiltersFile:           filtersFile,
		FeedsConfigFile:       feedsConfigFile,
		AccountsConfigFile:    accountsConfigFile,
		TelegramConfigFile:    telegramConfigFile,

		TelegramAPIID:           apiID,
		TelegramAPIHash:         apiHash,
		TelegramPhoneNumber:     phone,
		TelegramSessionFile:     sessionFile,
		TelegramPeersCache:      peersCache,
		TelegramIgnoreOffsets:   telegramIgnoreOffsets,
		TelegramDateToStartFrom: telegramStartFrom,

		MastodonInstanceURL:  mastodonURL,
		MastodonAccessToken:  mastodonToken,
		MastodonDialect:      mastodonDialect,
		MastodonOnlyPublic:   mastodonOnlyPublic,
		MastodonIgnoreOffset: mastodonIgnoreOffset,

		JanitorEndpoint: janitorEndpoint,
	}

	return &Config{Env: env, warnings: warnings}, nil
}

// Warnings returns the warnings accumulated while loading .env (e.g. when a
// default value was substituted). Returns a copy.
func Warnings() []string {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	result := make([]string, len(cfgInstance.warnings))
	copy(result, cfgInstance.warnings)
	return result
}

// Env returns the EnvConfig from the global singleton. This is an immutable
// snapshot as of the successful Load; Load refuses a second call, so the
// snapshot does not change for the rest of the process.
func Env() EnvConfig {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	return cfgInstance.Env
}

func parseRequiredInt(name string) (int, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return 0, fmt.Errorf("env %s must be set", name)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("env %s must be a valid integer: %w", name, err)
	}
	return v, nil
}

// parseIntDefault reads name as an int. If it is empty, malformed, or fails
// validator, it returns defaultVal and records a warning, rather than
// failing the whole run over a non-critical setting.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

func parseBoolDefault(name string, defaultVal bool) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultVal
	}
	return b
}

// parseDateDefault parses YYYY-MM-DD. An empty or malformed value yields
// the zero time.Time, which callers treat as "no lower bound".
func parseDateDefault(name string, warnings *[]string) time.Time {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid YYYY-MM-DD date; ignoring", name, value)
		return time.Time{}
	}
	return t
}

func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

func greaterThanZero(v int) bool { return v > 0 }
func nonNegative(v int) bool     { return v >= 0 }

// sanitizeLogLevel normalizes LOG_LEVEL to one of {debug, info, warn,
// error}; anything else becomes defaultLogLevel.
func sanitizeLogLevel(level string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		return defaultLogLevel
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env LOG_LEVEL value %q is invalid; using default %q", level, defaultLogLevel)
		return defaultLogLevel
	}
}

// sanitizeDialect normalizes MASTODON_DIALECT to one of {mastodon, pleroma,
// firefish}, which the remote API adapter branches on for content_type/
// language/quote_id differences.
func sanitizeDialect(value string, warnings *[]string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return defaultMastodonDialect
	}
	switch v {
	case "mastodon", "pleroma", "firefish":
		return v
	default:
		appendWarningf(warnings, "env MASTODON_DIALECT value %q is invalid; using default %q", value, defaultMastodonDialect)
		return defaultMastodonDialect
	}
}

// sanitizeFile returns a usable config/state file path. An unset or blank
// variable falls back to fallback; no warning is recorded for that.
func sanitizeFile(name, value, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return fallback
	}
	return v
}

// ParseLocation parses either an IANA timezone name (e.g. "Europe/Moscow")
// or a UTC offset (e.g. "+03:00", "-0700", "UTC+3", "GMT-04:30").
func ParseLocation(value string) (*time.Location, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, errors.New("empty timezone")
	}
	if loc, err := time.LoadLocation(v); err == nil {
		return loc, nil
	}
	if loc, ok := parseUTCOffsetToLocation(v); ok {
		return loc, nil
	}
	return nil, fmt.Errorf("invalid timezone %q: not an IANA name or UTC offset", value)
}

// parseUTCOffsetToLocation parses strings like "+03:00", "-0700", "UTC+3",
// "GMT-04:30" or "Z".
func parseUTCOffsetToLocation(value string) (*time.Location, bool) {
	v := strings.TrimSpace(strings.ToUpper(value))
	if v == "Z" || v == "UTC" || v == "GMT" {
		return time.FixedZone("UTC+00:00", 0), true
	}
	v = strings.TrimPrefix(v, "UTC")
	v = strings.TrimPrefix(v, "GMT")
	v = strings.TrimSpace(v)
	re := regexp.MustCompile(`^([+-])\s*(\d{1,2})(?::?(\d{2}))?$`)
	m := re.FindStringSubmatch(v)
	if m == nil {
		return nil, false
	}
	sign := 1
	if m[1] == "-" {
		sign = -1
	}
	hours, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, false
	}
	mins := 0
	if m[3] != "" {
		mins, err = strconv.Atoi(m[3])
		if err != nil {
			return nil, false
		}
	}
	if hours < 0 || hours > 14 || mins < 0 || mins > 59 {
		return nil, false
	}
	offset := sign * ((hours * 60 * 60) + (mins * 60))
	name := fmt.Sprintf("UTC%+03d:%02d", sign*hours, mins)
	return time.FixedZone(name, offset), true
}
