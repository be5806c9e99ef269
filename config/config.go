// Package config loads the typed application configuration from a YAML
// file with environment-variable overrides, the way the teacher's
// repository/config.go loads JSON with koanf — widened here to YAML
// (matching cartographus' koanf/parsers/yaml use) and to every external
// collaborator this system talks to.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full, explicit configuration surface. defaults()
// enumerates defaults for the tunables; fields it does not list (base
// URLs, API keys) start at their zero value. Load decodes with koanf's
// plain Unmarshal, so unknown keys in the config file are ignored, not
// rejected.
type Config struct {
	App        AppConfig        `koanf:"app"`
	DB         DBConfig         `koanf:"db"`
	HTTP       HTTPConfig       `koanf:"http"`
	Proxy      ProxyConfig      `koanf:"proxy"`
	Library    ClientConfig     `koanf:"library"`
	Metadata   ClientConfig     `koanf:"metadata"`
	Cultural   ClientConfig     `koanf:"cultural"`
	Downloader ClientConfig     `koanf:"downloader"`
	AI         AIConfig         `koanf:"ai"`
	Tasks      TasksConfig      `koanf:"tasks"`
	Concurrent ConcurrentConfig `koanf:"concurrency"`
	Cleanup    CleanupConfig    `koanf:"cleanup"`
	Resubscribe ResubscribeConfig `koanf:"resubscribe"`
}

type AppConfig struct {
	Name     string `koanf:"name"`
	LogLevel string `koanf:"logLevel"`
	DataDir  string `koanf:"dataDir"`
	FontsDir string `koanf:"fontsDir"`
}

type DBConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	Name     string `koanf:"name"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
}

type HTTPConfig struct {
	Port           string   `koanf:"port"`
	ExternalPort   string   `koanf:"externalPort"`
	AllowedOrigins []string `koanf:"allowedOrigins"`
}

// ProxyConfig carries the nginx-facing values rendered by
// `generate-nginx-config` per spec.md §6 CLI surface.
type ProxyConfig struct {
	InternalPort        string   `koanf:"internalPort"`
	EmbyUpstream        string   `koanf:"embyUpstream"`
	NativeViewsAt       string   `koanf:"nativeViewsMergeOrder"` // "before" | "after"
	NativeViewWhitelist []string `koanf:"nativeViewWhitelist"`   // empty = every native view passes through
	CoverDir            string   `koanf:"coverDir"`
}

// ClientConfig is shared shape for every external collaborator client:
// base URL, credentials, and the timeout/UA pair spec.md §2 requires
// every typed client to carry.
type ClientConfig struct {
	BaseURL   string        `koanf:"baseURL"`
	APIKey    string        `koanf:"apiKey"`
	Username  string        `koanf:"username"`
	Password  string        `koanf:"password"`
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"userAgent"`
	// RateLimitPerSecond throttles this collaborator's outbound calls;
	// zero disables the limiter.
	RateLimitPerSecond float64 `koanf:"rateLimitPerSecond"`
	RateLimitBurst     int     `koanf:"rateLimitBurst"`
}

type AIConfig struct {
	ClientConfig
	ChatTimeout           time.Duration `koanf:"chatTimeout"`
	RecommendationTimeout time.Duration `koanf:"recommendationTimeout"`
	EmbeddingModel        string        `koanf:"embeddingModel"`
}

type TasksConfig struct {
	HighFrequencyCron  string `koanf:"highFrequencyCron"`
	LowFrequencyCron   string `koanf:"lowFrequencyCron"`
	HighFreqMaxRuntime int    `koanf:"highFreqMaxRuntimeMinutes"`
	LowFreqMaxRuntime  int    `koanf:"lowFreqMaxRuntimeMinutes"`
	RevivalCheckCron   string `koanf:"revivalCheckCron"`
	CastQualityFloor   float64 `koanf:"castQualityFloor"`
	// SubscriptionDailyQuota caps how many downloader subscribe calls
	// the resubscribe scanner, the only component that places them, may
	// make in one calendar day, spec.md's downloader quota.
	SubscriptionDailyQuota int `koanf:"subscriptionDailyQuota"`
}

type ConcurrentConfig struct {
	MetadataPersonDetails int `koanf:"metadataPersonDetails"`
	LibraryDetailFanout   int `koanf:"libraryDetailFanout"`
	StreamPreflight       int `koanf:"streamPreflight"`
	ListImportResolution  int `koanf:"listImportResolution"`
}

// CleanupRule is one tiered comparison the duplicate-version scanner
// applies, in order, to rank a metadata row's library-item versions.
type CleanupRule struct {
	ID       string   `koanf:"id"`
	Enabled  bool     `koanf:"enabled"`
	Priority []string `koanf:"priority"` // ordered best-to-worst tag values; "filesize" alone uses ["desc"]
}

type CleanupConfig struct {
	Rules []CleanupRule `koanf:"rules"`
}

// ResubscribeConfig governs the quality-upgrade scanner: the
// resolution/effect floor an in-library item must already meet, and a
// rating floor below which the scanner either skips the item (mode
// "resubscribe") or flags it for the operator to remove (mode
// "delete"), grounded on the original implementation's
// tasks/resubscribe.py `_evaluate_rating_rule`.
type ResubscribeConfig struct {
	MinResolution       string  `koanf:"minResolution"` // e.g. "1080p"; "" disables the resolution floor
	MinEffect           string  `koanf:"minEffect"`     // e.g. "hdr"; "" disables the effect floor
	RatingEnabled       bool    `koanf:"ratingEnabled"`
	RatingMin           float64 `koanf:"ratingMin"`
	RatingIgnoreZero    bool    `koanf:"ratingIgnoreZero"`
	RuleType            string  `koanf:"ruleType"` // "resubscribe" | "delete"
}

func defaults() *koanf.Koanf {
	k := koanf.New(".")
	_ = k.Load(confmap.Provider(map[string]interface{}{
		"app.name":     "mediabridge",
		"app.logLevel": "info",
		"app.dataDir":  "./data",
		"app.fontsDir": "./data/fonts",

		"db.host":     "localhost",
		"db.port":     "5432",
		"db.name":     "mediabridge",
		"db.user":     "postgres",
		"db.password": "postgres",

		"http.port":           "8080",
		"http.externalPort":   "8096",
		"http.allowedOrigins": []string{"*"},

		"proxy.internalPort":          "7758",
		"proxy.embyUpstream":          "http://127.0.0.1:8096",
		"proxy.nativeViewsMergeOrder": "after",
		"proxy.nativeViewWhitelist":   []string{},
		"proxy.coverDir":              "./data/covers",

		"library.timeout":            60 * time.Second,
		"library.userAgent":          "mediabridge/1.0",
		"library.rateLimitPerSecond": 20.0,
		"library.rateLimitBurst":     20,
		"metadata.timeout":            60 * time.Second,
		"metadata.userAgent":          "mediabridge/1.0",
		"metadata.rateLimitPerSecond": 4.0,
		"metadata.rateLimitBurst":     4,
		"cultural.timeout":            60 * time.Second,
		"cultural.userAgent":          "mediabridge/1.0",
		"cultural.rateLimitPerSecond": 2.0,
		"cultural.rateLimitBurst":     2,
		"downloader.timeout":            60 * time.Second,
		"downloader.userAgent":          "mediabridge/1.0",
		"downloader.rateLimitPerSecond": 5.0,
		"downloader.rateLimitBurst":     5,

		"ai.timeout":               300 * time.Second,
		"ai.chatTimeout":           300 * time.Second,
		"ai.recommendationTimeout": 600 * time.Second,
		"ai.userAgent":             "mediabridge/1.0",
		"ai.embeddingModel":        "text-embedding-3-small",
		"ai.rateLimitPerSecond":    1.0,
		"ai.rateLimitBurst":        2,

		"tasks.highFrequencyCron":         "*/15 * * * *",
		"tasks.lowFrequencyCron":          "0 4 * * *",
		"tasks.highFreqMaxRuntimeMinutes": 10,
		"tasks.lowFreqMaxRuntimeMinutes":  0,
		"tasks.revivalCheckCron":          "0 5 * * sun",
		"tasks.castQualityFloor":          6.0,
		"tasks.subscriptionDailyQuota":    10,

		"concurrency.metadataPersonDetails": 5,
		"concurrency.libraryDetailFanout":   5,
		"concurrency.streamPreflight":       5,
		"concurrency.listImportResolution":  5,

		"cleanup.rules": []map[string]interface{}{
			{"id": "quality", "enabled": true, "priority": []string{"Remux", "BluRay", "WEB-DL", "HDTV"}},
			{"id": "resolution", "enabled": true, "priority": []string{"2160p", "1080p", "720p"}},
			{"id": "effect", "enabled": true, "priority": []string{"dovi_p8", "dovi_p7", "dovi_p5", "dovi_other", "hdr10+", "hdr", "sdr"}},
			{"id": "filesize", "enabled": true, "priority": []string{"desc"}},
		},

		"resubscribe.minResolution":    "1080p",
		"resubscribe.minEffect":        "",
		"resubscribe.ratingEnabled":    true,
		"resubscribe.ratingMin":        6.0,
		"resubscribe.ratingIgnoreZero": true,
		"resubscribe.ruleType":         "resubscribe",
	}, "."), nil)
	return k
}

// Load reads defaults, then an optional YAML file, then environment
// variables prefixed MEDIABRIDGE_ (double underscore as nesting
// separator, e.g. MEDIABRIDGE_DB__HOST), in that precedence order.
func Load(path string) (*Config, error) {
	k := defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue("MEDIABRIDGE_", ".", func(s, v string) (string, interface{}) {
		key := strings.ToLower(strings.TrimPrefix(s, "MEDIABRIDGE_"))
		key = strings.ReplaceAll(key, "__", ".")
		return key, v
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return cfg, nil
}
