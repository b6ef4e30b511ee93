package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// ErrMissingSection is returned when a required section is absent from the
// configuration file.
var ErrMissingSection = errors.New("config: missing section")

// Required sections. A run never proceeds without them.
const (
	SectionEventStore = "mysql"
	SectionAdmins     = "admins"
	SectionStatsPath  = "statspath"

	SectionDirectory      = "directory"
	SectionPortalMySQL    = "tao-mysql"
	SectionPortalPostgres = "tao-postgres"
	SectionPortalAdmins   = "tao-admins"
	SectionReport         = "report"
	SectionCache          = "cache"
	SectionServer         = "server"
	SectionIngest         = "ingest"
	SectionLogging        = "logging"
)

// Environment overrides, usually supplied through a .env file next to the config.
const (
	EnvConfigPath        = "USAGEREPORT_CONFIG"
	EnvDBPassword        = "USAGEREPORT_DB_PASSWORD"
	EnvDirectoryPassword = "USAGEREPORT_DIRECTORY_PASSWORD"
	EnvPortalPassword    = "USAGEREPORT_PORTAL_PASSWORD"
	EnvRedisAddr         = "USAGEREPORT_REDIS_ADDR"
)

type DBConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// Path is the database file when Driver is sqlite3.
	Path string
}

// Configured reports whether the section carried enough to connect.
func (c DBConfig) Configured() bool {
	return c.Path != "" || c.Host != "" || c.Database != ""
}

type ReportConfig struct {
	SystemID             int
	ExtractSystemID      int
	// ProjectPrefix narrows the event-store project table; ExtractProjectPrefix
	// does the same for reports built from a utilisation extract.
	ProjectPrefix        string
	ExtractProjectPrefix string
	HomeDepartmentID     int64
	HomeLabel            string
	InstitutionPrecision int
	ProjectPrecision     int
	DemographicPrecision int
	ResidualBuckets      bool
	DiscardAccounts      []string
}

type CacheConfig struct {
	RedisAddr string
	RedisDB   int
	TTL       time.Duration
}

func (c CacheConfig) Enabled() bool { return c.RedisAddr != "" }

type ServerConfig struct {
	Listen string
}

type IngestConfig struct {
	BatchSize      int
	ConnectRetries int
	ConnectDelay   time.Duration
}

type Config struct {
	EventStore     DBConfig
	Directory      DBConfig
	PortalMySQL    DBConfig
	PortalPostgres DBConfig

	Admins       []string
	PortalAdmins []string
	StatsPath    string

	Report   ReportConfig
	Cache    CacheConfig
	Server   ServerConfig
	Ingest   IngestConfig
	LogLevel string
}

func DefaultConfig() Config {
	return Config{
		EventStore: DBConfig{Driver: "mysql", Port: 3306},
		Report: ReportConfig{
			SystemID:             1,
			ExtractSystemID:      2,
			ExtractProjectPrefix: "oz",
			HomeDepartmentID:     6,
			HomeLabel:            "Swinburne",
			InstitutionPrecision: 2,
			ProjectPrecision:     3,
			DemographicPrecision: 2,
			DiscardAccounts:      []string{"hpcadmin", "testers", "root"},
		},
		Cache:  CacheConfig{TTL: 24 * time.Hour},
		Server: ServerConfig{Listen: ":8080"},
		Ingest: IngestConfig{
			BatchSize:      500,
			ConnectRetries: 3,
			ConnectDelay:   5 * time.Second,
		},
		LogLevel: "info",
	}
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "usagereport")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "usagereport")
}

// ConfigPath returns $USAGEREPORT_CONFIG or config.ini in ConfigDir.
func ConfigPath() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "config.ini")
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the ini file at path, loads a sibling .env file when present
// and applies environment overrides. Missing required sections are fatal.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return cfg, err
	}

	f, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	for _, name := range []string{SectionEventStore, SectionAdmins, SectionStatsPath} {
		if !f.HasSection(name) {
			return DefaultConfig(), fmt.Errorf("%w [%s] in %s", ErrMissingSection, name, path)
		}
	}

	cfg.EventStore = readDB(f.Section(SectionEventStore), "mysql")
	cfg.Directory = cfg.EventStore
	if f.HasSection(SectionDirectory) {
		cfg.Directory = readDB(f.Section(SectionDirectory), cfg.EventStore.Driver)
	}
	if f.HasSection(SectionPortalMySQL) {
		cfg.PortalMySQL = readDB(f.Section(SectionPortalMySQL), "mysql")
	}
	if f.HasSection(SectionPortalPostgres) {
		cfg.PortalPostgres = readDB(f.Section(SectionPortalPostgres), "postgres")
	}

	cfg.Admins = SplitList(f.Section(SectionAdmins).Key("admin_users").String())
	if f.HasSection(SectionPortalAdmins) {
		cfg.PortalAdmins = SplitList(f.Section(SectionPortalAdmins).Key("admin_users").String())
	}
	cfg.StatsPath = strings.TrimSpace(f.Section(SectionStatsPath).Key("path").String())
	if cfg.StatsPath == "" {
		return DefaultConfig(), fmt.Errorf("config: [%s] path is empty in %s", SectionStatsPath, path)
	}

	if f.HasSection(SectionReport) {
		readReport(f.Section(SectionReport), &cfg.Report)
	}
	if f.HasSection(SectionCache) {
		s := f.Section(SectionCache)
		cfg.Cache.RedisAddr = strings.TrimSpace(s.Key("redis_addr").String())
		cfg.Cache.RedisDB = s.Key("redis_db").MustInt(0)
		cfg.Cache.TTL = s.Key("ttl").MustDuration(cfg.Cache.TTL)
	}
	if f.HasSection(SectionServer) {
		if v := strings.TrimSpace(f.Section(SectionServer).Key("listen").String()); v != "" {
			cfg.Server.Listen = v
		}
	}
	if f.HasSection(SectionIngest) {
		s := f.Section(SectionIngest)
		cfg.Ingest.BatchSize = s.Key("batch_size").MustInt(cfg.Ingest.BatchSize)
		cfg.Ingest.ConnectRetries = s.Key("connect_retries").MustInt(cfg.Ingest.ConnectRetries)
		cfg.Ingest.ConnectDelay = s.Key("connect_delay").MustDuration(cfg.Ingest.ConnectDelay)
	}
	if f.HasSection(SectionLogging) {
		if v := strings.TrimSpace(f.Section(SectionLogging).Key("level").String()); v != "" {
			cfg.LogLevel = v
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	return nil
}

func readDB(s *ini.Section, defaultDriver string) DBConfig {
	c := DBConfig{
		Driver:   strings.ToLower(strings.TrimSpace(s.Key("driver").MustString(defaultDriver))),
		Host:     strings.TrimSpace(s.Key("host").String()),
		User:     strings.TrimSpace(s.Key("user").String()),
		Password: s.Key("password").String(),
		Database: strings.TrimSpace(s.Key("database").String()),
		Path:     strings.TrimSpace(s.Key("path").String()),
	}
	c.Port = s.Key("port").MustInt(defaultPort(c.Driver))
	return c
}

func defaultPort(driver string) int {
	switch driver {
	case "postgres":
		return 5432
	case "mysql":
		return 3306
	default:
		return 0
	}
}

func readReport(s *ini.Section, r *ReportConfig) {
	r.SystemID = s.Key("system_id").MustInt(r.SystemID)
	r.ExtractSystemID = s.Key("extract_system_id").MustInt(r.ExtractSystemID)
	if s.HasKey("project_prefix") {
		r.ProjectPrefix = strings.TrimSpace(s.Key("project_prefix").String())
	}
	if s.HasKey("extract_project_prefix") {
		r.ExtractProjectPrefix = strings.TrimSpace(s.Key("extract_project_prefix").String())
	}
	r.HomeDepartmentID = s.Key("home_department_id").MustInt64(r.HomeDepartmentID)
	if v := strings.TrimSpace(s.Key("home_label").String()); v != "" {
		r.HomeLabel = v
	}
	r.InstitutionPrecision = s.Key("institution_precision").MustInt(r.InstitutionPrecision)
	r.ProjectPrecision = s.Key("project_precision").MustInt(r.ProjectPrecision)
	r.DemographicPrecision = s.Key("demographic_precision").MustInt(r.DemographicPrecision)
	r.ResidualBuckets = s.Key("residual_buckets").MustBool(r.ResidualBuckets)
	if s.HasKey("discard_accounts") {
		r.DiscardAccounts = SplitList(s.Key("discard_accounts").String())
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDBPassword); v != "" {
		cfg.EventStore.Password = v
	}
	if v := os.Getenv(EnvDirectoryPassword); v != "" {
		cfg.Directory.Password = v
	}
	if v := os.Getenv(EnvPortalPassword); v != "" {
		cfg.PortalMySQL.Password = v
		cfg.PortalPostgres.Password = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		cfg.Cache.RedisAddr = v
	}
}

func normalize(cfg *Config) {
	d := DefaultConfig()
	if cfg.Ingest.BatchSize <= 0 {
		cfg.Ingest.BatchSize = d.Ingest.BatchSize
	}
	if cfg.Ingest.ConnectRetries <= 0 {
		cfg.Ingest.ConnectRetries = 1
	}
	if cfg.Ingest.ConnectDelay < 0 {
		cfg.Ingest.ConnectDelay = 0
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = d.Cache.TTL
	}
	for _, p := range []*int{&cfg.Report.InstitutionPrecision, &cfg.Report.ProjectPrecision, &cfg.Report.DemographicPrecision} {
		if *p < 0 {
			*p = 0
		}
	}
}

// SplitList parses a comma separated list. Values may be wrapped in single or
// double quotes; empty entries are dropped.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		v := strings.TrimSpace(part)
		v = strings.Trim(v, `'"`)
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
