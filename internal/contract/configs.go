package contract

import (
	"fmt"
	"maps"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/schema"
)

// Default values for configuration.
const (
	DefaultLookbackDays = 7
	DefaultPrecision    = 4
	MaxPrecision        = 8
	DefaultLag          = "5s"
	DefaultTimeout      = "5m"
	DefaultArchiveDir   = "archived"
)

// DefaultWorkers is the default number of users processed concurrently.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// DateTimeFormat is the default date time representation.
var DateTimeFormat = time.RFC3339

// PolicyRawInput holds the footprint policy overrides from the YAML config file.
// Pointer fields distinguish "not set" from zero.
type PolicyRawInput struct {
	Intensities        map[string]float64 `mapstructure:"intensities"`
	OptimalIntensity   *float64           `mapstructure:"optimal-intensity"`
	LongMotorizedModes []string           `mapstructure:"long-motorized-modes"`
	ShortTripMeters    *float64           `mapstructure:"short-trip-meters"`
	DailyGoalKg        *float64           `mapstructure:"daily-goal-kg"`
	ScaleGoalToWindow  bool               `mapstructure:"scale-goal-to-window"`
}

// Config holds the runtime configuration.
// This struct remains the "final, validated" config.
type Config struct {
	UserID    uuid.UUID // uuid.Nil means every user in the store
	StartTime time.Time
	EndTime   time.Time
	Workers   int
	Stages    []schema.PipelineStage
	TimeField schema.TimeField

	Precision  int
	Output     schema.OutputMode
	OutputFile string
	Width      int // Terminal width override (0 = auto-detect)
	UseColors  bool

	Backend   schema.DatabaseBackend
	DBConnect string // Please use env var as this is plaintext

	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext
	UseCache       bool

	ArchiveDir string
	Purge      bool
	Parquet    bool
	Lag        time.Duration
	Timeout    time.Duration

	Policy schema.FootprintPolicy
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// --- Fields from rootCmd.PersistentFlags() ---
	User           string `mapstructure:"user"`
	Start          string `mapstructure:"start"`
	End            string `mapstructure:"end"`
	Workers        int    `mapstructure:"workers"`
	Precision      int    `mapstructure:"precision"`
	Output         string `mapstructure:"output"`
	OutputFile     string `mapstructure:"output-file"`
	Width          int    `mapstructure:"width"`
	Color          string `mapstructure:"color"`
	Backend        string `mapstructure:"backend"`
	DBConnect      string `mapstructure:"db-connect"`
	CacheBackend   string `mapstructure:"cache-backend"`
	CacheDBConnect string `mapstructure:"cache-db-connect"`
	Timeout        string `mapstructure:"timeout"`

	// --- Fields from pipeline and export flags ---
	ArchiveDir string `mapstructure:"archive-dir"`
	Lag        string `mapstructure:"lag"`
	Stages     string `mapstructure:"stages"`
	TimeField  string `mapstructure:"time-field"`
	Purge      bool   `mapstructure:"purge"`
	Parquet    bool   `mapstructure:"parquet"`

	// --- Fields from scoreCmd.Flags() ---
	Cache bool `mapstructure:"cache"`

	// --- Footprint policy from config file ---
	Policy PolicyRawInput `mapstructure:"policy"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Stages != nil {
		clone.Stages = make([]schema.PipelineStage, len(c.Stages))
		copy(clone.Stages, c.Stages)
	}
	clone.Policy = ClonePolicy(c.Policy)
	return &clone
}

// ClonePolicy deep-copies the policy maps.
func ClonePolicy(p schema.FootprintPolicy) schema.FootprintPolicy {
	out := p
	if p.Intensities != nil {
		out.Intensities = make(map[schema.Mode]float64, len(p.Intensities))
		maps.Copy(out.Intensities, p.Intensities)
	}
	if p.LongMotorized != nil {
		out.LongMotorized = make(map[schema.Mode]struct{}, len(p.LongMotorized))
		maps.Copy(out.LongMotorized, p.LongMotorized)
	}
	return out
}

// ProcessAndValidate performs all complex parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := processTimeRange(cfg, input); err != nil {
		return err
	}
	if err := processPipelineInputs(cfg, input); err != nil {
		return err
	}
	if err := processPolicy(cfg, input); err != nil {
		return err
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr, flagName string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("%s is required when using %s backend", flagName, backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("%s is required when using %s backend", flagName, backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// ValidateBackends checks the store and cache backend settings.
func ValidateBackends(cfg *Config, input *ConfigRawInput) error {
	// --- Store Backend Validation ---
	cfg.Backend = schema.DatabaseBackend(strings.ToLower(input.Backend))
	if _, ok := schema.ValidDatabaseBackends[cfg.Backend]; !ok || cfg.Backend == schema.NoneBackend {
		return fmt.Errorf("invalid backend '%s'. must be sqlite, mysql, postgresql", input.Backend)
	}
	cfg.DBConnect = input.DBConnect
	if err := ValidateDatabaseConnectionString(cfg.Backend, cfg.DBConnect, "db-connect"); err != nil {
		return err
	}

	// --- Cache Backend Validation ---
	cfg.CacheBackend = schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if _, ok := schema.ValidDatabaseBackends[cfg.CacheBackend]; !ok {
		return fmt.Errorf("invalid cache backend '%s'. must be sqlite, mysql, postgresql, none", input.CacheBackend)
	}
	cfg.CacheDBConnect = input.CacheDBConnect
	if err := ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect, "cache-db-connect"); err != nil {
		return err
	}

	// The store and cache must not share one SQLite file
	if cfg.Backend == schema.SQLiteBackend && cfg.CacheBackend == schema.SQLiteBackend {
		storePath := cfg.DBConnect
		if storePath == "" {
			storePath = GetStoreDBFilePath()
		}
		cachePath := cfg.CacheDBConnect
		if cachePath == "" {
			cachePath = GetCacheDBFilePath()
		}
		if storePath == cachePath {
			return fmt.Errorf("store and cache must use different SQLite database files. Both resolve to %q", storePath)
		}
	}
	return nil
}

// validateSimpleInputs processes and validates all non-time fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	// --- 0. Transfer simple non-validated fields from input -> cfg ---
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.Purge = input.Purge
	cfg.Parquet = input.Parquet
	cfg.UseCache = input.Cache

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	// --- 1. User Validation ---
	cfg.UserID = uuid.Nil
	if strings.TrimSpace(input.User) != "" {
		user, err := ParseUserID(input.User)
		if err != nil {
			return err
		}
		cfg.UserID = user
	}

	// --- 2. Workers Validation ---
	if input.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0 (received %d)", input.Workers)
	}
	cfg.Workers = input.Workers

	// --- 3. Precision and Output Validation ---
	if input.Precision < 1 || input.Precision > MaxPrecision {
		return fmt.Errorf("precision must be between 1 and %d (received %d)", MaxPrecision, input.Precision)
	}
	cfg.Precision = input.Precision

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, csv, json, parquet", input.Output)
	}

	// --- 4. Backend Validation ---
	return ValidateBackends(cfg, input)
}

// processTimeRange handles the date parsing and time range validation.
func processTimeRange(cfg *Config, input *ConfigRawInput) error {
	now := time.Now()
	cfg.EndTime = now
	cfg.StartTime = cfg.EndTime.Add(-DefaultLookbackDays * 24 * time.Hour)

	if input.Start != "" {
		t, err := ParseTimeInput(input.Start, now)
		if err != nil {
			return fmt.Errorf("invalid start date format for '%s'. Expected absolute ISO8601, epoch seconds or 'N [units] ago': %w", input.Start, err)
		}
		cfg.StartTime = t
	}

	if input.End != "" {
		t, err := ParseTimeInput(input.End, now)
		if err != nil {
			return fmt.Errorf("invalid end date format for '%s'. Expected absolute ISO8601, epoch seconds or 'N [units] ago': %w", input.End, err)
		}
		cfg.EndTime = t
	}

	if cfg.StartTime.After(cfg.EndTime) {
		return fmt.Errorf("start time (%s) cannot be after end time (%s)", cfg.StartTime.Format(DateTimeFormat), cfg.EndTime.Format(DateTimeFormat))
	}
	return nil
}

// processPipelineInputs handles the archive, lag, timeout and stage settings.
func processPipelineInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.ArchiveDir = strings.TrimSpace(input.ArchiveDir)
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = DefaultArchiveDir
	}

	lag, err := ParseLagDuration(input.Lag)
	if err != nil {
		return fmt.Errorf("invalid lag: %w", err)
	}
	cfg.Lag = lag

	timeout, err := ParseLookbackDuration(input.Timeout)
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	cfg.Timeout = timeout

	cfg.TimeField = schema.TimeField(strings.ToLower(strings.TrimSpace(input.TimeField)))
	if cfg.TimeField == "" {
		cfg.TimeField = schema.TimeFieldData
	}
	if _, ok := schema.ValidTimeFields[cfg.TimeField]; !ok {
		return fmt.Errorf("invalid time field '%s'. must be data.ts or metadata.write_ts", input.TimeField)
	}

	stages, err := ParseStages(input.Stages)
	if err != nil {
		return err
	}
	cfg.Stages = stages
	return nil
}

// ParseStages parses a comma-separated stage list. An empty string selects every stage.
// The result keeps pipeline order regardless of input order.
func ParseStages(s string) ([]schema.PipelineStage, error) {
	if strings.TrimSpace(s) == "" {
		return append([]schema.PipelineStage(nil), schema.AllStages...), nil
	}
	wanted := make(map[schema.PipelineStage]struct{})
	for part := range strings.SplitSeq(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		stage := schema.PipelineStage(strings.ReplaceAll(part, "-", "_"))
		if _, ok := schema.ValidStages[stage]; !ok {
			return nil, fmt.Errorf("invalid stage '%s'. must be CONFIRM_TRIPS, EXPORT, SCORE", part)
		}
		wanted[stage] = struct{}{}
	}
	var out []schema.PipelineStage
	for _, stage := range schema.AllStages {
		if _, ok := wanted[stage]; ok {
			out = append(out, stage)
		}
	}
	return out, nil
}

// processPolicy merges policy overrides onto the default footprint policy.
func processPolicy(cfg *Config, input *ConfigRawInput) error {
	policy, err := BuildPolicy(input.Policy)
	if err != nil {
		return err
	}
	cfg.Policy = policy
	return nil
}

// BuildPolicy converts raw policy input into a validated FootprintPolicy.
func BuildPolicy(raw PolicyRawInput) (schema.FootprintPolicy, error) {
	policy := schema.DefaultFootprintPolicy()

	for name, value := range raw.Intensities {
		if value < 0 {
			return policy, fmt.Errorf("intensity for mode %s cannot be negative (received %f)", name, value)
		}
		policy.Intensities[schema.ParseMode(name)] = value
	}
	if raw.OptimalIntensity != nil {
		if *raw.OptimalIntensity < 0 {
			return policy, fmt.Errorf("optimal intensity cannot be negative (received %f)", *raw.OptimalIntensity)
		}
		policy.OptimalIntensity = *raw.OptimalIntensity
	}
	if raw.LongMotorizedModes != nil {
		policy.LongMotorized = make(map[schema.Mode]struct{}, len(raw.LongMotorizedModes))
		for _, name := range raw.LongMotorizedModes {
			mode := schema.ParseMode(name)
			if mode == schema.ModeUnconfirmed {
				continue
			}
			policy.LongMotorized[mode] = struct{}{}
		}
	}
	if raw.ShortTripMeters != nil {
		if *raw.ShortTripMeters < 0 {
			return policy, fmt.Errorf("short trip distance cannot be negative (received %f)", *raw.ShortTripMeters)
		}
		policy.ShortTripMeters = *raw.ShortTripMeters
	}
	if raw.DailyGoalKg != nil {
		if *raw.DailyGoalKg < 0 {
			return policy, fmt.Errorf("daily goal cannot be negative (received %f)", *raw.DailyGoalKg)
		}
		policy.DailyGoalKg = *raw.DailyGoalKg
	}
	policy.ScaleGoalToWindow = raw.ScaleGoalToWindow
	return policy, nil
}

// RevalidateWindow overrides the user, time range and stages of a cloned config.
// Empty strings keep the current values. It is used by tool calls that arrive
// after the initial configuration was validated.
func RevalidateWindow(cfg *Config, user, start, end, stages string) error {
	if strings.TrimSpace(user) != "" {
		u, err := ParseUserID(user)
		if err != nil {
			return err
		}
		cfg.UserID = u
	}

	now := time.Now()
	if start != "" {
		t, err := ParseTimeInput(start, now)
		if err != nil {
			return fmt.Errorf("invalid start '%s': %w", start, err)
		}
		cfg.StartTime = t
	}
	if end != "" {
		t, err := ParseTimeInput(end, now)
		if err != nil {
			return fmt.Errorf("invalid end '%s': %w", end, err)
		}
		cfg.EndTime = t
	}
	if cfg.StartTime.After(cfg.EndTime) {
		return fmt.Errorf("start time (%s) cannot be after end time (%s)", cfg.StartTime.Format(DateTimeFormat), cfg.EndTime.Format(DateTimeFormat))
	}

	if stages != "" {
		parsed, err := ParseStages(stages)
		if err != nil {
			return err
		}
		cfg.Stages = parsed
	}
	return nil
}

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// ProcessProfilingConfig enables profiling when a file prefix is given.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}
