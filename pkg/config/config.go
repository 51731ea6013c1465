package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/logsweep/logsweep/pkg/buildinfo"
	"github.com/logsweep/logsweep/pkg/flagparse"
	"github.com/logsweep/logsweep/pkg/lockfile"
	"github.com/logsweep/logsweep/pkg/plog"
	"github.com/logsweep/logsweep/pkg/util"
)

// DefaultConfigFileName is the name of the configuration file when -config
// is not given. A .yaml or .yml extension switches the parser to YAML.
const DefaultConfigFileName = "logsweep.config.json"

// DefaultStateDir is the conventional home of the tool's mutable state:
// reports, the append log, the history database and the daemon lock.
const DefaultStateDir = "~/.logsweep"

// DefaultConfigPath returns the conventional configuration file location.
// It lives inside the default state directory so the daemon watches a
// directory it created itself, independent of the working directory it was
// started from.
func DefaultConfigPath() string {
	return filepath.Join(DefaultStateDir, DefaultConfigFileName)
}

// Job modes.
const (
	ModeLocal = "local"
	ModeFTP   = "ftp"
)

// Clamp floors, matching the long-standing behavior of the tool: a tick or
// timeout below these values hammers servers without making cleanup faster.
const (
	MinTickSeconds    = 5
	MinTimeoutSeconds = 5
)

// systemExcludeFilePatterns is a slice of file patterns that are always
// excluded from deletion so a job pointed at the wrong directory cannot eat
// the tool's own files.
var systemExcludeFilePatterns = []string{DefaultConfigFileName, lockfile.LockFileName}

// dayNames maps configuration day tokens to weekdays. Full names are
// tolerated by matching on the first three letters.
var dayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

type ReportsConfig struct {
	// Dir receives one report file per run. Empty means <stateDir>/reports.
	Dir string `json:"dir" yaml:"dir"`
	// Compress gzips the per-run report files.
	Compress bool `json:"compress" yaml:"compress"`
	// AppendFile is the rotated append-only log every report is rendered to.
	// Empty means <stateDir>/logsweep.log.
	AppendFile string `json:"appendFile" yaml:"appendFile"`
	MaxSizeMB  int    `json:"maxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays" yaml:"maxAgeDays"`
}

type HistoryConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Path of the SQLite database. Empty means <stateDir>/history.db.
	Path          string `json:"path" yaml:"path"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays"`
	// PruneSchedule is a standard cron expression for pruning old history rows.
	PruneSchedule string `json:"pruneSchedule" yaml:"pruneSchedule"`
}

type AppConfig struct {
	// TickSeconds is the scheduler polling interval.
	TickSeconds int    `json:"tickSeconds" yaml:"tickSeconds"`
	LogLevel    string `json:"logLevel" yaml:"logLevel"`
	// StateDir holds the lock file, reports and history database.
	StateDir string        `json:"stateDir" yaml:"stateDir"`
	Reports  ReportsConfig `json:"reports" yaml:"reports"`
	History  HistoryConfig `json:"history" yaml:"history"`
}

type FTPTargetConfig struct {
	Name     string `json:"name" yaml:"name"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	// TLS upgrades the control connection (explicit FTPS).
	TLS                bool `json:"tls" yaml:"tls"`
	InsecureSkipVerify bool `json:"insecureSkipVerify" yaml:"insecureSkipVerify"`
	// TimeoutSeconds bounds the connect and every subsequent command.
	TimeoutSeconds int `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

type ScheduleConfig struct {
	// Days holds lowercase three-letter weekday names ("mon".."sun").
	Days []string `json:"days" yaml:"days"`
	// At is the 24h fire time, "HH:MM".
	At string `json:"at" yaml:"at"`
}

type JobConfig struct {
	Name    string `json:"name" yaml:"name"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Mode    string `json:"mode" yaml:"mode"`
	// Roots are local absolute paths, or remote paths when mode is ftp.
	Roots []string `json:"roots" yaml:"roots"`
	// FTPTarget names the connection profile; required iff mode is ftp.
	FTPTarget      string   `json:"ftpTarget" yaml:"ftpTarget"`
	ExcludeFiles   []string `json:"excludeFiles" yaml:"excludeFiles"`
	ExcludeFolders []string `json:"excludeFolders" yaml:"excludeFolders"`
	DryRun         bool     `json:"dryRun" yaml:"dryRun"`
	// Schedule absent means the job only runs on explicit manual invocation.
	Schedule *ScheduleConfig `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	// SECURITY: These commands are executed as provided. Ensure they are from a trusted source.
	PreRunCommands []string `json:"preRunCommands" yaml:"preRunCommands"`
	// SECURITY: These commands are executed as provided. Ensure they are from a trusted source.
	PostRunCommands []string `json:"postRunCommands" yaml:"postRunCommands"`
}

// RuntimeConfig carries per-invocation values that never come from, or go
// into, the configuration file.
type RuntimeConfig struct {
	ConfigPath string
	JobName    string
	TargetName string
	// DryRun overrides the job's own flag when set.
	DryRun              *bool
	Force               bool
	Limit               int
	ExtraExcludeFiles   []string
	ExtraExcludeFolders []string
}

type Config struct {
	Version    string            `json:"version" yaml:"version"`
	App        AppConfig         `json:"app" yaml:"app"`
	FTPTargets []FTPTargetConfig `json:"ftpTargets" yaml:"ftpTargets"`
	Jobs       []JobConfig       `json:"jobs" yaml:"jobs"`
	Runtime    RuntimeConfig     `json:"-" yaml:"-"` // Never added to config file
}

// defaultJob carries the field defaults applied to every decoded job, so a
// job omitting "enabled" or "dryRun" gets the safe values: enabled, and
// simulating rather than deleting.
func defaultJob() JobConfig {
	return JobConfig{
		Enabled:         true,
		DryRun:          true,
		Mode:            ModeLocal,
		Roots:           []string{},
		ExcludeFiles:    []string{},
		ExcludeFolders:  []string{},
		PreRunCommands:  []string{},
		PostRunCommands: []string{},
	}
}

// defaultTarget carries the field defaults applied to every decoded target.
func defaultTarget() FTPTargetConfig {
	return FTPTargetConfig{
		Port:           21,
		TimeoutSeconds: 25,
	}
}

// UnmarshalJSON decodes a job over the job defaults so that missing optional
// fields keep their documented default values.
func (j *JobConfig) UnmarshalJSON(data []byte) error {
	type alias JobConfig
	tmp := alias(defaultJob())
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*j = JobConfig(tmp)
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML configuration files.
func (j *JobConfig) UnmarshalYAML(value *yaml.Node) error {
	type alias JobConfig
	tmp := alias(defaultJob())
	if err := value.Decode(&tmp); err != nil {
		return err
	}
	*j = JobConfig(tmp)
	return nil
}

// UnmarshalJSON decodes a target over the target defaults.
func (t *FTPTargetConfig) UnmarshalJSON(data []byte) error {
	type alias FTPTargetConfig
	tmp := alias(defaultTarget())
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*t = FTPTargetConfig(tmp)
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML configuration files.
func (t *FTPTargetConfig) UnmarshalYAML(value *yaml.Node) error {
	type alias FTPTargetConfig
	tmp := alias(defaultTarget())
	if err := value.Decode(&tmp); err != nil {
		return err
	}
	*t = FTPTargetConfig(tmp)
	return nil
}

// NewDefault creates and returns a Config struct with sensible default
// values. It contains no jobs or targets; those always come from the user.
func NewDefault() Config {
	return Config{
		Version: buildinfo.Version,
		App: AppConfig{
			TickSeconds: 15,      // Scheduler granularity well below the one-minute trigger resolution.
			LogLevel:    "info",  // Default log level.
			StateDir:    DefaultStateDir,
			Reports: ReportsConfig{
				Dir:        "", // Resolved to <stateDir>/reports during validation.
				Compress:   false,
				AppendFile: "", // Resolved to <stateDir>/logsweep.log during validation.
				MaxSizeMB:  10,
				MaxBackups: 5,
				MaxAgeDays: 30,
			},
			History: HistoryConfig{
				Enabled:       true,
				Path:          "", // Resolved to <stateDir>/history.db during validation.
				RetentionDays: 90,
				PruneSchedule: "0 3 * * *", // Daily at 03:00.
			},
		},
		FTPTargets: []FTPTargetConfig{},
		Jobs:       []JobConfig{},
	}
}

// Starter returns the config written by the init command: the defaults plus
// one disabled example job showing the conventional exclusion starter set.
func Starter() Config {
	c := NewDefault()
	example := defaultJob()
	example.Name = "example-web-logs"
	example.Enabled = false
	example.Roots = []string{"/var/log/web"}
	example.ExcludeFiles = []string{"*.json", "*.cfg"}
	example.ExcludeFolders = []string{"config", "settings"}
	example.Schedule = &ScheduleConfig{
		Days: []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"},
		At:   "03:00",
	}
	c.Jobs = append(c.Jobs, example)
	return c
}

// Load reads the configuration file at path. If the file doesn't exist, it
// returns the defaults without an error; a daemon with no config idles until
// one appears. A .yaml/.yml extension selects the YAML parser.
func Load(path string) (Config, error) {
	expanded, err := util.ExpandPath(path)
	if err != nil {
		return Config{}, err
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for config %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := NewDefault()
			cfg.Runtime.ConfigPath = absPath
			return cfg, nil // Config file doesn't exist, which is a normal case.
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", absPath, err)
	}

	plog.Info("Loading configuration", "path", absPath)
	// Start with default values, then overwrite with the file's content.
	// This makes the config loading resilient to missing fields.
	cfg := NewDefault()
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("error parsing config file %s: %w", absPath, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("error parsing config file %s: %w", absPath, err)
		}
	}

	// At this point our config has been migrated if needed so override the version in the struct
	if cfg.Version != buildinfo.Version {
		cfg.Version = buildinfo.Version
	}
	cfg.Runtime.ConfigPath = absPath
	return cfg, nil
}

// Generate creates or overwrites the configuration file at path.
func Generate(cfg Config, path string) error {
	jsonData, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	plog.Info("Successfully saved config file", "path", path)
	return nil
}

// Validate checks the configuration for logical errors and inconsistencies.
// It also resolves the state-dir-relative paths and clamps the floors, so a
// validated config is ready to use as-is.
func (c *Config) Validate() error {
	if c.App.TickSeconds < MinTickSeconds {
		plog.Warn("tickSeconds below minimum, clamping", "configured", c.App.TickSeconds, "minimum", MinTickSeconds)
		c.App.TickSeconds = MinTickSeconds
	}
	if _, err := plog.LevelFromString(c.App.LogLevel); err != nil {
		return fmt.Errorf("app.logLevel: %w", err)
	}

	// --- Resolve the state directory and everything defaulting under it ---
	stateDir, err := util.ExpandPath(c.App.StateDir)
	if err != nil {
		return fmt.Errorf("could not expand app.stateDir: %w", err)
	}
	if stateDir == "" {
		return fmt.Errorf("app.stateDir cannot be empty")
	}
	c.App.StateDir = filepath.Clean(stateDir)

	if c.App.Reports.Dir == "" {
		c.App.Reports.Dir = filepath.Join(c.App.StateDir, "reports")
	} else if c.App.Reports.Dir, err = util.ExpandPath(c.App.Reports.Dir); err != nil {
		return fmt.Errorf("could not expand app.reports.dir: %w", err)
	}
	if c.App.Reports.AppendFile == "" {
		c.App.Reports.AppendFile = filepath.Join(c.App.StateDir, "logsweep.log")
	} else if c.App.Reports.AppendFile, err = util.ExpandPath(c.App.Reports.AppendFile); err != nil {
		return fmt.Errorf("could not expand app.reports.appendFile: %w", err)
	}
	if c.App.History.Path == "" {
		c.App.History.Path = filepath.Join(c.App.StateDir, "history.db")
	} else if c.App.History.Path, err = util.ExpandPath(c.App.History.Path); err != nil {
		return fmt.Errorf("could not expand app.history.path: %w", err)
	}

	if c.App.Reports.MaxSizeMB < 1 {
		return fmt.Errorf("app.reports.maxSizeMB must be at least 1")
	}
	if c.App.Reports.MaxBackups < 0 || c.App.Reports.MaxAgeDays < 0 {
		return fmt.Errorf("app.reports.maxBackups and maxAgeDays cannot be negative")
	}
	if c.App.History.RetentionDays < 0 {
		return fmt.Errorf("app.history.retentionDays cannot be negative")
	}
	if c.App.History.Enabled && c.App.History.PruneSchedule == "" {
		return fmt.Errorf("app.history.pruneSchedule cannot be empty while history is enabled")
	}

	// --- Validate FTP targets ---
	targetNames := make(map[string]struct{}, len(c.FTPTargets))
	for i := range c.FTPTargets {
		t := &c.FTPTargets[i]
		if t.Name == "" {
			return fmt.Errorf("ftpTargets[%d].name cannot be empty", i)
		}
		if _, dup := targetNames[t.Name]; dup {
			return fmt.Errorf("duplicate ftp target name %q", t.Name)
		}
		targetNames[t.Name] = struct{}{}

		if t.Host == "" {
			return fmt.Errorf("ftp target %q: host cannot be empty", t.Name)
		}
		if t.Port < 1 || t.Port > 65535 {
			return fmt.Errorf("ftp target %q: port %d out of range", t.Name, t.Port)
		}
		if t.TimeoutSeconds < MinTimeoutSeconds {
			plog.Warn("timeoutSeconds below minimum, clamping", "target", t.Name, "configured", t.TimeoutSeconds, "minimum", MinTimeoutSeconds)
			t.TimeoutSeconds = MinTimeoutSeconds
		}
	}

	// --- Validate jobs ---
	jobNames := make(map[string]struct{}, len(c.Jobs))
	for i := range c.Jobs {
		j := &c.Jobs[i]
		if j.Name == "" {
			return fmt.Errorf("jobs[%d].name cannot be empty", i)
		}
		if _, dup := jobNames[j.Name]; dup {
			return fmt.Errorf("duplicate job name %q", j.Name)
		}
		jobNames[j.Name] = struct{}{}

		switch j.Mode {
		case ModeLocal:
			for k, root := range j.Roots {
				expanded, err := util.ExpandPath(root)
				if err != nil {
					return fmt.Errorf("job %q: could not expand root %q: %w", j.Name, root, err)
				}
				j.Roots[k] = filepath.Clean(expanded)
			}
		case ModeFTP:
			if j.FTPTarget == "" {
				return fmt.Errorf("job %q: mode is ftp but ftpTarget is empty", j.Name)
			}
			if _, ok := targetNames[j.FTPTarget]; !ok {
				return fmt.Errorf("job %q: ftpTarget %q does not exist", j.Name, j.FTPTarget)
			}
			for k, root := range j.Roots {
				j.Roots[k] = util.NormalizeRemotePath(root)
			}
		default:
			return fmt.Errorf("job %q: mode must be %q or %q, got %q", j.Name, ModeLocal, ModeFTP, j.Mode)
		}

		if len(j.Roots) == 0 {
			return fmt.Errorf("job %q: at least one root path is required", j.Name)
		}

		if j.Schedule != nil {
			if _, err := j.Schedule.Weekdays(); err != nil {
				return fmt.Errorf("job %q: %w", j.Name, err)
			}
			if _, _, err := j.Schedule.ClockTime(); err != nil {
				return fmt.Errorf("job %q: %w", j.Name, err)
			}
		}
	}

	return nil
}

// FindTarget resolves an FTP target by name.
func (c *Config) FindTarget(name string) (FTPTargetConfig, bool) {
	for _, t := range c.FTPTargets {
		if t.Name == name {
			return t, true
		}
	}
	return FTPTargetConfig{}, false
}

// FindJob resolves a job by name.
func (c *Config) FindJob(name string) (JobConfig, bool) {
	for _, j := range c.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return JobConfig{}, false
}

// EffectiveExcludeFiles returns the final, combined slice of file exclusion
// patterns for a job: non-overridable system patterns, the job's own
// patterns, and any extra patterns given on the command line.
func (c *Config) EffectiveExcludeFiles(j *JobConfig) []string {
	return util.MergeAndDeduplicate(systemExcludeFilePatterns, j.ExcludeFiles, c.Runtime.ExtraExcludeFiles)
}

// EffectiveExcludeFolders returns the combined folder exclusion names for a job.
func (c *Config) EffectiveExcludeFolders(j *JobConfig) []string {
	return util.MergeAndDeduplicate(j.ExcludeFolders, c.Runtime.ExtraExcludeFolders)
}

// EffectiveDryRun resolves the dry-run flag for a job, honoring a runtime
// override from the command line.
func (c *Config) EffectiveDryRun(j *JobConfig) bool {
	if c.Runtime.DryRun != nil {
		return *c.Runtime.DryRun
	}
	return j.DryRun
}

// Address returns the dialable host:port of the target.
func (t *FTPTargetConfig) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Timeout returns the per-command timeout as a duration.
func (t *FTPTargetConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// Weekdays parses the schedule's day set.
func (s *ScheduleConfig) Weekdays() (map[time.Weekday]struct{}, error) {
	if len(s.Days) == 0 {
		return nil, fmt.Errorf("schedule.days cannot be empty")
	}
	days := make(map[time.Weekday]struct{}, len(s.Days))
	for _, name := range s.Days {
		token := strings.ToLower(strings.TrimSpace(name))
		if len(token) > 3 {
			token = token[:3]
		}
		day, ok := dayNames[token]
		if !ok {
			return nil, fmt.Errorf("schedule.days: unknown day %q", name)
		}
		days[day] = struct{}{}
	}
	return days, nil
}

// ClockTime parses the schedule's "HH:MM" trigger time.
func (s *ScheduleConfig) ClockTime() (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s.At), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("schedule.at must be HH:MM, got %q", s.At)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("schedule.at has invalid hour %q", parts[0])
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("schedule.at has invalid minute %q", parts[1])
	}
	return hour, minute, nil
}

// Summary renders a one-line schedule description for listings.
func (s *ScheduleConfig) Summary() string {
	if s == nil {
		return "manual"
	}
	return fmt.Sprintf("%s@%s", strings.Join(s.Days, ","), s.At)
}

// LogSummary prints a user-friendly summary of the configuration to the
// logger. It respects the 'Quiet' setting.
func (c *Config) LogSummary() {
	logArgs := []interface{}{
		"config", c.Runtime.ConfigPath,
		"log_level", c.App.LogLevel,
		"tick_seconds", c.App.TickSeconds,
		"state_dir", c.App.StateDir,
		"jobs", len(c.Jobs),
		"ftp_targets", len(c.FTPTargets),
	}
	if c.App.History.Enabled {
		historySummary := fmt.Sprintf("enabled (r:%dd s:%s)", c.App.History.RetentionDays, c.App.History.PruneSchedule)
		logArgs = append(logArgs, "history", historySummary)
	}
	if c.App.Reports.Compress {
		logArgs = append(logArgs, "reports", "compressed")
	}
	plog.Info("Configuration loaded", logArgs...)

	for i := range c.Jobs {
		j := &c.Jobs[i]
		jobArgs := []interface{}{
			"job", j.Name,
			"enabled", j.Enabled,
			"mode", j.Mode,
			"roots", strings.Join(j.Roots, ", "),
			"dry_run", c.EffectiveDryRun(j),
			"schedule", j.Schedule.Summary(),
		}
		if j.Mode == ModeFTP {
			jobArgs = append(jobArgs, "ftp_target", j.FTPTarget)
		}
		if len(j.ExcludeFiles) > 0 {
			jobArgs = append(jobArgs, "exclude_files", strings.Join(j.ExcludeFiles, ", "))
		}
		if len(j.ExcludeFolders) > 0 {
			jobArgs = append(jobArgs, "exclude_folders", strings.Join(j.ExcludeFolders, ", "))
		}
		plog.Info("Job configured", jobArgs...)
	}
}

// MergeConfigWithFlags overlays the configuration values from flags on top of a base
// configuration. It iterates over the setFlags map, which contains only the flags
// explicitly provided by the user on the command line.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "config":
			// Consumed before loading; nothing to merge.
		case "log-level":
			merged.App.LogLevel = value.(string)
		case "tick":
			merged.App.TickSeconds = value.(int)
		case "state-dir":
			merged.App.StateDir = value.(string)
		case "job":
			merged.Runtime.JobName = value.(string)
		case "target":
			merged.Runtime.TargetName = value.(string)
		case "dry-run":
			switch command {
			case flagparse.Run, flagparse.Daemon:
				dryRun := value.(bool)
				merged.Runtime.DryRun = &dryRun
			default:
			}
		case "force":
			merged.Runtime.Force = value.(bool)
		case "limit":
			switch command {
			case flagparse.History:
				merged.Runtime.Limit = value.(int)
			default:
			}
		case "exclude-files":
			merged.Runtime.ExtraExcludeFiles = value.([]string)
		case "exclude-folders":
			merged.Runtime.ExtraExcludeFolders = value.([]string)
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged
}
