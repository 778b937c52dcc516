package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aitoolkit/librarian-mcp/internal/librarian"
	"github.com/aitoolkit/librarian-mcp/internal/tools"
)

// fileConfig is the shape of an optional YAML config file.
type fileConfig struct {
	AllowedRoots                   []string `yaml:"allowed_roots"`
	ScanPeriodSeconds              int      `yaml:"scan_period_seconds"`
	TaskboardWorkers               int      `yaml:"taskboard_workers"`
	TaskboardDefaultTimeoutSeconds int      `yaml:"taskboard_default_timeout_seconds"`
	MaxScriptIndexBytes            int      `yaml:"max_script_index_bytes"`
	ContextLines                   int      `yaml:"context_lines"`
	Debug                          bool     `yaml:"debug"`
	RejectLargeProjects            bool     `yaml:"reject_large_projects"`
	AllowCrossDeviceMove           bool     `yaml:"allow_cross_device_move"`
}

// daemonConfig is the fully resolved process configuration, assembled
// flags > env > config file > defaults.
type daemonConfig struct {
	AllowedRoots                   []string
	ScanPeriodSeconds              int
	TaskboardWorkers               int
	TaskboardDefaultTimeoutSeconds int
	MaxScriptIndexBytes            int
	ContextLines                   int
	Debug                          bool
	RejectLargeProjects            bool
	AllowCrossDeviceMove           bool
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		ScanPeriodSeconds:              30,
		TaskboardWorkers:               2,
		TaskboardDefaultTimeoutSeconds: 300,
		MaxScriptIndexBytes:            512_000,
		ContextLines:                   3,
	}
}

// loadConfig resolves the daemon's configuration from, in increasing
// priority: built-in defaults, an optional YAML config file, environment
// variables, and command-line flags.
func loadConfig(args []string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	fs := flag.NewFlagSet("librarian-mcp", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	allowedRootsFlag := fs.String("allowed-roots", "", "list of allow-listed project roots, separated by "+string(os.PathListSeparator))
	scanPeriod := fs.Int("scan-period-seconds", 0, "watcher poll period in seconds")
	workers := fs.Int("taskboard-workers", 0, "TaskBoard worker pool size")
	defaultTimeout := fs.Int("taskboard-default-timeout-seconds", 0, "default per-task timeout in seconds")
	maxIndexBytes := fs.Int("max-script-index-bytes", 0, "script_index.json size cap in bytes")
	contextLines := fs.Int("context-lines", 0, "context lines around find_implementation matches")
	debug := fs.Bool("debug", false, "enable debug logging")
	rejectLarge := fs.Bool("reject-large-projects", false, "reject initialize_librarian on oversized projects")
	allowCrossDevice := fs.Bool("allow-cross-device-move", false, "permit move_file to fall back to copy+unlink across devices")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	path := *configPath
	if path == "" {
		path = os.Getenv("LIBRARIAN_CONFIG_FILE")
	}
	if path != "" {
		fc, err := readFileConfig(path)
		if err != nil {
			return cfg, err
		}
		applyFileConfig(&cfg, fc)
	}

	applyEnvConfig(&cfg)

	if *allowedRootsFlag != "" {
		cfg.AllowedRoots = strings.Split(*allowedRootsFlag, string(os.PathListSeparator))
	}
	if *scanPeriod > 0 {
		cfg.ScanPeriodSeconds = *scanPeriod
	}
	if *workers > 0 {
		cfg.TaskboardWorkers = *workers
	}
	if *defaultTimeout > 0 {
		cfg.TaskboardDefaultTimeoutSeconds = *defaultTimeout
	}
	if *maxIndexBytes > 0 {
		cfg.MaxScriptIndexBytes = *maxIndexBytes
	}
	if *contextLines > 0 {
		cfg.ContextLines = *contextLines
	}
	if *debug {
		cfg.Debug = true
	}
	if *rejectLarge {
		cfg.RejectLargeProjects = true
	}
	if *allowCrossDevice {
		cfg.AllowCrossDeviceMove = true
	}

	if len(cfg.AllowedRoots) == 0 {
		return cfg, fmt.Errorf("at least one allowed root is required (-allowed-roots, LIBRARIAN_ALLOWED_ROOTS, or a config file's allowed_roots)")
	}
	return cfg, nil
}

func readFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file: %w", err)
	}
	return fc, nil
}

func applyFileConfig(cfg *daemonConfig, fc fileConfig) {
	if len(fc.AllowedRoots) > 0 {
		cfg.AllowedRoots = fc.AllowedRoots
	}
	if fc.ScanPeriodSeconds > 0 {
		cfg.ScanPeriodSeconds = fc.ScanPeriodSeconds
	}
	if fc.TaskboardWorkers > 0 {
		cfg.TaskboardWorkers = fc.TaskboardWorkers
	}
	if fc.TaskboardDefaultTimeoutSeconds > 0 {
		cfg.TaskboardDefaultTimeoutSeconds = fc.TaskboardDefaultTimeoutSeconds
	}
	if fc.MaxScriptIndexBytes > 0 {
		cfg.MaxScriptIndexBytes = fc.MaxScriptIndexBytes
	}
	if fc.ContextLines > 0 {
		cfg.ContextLines = fc.ContextLines
	}
	cfg.Debug = cfg.Debug || fc.Debug
	cfg.RejectLargeProjects = cfg.RejectLargeProjects || fc.RejectLargeProjects
	cfg.AllowCrossDeviceMove = cfg.AllowCrossDeviceMove || fc.AllowCrossDeviceMove
}

func applyEnvConfig(cfg *daemonConfig) {
	if v := os.Getenv("LIBRARIAN_ALLOWED_ROOTS"); v != "" {
		cfg.AllowedRoots = strings.Split(v, string(os.PathListSeparator))
	}
	if v, ok := envInt("LIBRARIAN_SCAN_PERIOD_SECONDS"); ok {
		cfg.ScanPeriodSeconds = v
	}
	if v, ok := envInt("LIBRARIAN_TASKBOARD_WORKERS"); ok {
		cfg.TaskboardWorkers = v
	}
	if v, ok := envInt("LIBRARIAN_TASKBOARD_DEFAULT_TIMEOUT_SECONDS"); ok {
		cfg.TaskboardDefaultTimeoutSeconds = v
	}
	if v, ok := envInt("LIBRARIAN_MAX_SCRIPT_INDEX_BYTES"); ok {
		cfg.MaxScriptIndexBytes = v
	}
	if v, ok := envInt("LIBRARIAN_CONTEXT_LINES"); ok {
		cfg.ContextLines = v
	}
	if os.Getenv("LIBRARIAN_DEBUG") != "" {
		cfg.Debug = true
	}
	if os.Getenv("LIBRARIAN_REJECT_LARGE_PROJECTS") != "" {
		cfg.RejectLargeProjects = true
	}
	if os.Getenv("LIBRARIAN_ALLOW_CROSS_DEVICE_MOVE") != "" {
		cfg.AllowCrossDeviceMove = true
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// toolsConfig adapts the resolved daemon configuration into the tools
// package's Config shape.
func (c daemonConfig) toolsConfig() tools.Config {
	return tools.Config{
		ContextLines:         c.ContextLines,
		WriteConfig:          librarian.Config{MaxScriptIndexBytes: c.MaxScriptIndexBytes},
		AllowCrossDeviceMove: c.AllowCrossDeviceMove,
		RejectLargeProjects:  c.RejectLargeProjects,
		MaxProjectFiles:      50_000,
	}
}
