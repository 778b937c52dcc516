package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigRequiresAnAllowedRoot(t *testing.T) {
	if _, err := loadConfig(nil); err == nil {
		t.Fatal("loadConfig with no allowed roots anywhere should fail")
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := loadConfig([]string{"-allowed-roots", "/tmp/proj"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	want := defaultDaemonConfig()
	if cfg.ScanPeriodSeconds != want.ScanPeriodSeconds ||
		cfg.TaskboardWorkers != want.TaskboardWorkers ||
		cfg.TaskboardDefaultTimeoutSeconds != want.TaskboardDefaultTimeoutSeconds ||
		cfg.MaxScriptIndexBytes != want.MaxScriptIndexBytes ||
		cfg.ContextLines != want.ContextLines {
		t.Errorf("cfg = %+v, want defaults with AllowedRoots set", cfg)
	}
	if len(cfg.AllowedRoots) != 1 || cfg.AllowedRoots[0] != "/tmp/proj" {
		t.Errorf("AllowedRoots = %v", cfg.AllowedRoots)
	}
}

func TestLoadConfigEnvOverridesFileAndFlagsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "librarian.yaml")
	yamlBody := "allowed_roots:\n  - /from/file\nscan_period_seconds: 10\ntaskboard_workers: 3\n"
	if err := os.WriteFile(configPath, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("LIBRARIAN_SCAN_PERIOD_SECONDS", "20")
	t.Setenv("LIBRARIAN_TASKBOARD_WORKERS", "5")

	cfg, err := loadConfig([]string{"-config", configPath, "-taskboard-workers", "7"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if len(cfg.AllowedRoots) != 1 || cfg.AllowedRoots[0] != "/from/file" {
		t.Errorf("AllowedRoots = %v, want the file's value (no env/flag override present)", cfg.AllowedRoots)
	}
	if cfg.ScanPeriodSeconds != 20 {
		t.Errorf("ScanPeriodSeconds = %d, want 20 (env overrides file)", cfg.ScanPeriodSeconds)
	}
	if cfg.TaskboardWorkers != 7 {
		t.Errorf("TaskboardWorkers = %d, want 7 (flag overrides env and file)", cfg.TaskboardWorkers)
	}
}

func TestLoadConfigEnvAllowedRoots(t *testing.T) {
	t.Setenv("LIBRARIAN_ALLOWED_ROOTS", "/a"+string(os.PathListSeparator)+"/b")
	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if len(cfg.AllowedRoots) != 2 || cfg.AllowedRoots[0] != "/a" || cfg.AllowedRoots[1] != "/b" {
		t.Errorf("AllowedRoots = %v", cfg.AllowedRoots)
	}
}

func TestLoadConfigRejectsUnreadableConfigFile(t *testing.T) {
	_, err := loadConfig([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil {
		t.Fatal("loadConfig should fail when -config points at a missing file")
	}
}

func TestLoadConfigBooleanFlagsOnlyEverSetTrue(t *testing.T) {
	cfg, err := loadConfig([]string{"-allowed-roots", "/tmp/proj", "-debug", "-reject-large-projects"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !cfg.Debug || !cfg.RejectLargeProjects {
		t.Errorf("cfg = %+v, want Debug and RejectLargeProjects true", cfg)
	}
	if cfg.AllowCrossDeviceMove {
		t.Error("AllowCrossDeviceMove should remain false when its flag isn't passed")
	}
}

func TestToolsConfigAdaptsDaemonConfig(t *testing.T) {
	cfg := defaultDaemonConfig()
	cfg.ContextLines = 5
	cfg.MaxScriptIndexBytes = 1024
	cfg.AllowCrossDeviceMove = true
	cfg.RejectLargeProjects = true

	tc := cfg.toolsConfig()
	if tc.ContextLines != 5 {
		t.Errorf("ContextLines = %d, want 5", tc.ContextLines)
	}
	if tc.WriteConfig.MaxScriptIndexBytes != 1024 {
		t.Errorf("MaxScriptIndexBytes = %d, want 1024", tc.WriteConfig.MaxScriptIndexBytes)
	}
	if !tc.AllowCrossDeviceMove || !tc.RejectLargeProjects {
		t.Errorf("tc = %+v, want both flags carried through", tc)
	}
}
