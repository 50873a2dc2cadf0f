package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoadAppliesDefaultTimeout(t *testing.T) {
	v := viper.New()
	v.Set("roots", []string{"/tmp/repos"})

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if cfg.FsckTimeout != DefaultConfig().FsckTimeout {
		t.Errorf("FsckTimeout = %v, want the default", cfg.FsckTimeout)
	}
}

func TestLoadRejectsFsckOnlyAndDryRunTogether(t *testing.T) {
	v := viper.New()
	v.Set("roots", []string{"/tmp/repos"})
	v.Set("fsck-only", true)
	v.Set("dry-run", true)

	if _, err := Load(v); err == nil {
		t.Fatal("Load: expected an error when --fsck-only and --dry-run are both set")
	}
}

func TestLoadRequiresAtLeastOneRoot(t *testing.T) {
	v := viper.New()
	if _, err := Load(v); err == nil {
		t.Fatal("Load: expected an error when no roots are given")
	}
}
