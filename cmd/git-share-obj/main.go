// Command git-share-obj deduplicates loose Git objects shared byte-for-byte
// across a collection of co-located repositories, replacing redundant
// copies with hard links to a single representative on disk.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lab.nexedi.com/kirr/git-share-obj/config"
	"lab.nexedi.com/kirr/git-share-obj/internal/sharedobj"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "git-share-obj [roots...]",
		Short: "Deduplicate loose Git objects across co-located repositories via hard links",
		Long: `git-share-obj scans a set of directory trees for Git repositories, groups
their loose objects by content, and replaces redundant copies with hard
links to a single representative — reclaiming disk space without touching
any repository's history.

Exit status:
  0  success (including --fsck-only with no failures)
  1  an input root does not exist, or a usage/configuration error
  2  a validation failure under --fsck-only
  3  a post-replacement validation failure, or a rollback itself failed —
     inspect *.git-share-obj.bak`,
		Args: cobra.MinimumNArgs(1),
		RunE: runMain,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.Flags().Bool("no-fsck", false, "skip pre- and post-replacement validation (spec: dangerous)")
	cmd.Flags().Bool("fsck-only", false, "validate every discovered repository; replace nothing")
	cmd.Flags().Bool("no-lock", false, "proceed without acquiring per-repository advisory locks (dangerous)")
	cmd.Flags().Bool("dry-run", false, "compute replacement plans without executing them")
	cmd.Flags().CountP("verbose", "v", "increase logging verbosity (repeatable: -v, -vv)")
	cmd.Flags().Bool("json", false, "emit the run summary as JSON instead of human-readable text")
	cmd.Flags().Duration("fsck-timeout", 10*time.Minute, "per-repository fsck timeout")
	cmd.Flags().Bool("verify-fingerprint", false, "re-derive each object's fingerprint via libgit2 instead of trusting its path")

	_ = v.BindPFlag("no-fsck", cmd.Flags().Lookup("no-fsck"))
	_ = v.BindPFlag("fsck-only", cmd.Flags().Lookup("fsck-only"))
	_ = v.BindPFlag("no-lock", cmd.Flags().Lookup("no-lock"))
	_ = v.BindPFlag("dry-run", cmd.Flags().Lookup("dry-run"))
	_ = v.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
	_ = v.BindPFlag("json", cmd.Flags().Lookup("json"))
	_ = v.BindPFlag("fsck-timeout", cmd.Flags().Lookup("fsck-timeout"))
	_ = v.BindPFlag("verify-fingerprint", cmd.Flags().Lookup("verify-fingerprint"))

	v.SetEnvPrefix("GIT_SHARE_OBJ")
	v.AutomaticEnv()

	return cmd
}()

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(int(sharedobj.ExitInvalidInput))
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	v.Set("roots", args)

	cfg, err := config.Load(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "git-share-obj:", err)
		os.Exit(int(sharedobj.ExitInvalidInput))
	}

	level := zerolog.InfoLevel
	switch {
	case cfg.Verbose >= 2:
		level = zerolog.TraceLevel
	case cfg.Verbose == 1:
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	orch := sharedobj.NewOrchestrator(log)
	summary, runErr := orch.Run(ctx, sharedobj.Options{
		Roots:             cfg.Roots,
		NoFsck:            cfg.NoFsck,
		FsckOnly:          cfg.FsckOnly,
		NoLock:            cfg.NoLock,
		DryRun:            cfg.DryRun,
		FsckTimeout:       cfg.FsckTimeout,
		VerifyFingerprint: cfg.VerifyFingerprint,
	})
	if runErr != nil {
		log.Error().Err(runErr).Msg("run encountered errors")
	}
	if summary == nil {
		os.Exit(int(sharedobj.ExitInvalidInput))
	}

	if cfg.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			log.Error().Err(err).Msg("encode summary")
		}
	} else {
		printSummary(summary)
	}

	os.Exit(int(summary.Exit))
	return nil
}

func printSummary(s *sharedobj.Summary) {
	fmt.Printf("run %s\n", s.RunID)
	for _, r := range s.Repos {
		status := "ok"
		if r.Skipped {
			status = "skipped: " + r.SkipReason
		}
		fmt.Printf("  %-60s %s\n", r.Root, status)
	}
	linked, rolledBack, failed := 0, 0, 0
	for _, r := range s.Replacements {
		switch r.Outcome {
		case sharedobj.Linked:
			linked++
		case sharedobj.RolledBack:
			rolledBack++
		case sharedobj.RollbackFailed:
			failed++
			fmt.Printf("  ROLLBACK-FAILED: %s -> %s: %s\n", r.Source, r.Target, r.Detail)
		}
	}
	fmt.Printf("linked=%d rolled-back=%d rollback-failed=%d reclaimed=%d bytes exit=%d\n",
		linked, rolledBack, failed, s.BytesReclaimed, s.Exit)
}
