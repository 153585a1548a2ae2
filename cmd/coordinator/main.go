package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rotorhazard/clustercoord/internal/archive"
	"github.com/rotorhazard/clustercoord/internal/cluster"
	"github.com/rotorhazard/clustercoord/internal/config"
	"github.com/rotorhazard/clustercoord/internal/eventbus"
	"github.com/rotorhazard/clustercoord/internal/health"
	"github.com/rotorhazard/clustercoord/internal/racedata"
	"github.com/rotorhazard/clustercoord/internal/raceio"
)

// snapshotInterval paces the best-effort cluster-status archive independent
// of any disconnect episode.
const snapshotInterval = 5 * time.Minute

var (
	// Version information (set via ldflags at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// Command-line flags
	versionFlag bool
	dbBackend   string
	dbSQLite    string
	dbPostgres  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "RotorHazard cluster coordinator",
	Long:  "Manages split/mirror/action timer secondaries over long-lived MCP sessions on behalf of a primary race server",
	RunE:  run,
}

func init() {
	rootCmd.Flags().BoolVarP(&versionFlag, "version", "v", false, "Print version information and exit")
	rootCmd.Flags().StringVar(&dbBackend, "database", "", "Race-data backend: sqlite, postgres, or memory (default: memory)")
	rootCmd.Flags().StringVar(&dbSQLite, "sqlite-path", "", "SQLite database path (used when --database=sqlite)")
	rootCmd.Flags().StringVar(&dbPostgres, "postgres-url", "", "PostgreSQL connection string (used when --database=postgres)")
}

func run(cmd *cobra.Command, args []string) error {
	if versionFlag {
		fmt.Printf("coordinator version %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg.LogLevel)

	clusterFile, err := config.LoadClusterFile(cfg.ClusterFile)
	if err != nil {
		return fmt.Errorf("failed to load cluster file: %w", err)
	}

	printStartupBanner(cfg, clusterFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	race := raceio.NewMemoryRace()

	var data raceio.RaceData = race
	if dbBackend != "" && dbBackend != "memory" {
		store, err := racedata.NewStore(ctx, racedata.Config{
			Backend:     dbBackend,
			SQLitePath:  dbSQLite,
			PostgresURL: dbPostgres,
		})
		if err != nil {
			return fmt.Errorf("failed to open race-data backend: %w", err)
		}
		defer store.Close()
		data = store
		slog.Info("race-data backend initialized", "backend", dbBackend)
	} else {
		slog.Info("race-data backend initialized", "backend", "memory")
	}

	archiver, err := archive.NewArchiver(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize episode archiver: %w", err)
	}

	bus := eventbus.New()
	nodeSet := cluster.NewClusterNodeSet(race)

	for _, sc := range clusterFile.Secondaries {
		transport := cluster.NewMCPTransport(
			sc.Address,
			time.Duration(clusterFile.Tuning.TransportTimeoutSecs)*time.Second,
			cfg.ReleaseVersion,
		)
		session := cluster.NewSession(sc, transport, cluster.Deps{
			Race:     race,
			Data:     data,
			UI:       race,
			Bus:      busTrigger{bus},
			Tr:       race,
			Clock:    race,
			Archiver: archiver,
			Tuning:   clusterFile.Tuning,
		})
		nodeSet.AddSecondary(session)
		slog.Info("secondary registered", "index", sc.Index, "address", sc.Address, "mode", sc.Mode)
	}

	eventbus.NewRepeater(bus, nodeSet)

	go runStatusSnapshotLoop(ctx, nodeSet, race, archiver)

	if cfg.HealthPort > 0 {
		healthServer := health.NewServer(statusSource{nodeSet: nodeSet, tr: race}, cfg.HealthPort)
		go func() {
			slog.Info("starting health monitoring server", "port", cfg.HealthPort)
			if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("health server failed", "error", err)
			}
		}()
	} else {
		slog.Info("health monitoring server disabled", "reason", "health-port=0")
	}

	nodeSet.StartAll(ctx)
	defer nodeSet.Shutdown()

	slog.Info("cluster coordinator started", "secondary_count", len(clusterFile.Secondaries))

	<-ctx.Done()
	slog.Info("shutting down...")
	return nil
}

// runStatusSnapshotLoop archives a JSON cluster-status snapshot on a timer,
// independent of the per-race disconnect-episode reports.
func runStatusSnapshotLoop(ctx context.Context, nodeSet *cluster.ClusterNodeSet, tr raceio.Translator, archiver archive.Archive) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			statusJSON, err := json.Marshal(nodeSet.GetClusterStatusInfo(tr))
			if err != nil {
				slog.Error("failed to marshal cluster status snapshot", "error", err)
				continue
			}
			snapshotID := now.UTC().Format("20060102T150405Z")
			if _, err := archiver.SaveSnapshot(ctx, snapshotID, statusJSON); err != nil {
				slog.Warn("failed to archive cluster status snapshot", "snapshot_id", snapshotID, "error", err)
			}
		}
	}
}

// statusSource adapts a ClusterNodeSet and a fixed Translator to
// health.ClusterStatusSource, whose interface predates the Translate
// argument the node set's own status call needs.
type statusSource struct {
	nodeSet *cluster.ClusterNodeSet
	tr      raceio.Translator
}

func (s statusSource) GetClusterStatusInfo() interface{} {
	return s.nodeSet.GetClusterStatusInfo(s.tr)
}

// busTrigger adapts eventbus.Bus's Publish to the raceio.EventBus.Trigger
// signature sessions use to fire action-mode effects.
type busTrigger struct {
	bus *eventbus.Bus
}

func (b busTrigger) Trigger(ctx context.Context, name string, args map[string]any) {
	b.bus.Publish(ctx, name, args)
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

func printStartupBanner(cfg *config.Config, cf *config.ClusterFile) {
	archiveMode := "filesystem"
	if cfg.IsAzureArchiveEnabled() {
		archiveMode = "azure"
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         RotorHazard Cluster Coordinator                       ║")
	fmt.Printf("║         Version: %-45s║\n", truncateString(Version, 45))
	fmt.Printf("║         Built:   %-45s║\n", truncateString(BuildTime, 45))
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Cluster File:   %-45s ║\n", truncateString(cfg.ClusterFile, 45))
	fmt.Printf("║  Secondaries:    %-45s ║\n", fmt.Sprintf("%d configured", len(cf.Secondaries)))
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Archive Mode:   %-45s ║\n", archiveMode)
	fmt.Printf("║  Health Port:    %-45s ║\n", fmt.Sprintf("%d", cfg.HealthPort))
	fmt.Printf("║  Log Level:      %-45s ║\n", cfg.LogLevel)
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
