// ============================================================================
// Falcon-SQL CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra-based command line interface (spec §5.6).
//
// Command Structure:
//   falcon-sql                     # Root command
//   ├── serve                      # Start engine + scheduler + worker pool
//   │   │                          # + TCP front end + metrics endpoint
//   │   └── --config, -c           # Specify config file
//   ├── exec                       # One-shot statement batch against a
//   │   │                          # running server
//   │   ├── --addr                 # Server address (default 127.0.0.1:5432)
//   │   └── --stmt, -s             # Statement text to run
//   ├── status                     # Show config + WAL summary
//   │   └── wal                    # WAL debug subcommand
//   │       ├── --stats            # Print aggregate WAL statistics
//   │       ├── --validate         # Checksum-validate every WAL record
//   │       └── --dump             # Human-readable dump of every record
//   └── --version / --help
//
// serve Command:
//   1. Load config file
//   2. Start the metrics HTTP server, if enabled
//   3. Build a Runtime via internal/config.Builder (Local/Replica/Remote)
//   4. Start the TCP front end
//   5. Wait for SIGINT/SIGTERM, then shut down in reverse order
//
// ============================================================================

package cli

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/falcon-sql/internal/config"
	"github.com/ChuLiYu/falcon-sql/internal/metrics"
	"github.com/ChuLiYu/falcon-sql/internal/server"
	"github.com/ChuLiYu/falcon-sql/internal/storage/wal"
)

var configFile string

// BuildCLI assembles the falcon-sql command tree.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "falcon-sql",
		Short: "Falcon-SQL: a per-client fair scheduler for an embedded SQL server",
		Long: `Falcon-SQL schedules SQL statement batches from many concurrent
clients fairly across a worker pool, with WAL-based durability and
snapshot-based recovery.`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildExecCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Falcon-SQL server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	return cmd
}

func runServe() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Printf("metrics server error: %v", err)
			}
		}()
		log.Printf("metrics server listening on :%d/metrics", cfg.Metrics.Port)
	}

	builder := config.NewBuilder().
		WorkerCount(cfg.Worker.WorkerCount).
		Metrics(collector).
		Storage(cfg.WAL.BufferSize, cfg.WALFlushInterval(), cfg.SnapshotInterval(), cfg.Worker.QueueSize)
	if cfg.Replication.Enabled {
		builder.Replica(cfg.Replication.NodeID, cfg.Replication.Listen, cfg.Replication.Peers, cfg.WAL.Dir, cfg.Snapshot.Dir)
	} else {
		builder.Local(cfg.WAL.Dir, cfg.Snapshot.Dir)
	}

	rt, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to assemble runtime: %w", err)
	}

	if err := rt.Controller.Start(); err != nil {
		return fmt.Errorf("failed to start controller: %w", err)
	}

	if rt.ReplServer != nil {
		go func() {
			if err := rt.ReplServer.Serve(); err != nil {
				slog.Default().Error("replication server stopped", "error", err)
			}
		}()
		rt.Replication.Start()
		log.Printf("replication listening on %s", rt.ReplServer.Addr())
	}

	srv, err := server.New(cfg.Server.ListenAddr, rt.Controller.ServerMessages())
	if err != nil {
		return fmt.Errorf("failed to start front end: %w", err)
	}
	go func() {
		if err := srv.Serve(); err != nil {
			log.Printf("front end stopped: %v", err)
		}
	}()
	log.Printf("falcon-sql listening on %s", srv.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("received shutdown signal, stopping gracefully...")
	srv.Close()
	rt.Controller.Stop()
	if rt.Replication != nil {
		rt.Replication.Stop()
		rt.ReplServer.Close()
	}
	log.Println("falcon-sql stopped")
	return nil
}

func buildExecCommand() *cobra.Command {
	var addr string
	var stmt string

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run one statement batch against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stmt == "" {
				return fmt.Errorf("statement is required (use --stmt or -s)")
			}
			return runExec(addr, stmt)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:5432", "server address")
	cmd.Flags().StringVarP(&stmt, "stmt", "s", "", "statement text to run")
	cmd.MarkFlagRequired("stmt")

	return cmd
}

func runExec(addr, stmt string) error {
	client := config.NewRemoteClient(addr)
	defer client.Close()

	result, err := client.Exec(stmt)
	if err != nil {
		return fmt.Errorf("exec failed: %w", err)
	}
	if result.Error != "" {
		return fmt.Errorf("server error: %s", result.Error)
	}

	for _, row := range result.Rows {
		fmt.Println(row)
	}
	return nil
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and WAL status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
	cmd.AddCommand(buildWALCommand())
	return cmd
}

func showStatus() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("Falcon-SQL status")
	fmt.Printf("  config file:      %s\n", configFile)
	fmt.Printf("  listen address:   %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  worker count:     %d\n", cfg.Worker.WorkerCount)
	fmt.Printf("  wal dir:          %s\n", cfg.WAL.Dir)
	fmt.Printf("  snapshot dir:     %s\n", cfg.Snapshot.Dir)
	fmt.Printf("  snapshot every:   %ds\n", cfg.Snapshot.IntervalSeconds)
	if cfg.Metrics.Enabled {
		fmt.Printf("  metrics:          enabled on :%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Println("  metrics:          disabled")
	}
	if cfg.Replication.Enabled {
		fmt.Printf("  replication:      node %s listening on %s, peers %v\n", cfg.Replication.NodeID, cfg.Replication.Listen, cfg.Replication.Peers)
	}

	if stats, err := wal.GetWALStats(cfg.WAL.Dir); err == nil {
		fmt.Println()
		fmt.Println("WAL summary:")
		fmt.Printf("  total events:     %d\n", stats.TotalEvents)
		fmt.Printf("  sequence range:   %d..%d\n", stats.FirstSeq, stats.LastSeq)
		fmt.Printf("  corrupted:        %d\n", stats.CorruptedCount)
	}

	return nil
}

func buildWALCommand() *cobra.Command {
	var showStats, validate, dump bool

	cmd := &cobra.Command{
		Use:   "wal",
		Short: "Inspect the write-ahead log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWALInspect(showStats, validate, dump)
		},
	}

	cmd.Flags().BoolVar(&showStats, "stats", false, "print aggregate WAL statistics")
	cmd.Flags().BoolVar(&validate, "validate", false, "checksum-validate every WAL record")
	cmd.Flags().BoolVar(&dump, "dump", false, "dump every WAL record")

	return cmd
}

func runWALInspect(showStats, validate, dump bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !showStats && !validate && !dump {
		showStats = true
	}

	if validate {
		if err := wal.ValidateWAL(cfg.WAL.Dir); err != nil {
			return fmt.Errorf("wal validation failed: %w", err)
		}
		fmt.Println("wal is valid")
	}

	if showStats {
		stats, err := wal.GetWALStats(cfg.WAL.Dir)
		if err != nil {
			return fmt.Errorf("failed to read wal stats: %w", err)
		}
		fmt.Printf("total events:   %d\n", stats.TotalEvents)
		fmt.Printf("sequence range: %d..%d\n", stats.FirstSeq, stats.LastSeq)
		fmt.Printf("time range:     %s .. %s\n",
			time.UnixMilli(stats.TimeRange[0]).Format(time.RFC3339),
			time.UnixMilli(stats.TimeRange[1]).Format(time.RFC3339))
		for evType, count := range stats.EventTypes {
			fmt.Printf("  %s: %d\n", evType, count)
		}
	}

	if dump {
		if err := wal.DumpWAL(cfg.WAL.Dir, os.Stdout); err != nil {
			return fmt.Errorf("failed to dump wal: %w", err)
		}
	}

	return nil
}
