// Command simcored is a demo/driver binary for the moosecore dispatch
// core: it loads a cluster-topology config, wires up a tiny two-element
// registry, runs a handful of tick_clear_queue cycles appending synthetic
// records, and prints a report() dump of what moved through the buffers.
// It exists to exercise the library end to end, much like
// coordinator/cmd/coordinator drives the coordinator package.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moose-platform/moosecore/common/go/logging"
	"github.com/moose-platform/moosecore/common/go/recbuf"
	"github.com/moose-platform/moosecore/internal/config"
	"github.com/moose-platform/moosecore/internal/dispatch"
	"github.com/moose-platform/moosecore/internal/exchange"
	"github.com/moose-platform/moosecore/internal/registry"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
	// Ticks is the number of tick_clear_queue cycles to run before
	// reporting.
	Ticks int
}

var rootCmd = &cobra.Command{
	Use:   "simcored",
	Short: "Demo driver for the moosecore message dispatch core",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := run(cmd); err != nil {
			if errors.Is(err, Interrupted{}) {
				return nil
			}
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the cluster-topology YAML file (required)")
	rootCmd.MarkFlagRequired("config")
	rootCmd.Flags().IntVarP(&cmd.Ticks, "ticks", "t", 4, "Number of tick cycles to run before reporting")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	cfg, err := config.Load(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	reg, sourceID := buildDemoRegistry()

	manager := dispatch.NewGroupManager(int(cfg.BlockSize), dispatch.WithLog(log))
	var groupID uint32
	for _, g := range cfg.Groups {
		groupID, err = manager.AddGroup(g.Threads, g.Nodes)
		if err != nil {
			return fmt.Errorf("failed to register group: %w", err)
		}
	}

	var coll exchange.Collective = exchange.NewLocal()
	if cfg.Multinode() {
		tcp, err := exchange.NewTCPCollective(cfg.Cluster.NodeIndex, cfg.Cluster.Peers, log)
		if err != nil {
			return fmt.Errorf("failed to start exchange: %w", err)
		}
		defer tcp.Close()
		coll = tcp
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runTicks(ctx, log, manager, reg, coll, groupID, sourceID, cmd.Ticks)
}

type Interrupted struct {
	os.Signal
}

func (m Interrupted) Error() string {
	return m.String()
}

// buildDemoRegistry wires a minimal two-element scenario: "particles"
// forwards updates to "fields" via a 1:1 binding, exercising the same
// record shape every ClearQueue cycle dispatches.
func buildDemoRegistry() (*registry.Registry, registry.MessageID) {
	particles := registry.NewSimpleElement("particles", false)
	fields := registry.NewSimpleElement("fields", true)
	particles.SetLocal(0, 1, 2, 3)

	const updateFn registry.FunctionID = 1
	fields.RegisterHandler(updateFn, registry.HandlerFunc(func(target recbuf.DataId, h recbuf.Header, payload []byte) error {
		return nil
	}))

	const sourceID registry.MessageID = 1
	reg := registry.New()
	reg.Register(sourceID, &registry.SimpleBinding{
		E1Ref:      particles,
		E2Ref:      fields,
		FunctionID: updateFn,
	})
	return reg, sourceID
}

func runTicks(ctx context.Context, log *zap.SugaredLogger, manager *dispatch.GroupManager, reg *registry.Registry, coll exchange.Collective, groupID uint32, sourceID registry.MessageID, ticks int) error {
	proc := registry.ProcInfo{
		NodeIndex:         uint32(coll.NodeIndex()),
		NumNodesInGroup:   uint32(coll.NumNodes()),
		ThreadIndexGroup:  0,
		NumThreadsInGroup: 1,
		GroupID:           groupID,
	}

	for tick := 0; tick < ticks; tick++ {
		tq, err := manager.ThreadQueue(0)
		if err != nil {
			return err
		}
		header := recbuf.Header{
			IsForward: true,
			MessageID: sourceID,
			FunctionID: 1,
			SrcIndex:  recbuf.DataId{Row: uint32(tick % 4)},
		}
		payload := []byte(fmt.Sprintf("tick-%d", tick))
		if err := tq.Append(reg, header, payload); err != nil {
			return fmt.Errorf("append failed on tick %d: %w", tick, err)
		}

		if err := manager.MPIClearQueue(ctx, proc, reg, coll); err != nil {
			return fmt.Errorf("clear_queue failed on tick %d: %w", tick, err)
		}
		log.Infow("tick complete", "tick", tick)
	}

	return manager.Report(os.Stdout, reg, "")
}
