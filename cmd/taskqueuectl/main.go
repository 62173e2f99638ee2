// Command taskqueuectl is a demonstration harness for the task scheduler
// library: it runs a queue loaded with synthetic work and either prints its
// final stats, watches it live in a terminal dashboard, or serves its state
// over MCP for an external inspector.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/ByteMirror/taskqueue/dashboard"
	"github.com/ByteMirror/taskqueue/internal/pool"
	"github.com/ByteMirror/taskqueue/internal/xlog"
	"github.com/ByteMirror/taskqueue/mcpserver"
	"github.com/ByteMirror/taskqueue/priority"
	"github.com/ByteMirror/taskqueue/queue"
	"github.com/ByteMirror/taskqueue/task"
)

const version = "0.1.0"

var (
	taskCountFlag int
	workersFlag   int
	slotsFlag     int
	seedFlag      int64

	rootCmd = &cobra.Command{
		Use:   "taskqueuectl",
		Short: "Drive and inspect a task scheduler queue",
	}

	demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Run a queue loaded with synthetic tasks to completion and print its stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			xlog.Initialize()
			defer xlog.Close()

			q, wp, cleanup := buildDemoQueue()
			defer cleanup()

			seedDemoTasks(q)
			q.Start()

			if !q.WaitTimeout(30 * time.Second) {
				return fmt.Errorf("demo queue did not finish within 30s")
			}

			printStats(q.Stats())
			_ = wp
			return nil
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Run a queue loaded with synthetic tasks and watch it live in a terminal dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			xlog.Initialize()
			defer xlog.Close()

			q, _, cleanup := buildDemoQueue()
			defer cleanup()

			seedDemoTasks(q)
			q.Start()

			return dashboard.Run(q, slotsFlag)
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run a queue loaded with synthetic tasks and serve its state over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			xlog.Initialize()
			defer xlog.Close()

			q, _, cleanup := buildDemoQueue()
			defer cleanup()

			seedDemoTasks(q)
			q.Start()

			return mcpserver.New(q).Serve()
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of taskqueuectl",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("taskqueuectl version %s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().IntVarP(&taskCountFlag, "tasks", "n", 20, "number of synthetic tasks to generate")
	rootCmd.PersistentFlags().IntVarP(&workersFlag, "workers", "w", 4, "worker pool size backing the queue")
	rootCmd.PersistentFlags().IntVarP(&slotsFlag, "slots", "s", 4, "maximum simultaneous tasks the queue may run")
	rootCmd.PersistentFlags().Int64Var(&seedFlag, "seed", 1, "random seed for synthetic task generation")

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func buildDemoQueue() (*queue.TaskQueue, pool.Dispatcher, func()) {
	wp := pool.New(pool.Config{MaxWorkers: workersFlag})
	if err := wp.Start(); err != nil {
		xlog.Error.Printf("failed to start worker pool: %v", err)
	}

	q := queue.New(queue.Config{Name: "demo", MaxSimultaneous: slotsFlag}, wp)
	cleanup := func() {
		q.Close()
		_ = wp.Shutdown(context.Background())
	}
	return q, wp, cleanup
}

// demoTask simulates a short unit of work by sleeping for a random interval.
type demoTask struct {
	*task.Base
	workTime time.Duration
}

func (t *demoTask) Execute() bool {
	time.Sleep(t.workTime)
	return true
}

func (t *demoTask) Finish() {}

func seedDemoTasks(q *queue.TaskQueue) {
	rng := rand.New(rand.NewSource(seedFlag))
	bands := []priority.Band{priority.BandUnimportant, priority.BandLow, priority.BandMedium, priority.BandHigh, priority.BandCritical}

	for i := 0; i < taskCountFlag; i++ {
		band := bands[rng.Intn(len(bands))]
		t := &demoTask{
			Base:     task.NewBase(priority.FromBand(band), task.QoSDefault),
			workTime: time.Duration(50+rng.Intn(200)) * time.Millisecond,
		}
		q.Add(t)
	}
}

func printStats(stats map[string]int) {
	fmt.Println("Queue finished. Final stats:")
	for _, key := range []string{"total", "succeeded", "failed", "cancelled", "paused", "running", "waiting"} {
		fmt.Printf("  %-10s %d\n", key, stats[key])
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
	}
}
