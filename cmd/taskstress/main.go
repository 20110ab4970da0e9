package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"

	tasking "github.com/taskweave/go-tasking"
	"github.com/taskweave/go-tasking/config"
	"github.com/taskweave/go-tasking/core"
	"github.com/taskweave/go-tasking/logging/zaplog"
)

func main() {
	app := &cli.App{
		Name:  "taskstress",
		Usage: "stress the tasking scheduler with synthetic DAG workloads",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "workers",
				Usage: "worker count (0 = config file / NumCPU)",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a tasking YAML config file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "fib",
				Usage: "recursive fibonacci DAG built from start dependencies",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "n", Value: 30, Usage: "fibonacci input"},
				},
				Action: runFib,
			},
			{
				Name:  "set",
				Usage: "one large task set claimed by every worker",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "size", Value: 1_000_000, Usage: "number of indices"},
				},
				Action: runSet,
			},
			{
				Name:  "storm",
				Usage: "mixed-priority burst of independent tasks",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "tasks", Value: 100_000, Usage: "number of tasks"},
				},
				Action: runStorm,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func startPool(c *cli.Context) error {
	cfg := config.Load(c.String("config"))
	if w := c.Int("workers"); w > 0 {
		cfg.Workers = w
	}
	cfg.Logger = zaplog.NewFromEnv()
	return tasking.Start(cfg)
}

func report(name string, tasks int64, elapsed time.Duration) {
	stats := tasking.Stats()
	fmt.Printf("%s: %d tasks in %v (%.0f tasks/s, %d steals, %d chunks)\n",
		name, tasks, elapsed,
		float64(tasks)/elapsed.Seconds(), stats.Stolen, stats.Chunks)
}

// runFib unfolds fib(n) as a dynamic DAG: every node spawns its two
// children and a join task that sums their results once both are done.
func runFib(c *cli.Context) error {
	if err := startPool(c); err != nil {
		return err
	}
	defer tasking.End()

	n := c.Int("n")
	var spawned atomic.Int64
	result := make(chan uint64, 1)

	begin := time.Now()
	root := fibTask(context.Background(), n, &spawned, func(v uint64) {
		result <- v
		tasking.InterruptMain()
	})
	root.Scheduled()
	tasking.Enter()

	v := <-result
	report("fib", spawned.Load(), time.Since(begin))
	fmt.Printf("fib(%d) = %d\n", n, v)
	return nil
}

func fibTask(ctx context.Context, n int, spawned *atomic.Int64, deliver func(uint64)) *core.Task {
	spawned.Add(1)
	var self *core.Task
	self = tasking.NewTask(ctx, "fib", func(ctx context.Context) *core.Task {
		if n < 2 {
			deliver(uint64(n))
			return nil
		}
		var left, right uint64
		join := tasking.NewTask(ctx, "join", func(ctx context.Context) *core.Task {
			deliver(left + right)
			return nil
		})
		spawned.Add(1)
		a := fibTask(ctx, n-1, spawned, func(v uint64) { left = v })
		b := fibTask(ctx, n-2, spawned, func(v uint64) { right = v })
		// The join delivers this node's value, so this node is not done
		// until the join ran; a parent waiting on this node through
		// Starts therefore sees the whole subtree finished.
		join.Ends(self)
		a.Starts(join)
		b.Starts(join)
		join.Scheduled()
		a.Scheduled()
		// Run the second branch as a continuation on this worker.
		return b
	})
	return self
}

func runSet(c *cli.Context) error {
	if err := startPool(c); err != nil {
		return err
	}
	defer tasking.End()

	size := c.Int("size")
	var sum atomic.Int64

	begin := time.Now()
	ctx := context.Background()
	set := tasking.NewTaskSet(ctx, "sweep", size, func(ctx context.Context, index int) {
		sum.Add(int64(index))
	})
	after := tasking.NewTask(ctx, "drain", func(ctx context.Context) *core.Task {
		tasking.InterruptMain()
		return nil
	})
	set.Starts(after)
	set.Scheduled()
	after.Scheduled()
	tasking.Enter()

	report("set", int64(size), time.Since(begin))
	fmt.Printf("sum of [0,%d) = %d\n", size, sum.Load())
	return nil
}

func runStorm(c *cli.Context) error {
	if err := startPool(c); err != nil {
		return err
	}
	defer tasking.End()

	tasks := c.Int("tasks")
	var remaining atomic.Int64
	remaining.Store(int64(tasks))

	priorities := []core.TaskPriority{
		core.PriorityCritical, core.PriorityHigh,
		core.PriorityNormal, core.PriorityLow,
	}

	begin := time.Now()
	ctx := context.Background()
	for i := 0; i < tasks; i++ {
		t := tasking.NewTask(ctx, "unit", func(ctx context.Context) *core.Task {
			if remaining.Add(-1) == 0 {
				tasking.InterruptMain()
			}
			return nil
		})
		t.SetPriority(priorities[i%len(priorities)])
		t.Scheduled()
	}
	tasking.Enter()

	report("storm", int64(tasks), time.Since(begin))
	return nil
}
