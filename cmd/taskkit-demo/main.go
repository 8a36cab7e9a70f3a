// Command taskkit-demo drives a small fleet of tasks through a manually
// ticked scheduler while exporting scheduler/pool/allocator metrics over
// Prometheus, the way examples/prometheus_metrics/main.go demonstrated the
// teacher's GoroutineThreadPool.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/taskkit/taskkit"
	obs "github.com/taskkit/taskkit/observability/prometheus"
)

func main() {
	app := &cli.App{
		Name:  "taskkit-demo",
		Usage: "drive a TaskKit scheduler tick loop while exporting metrics",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Value: 4, Usage: "thread pool size"},
			&cli.IntFlag{Name: "tasks", Aliases: []string{"n"}, Value: 8, Usage: "number of demo tasks to spawn"},
			&cli.DurationFlag{Name: "tick", Value: 5 * time.Millisecond, Usage: "scheduler tick interval"},
			&cli.StringFlag{Name: "metrics-addr", Value: ":2112", Usage: "address to serve /metrics on"},
			&cli.DurationFlag{Name: "linger", Value: 2 * time.Second, Usage: "how long to keep serving /metrics after tasks finish"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	reg := prom.NewRegistry()
	exporter, err := obs.NewMetricsExporter(reg, obs.ExporterOptions{})
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to build metrics exporter: %v", err), 1)
	}

	rt := taskkit.Initialize(
		taskkit.WithThreadPoolSize(c.Int("workers")),
		taskkit.WithMainThreadSchedulerCount(1),
		taskkit.WithMetrics(exporter),
	)
	defer taskkit.Shutdown()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: c.String("metrics-addr"), Handler: mux}

	go func() {
		_ = server.ListenAndServe()
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	id := rt.GetMainThreadSchedulerIds()[0]
	mainThread := id.ThreadID()
	deactivate := rt.ActivateScheduler(mainThread, id)
	defer deactivate()

	n := c.Int("tasks")
	tasks := make([]*taskkit.Task[int], n)
	for i := 0; i < n; i++ {
		i := i
		tasks[i] = taskkit.New(rt.Spawn(mainThread), func(ctx *taskkit.Ctx) (int, error) {
			if err := ctx.DelayFrame(i % 3); err != nil {
				return 0, err
			}
			return taskkit.RunOnThreadPool(ctx, func() (int, error) {
				time.Sleep(5 * time.Millisecond)
				return i * i, nil
			})
		})
	}

	ticker := time.NewTicker(c.Duration("tick"))
	defer ticker.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for !allReady(tasks) && time.Now().Before(deadline) {
		<-ticker.C
		rt.UpdateActivatedScheduler(mainThread)
	}

	sum := 0
	for _, t := range tasks {
		v, err := t.Result()
		if err != nil {
			return cli.Exit(fmt.Sprintf("task failed: %v", err), 1)
		}
		sum += v
	}

	fmt.Printf("ran %d tasks to completion, sum of results = %d\n", n, sum)
	fmt.Printf("Prometheus endpoint is up at http://127.0.0.1%s/metrics\n", c.String("metrics-addr"))
	fmt.Println("Try: curl -s http://127.0.0.1" + c.String("metrics-addr") + "/metrics | grep '^taskkit_'")

	time.Sleep(c.Duration("linger"))
	return nil
}

func allReady(tasks []*taskkit.Task[int]) bool {
	for _, t := range tasks {
		if !t.IsReady() {
			return false
		}
	}
	return true
}
