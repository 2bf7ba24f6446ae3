package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rmsched/internal/control"
	"rmsched/internal/job"
	"rmsched/internal/sched"
)

// parseTaskSpec parses "id:period:budget" in protocol time units.
func parseTaskSpec(s string, unit time.Duration) (job.Periodic, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return job.Periodic{}, fmt.Errorf("task %q: want id:period:budget", s)
	}
	var nums [3]uint64
	for i, name := range []string{"id", "period", "budget"} {
		n, err := parseUint(name, parts[i])
		if err != nil {
			return job.Periodic{}, fmt.Errorf("task %q: %w", s, err)
		}
		nums[i] = n
	}
	return job.Periodic{
		ID:     sched.TaskID(nums[0]),
		Period: time.Duration(nums[1]) * unit,
		Budget: time.Duration(nums[2]) * unit,
	}, nil
}

func newDemoCmd() *cobra.Command {
	var (
		specs   []string
		jobs    int
		load    float64
		work    string
		csvPath string
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run periodic tasks in-process and print the schedule status",
		Example: "  rmsched demo --task 1:50:10 --task 2:100:20 --jobs 5\n" +
			"  rmsched demo --task 1:50:10 --task 2:10:8   # second task is rejected",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(specs) == 0 {
				specs = []string{"1:500:100", "2:1000:200", "3:2000:200"}
			}
			unit := cfg.TimeUnit()
			pool := job.NewPool(false, logger)

			var tasks []job.Periodic
			for _, spec := range specs {
				p, err := parseTaskSpec(spec, unit)
				if err != nil {
					return err
				}
				d := time.Duration(float64(p.Budget) * load)
				p.Proc = pool.Spawn(p.ID)
				switch work {
				case "spin":
					p.Work = job.SpinWork(d, p.Proc)
				case "sleep":
					p.Work = job.SleepWork(d)
				default:
					return fmt.Errorf("unknown --work %q (spin, sleep)", work)
				}
				p.Jobs = jobs
				tasks = append(tasks, p)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := sched.New(cfg, pool, sched.WithLogger(logger))
			if csvPath != "" {
				if err := s.EnableCSVLogging(csvPath); err != nil {
					return err
				}
			}

			runCtx, cancelRun := context.WithCancel(ctx)
			runDone := make(chan struct{})
			go func() {
				defer close(runDone)
				_ = s.Run(runCtx)
			}()

			var wg sync.WaitGroup
			for _, p := range tasks {
				wg.Add(1)
				go func(p job.Periodic) {
					defer wg.Done()
					defer pool.Exit(p.ID)
					n, err := p.Run(ctx, s)
					if err != nil {
						logger.Warn("periodic task stopped", "task", p.ID, "jobs", n, "error", err)
						return
					}
					logger.Info("periodic task finished", "task", p.ID, "jobs", n)
				}(p)
			}

			// let registrations land before the first snapshot
			time.Sleep(10 * time.Millisecond)
			fmt.Fprint(cmd.OutOrStdout(), string(control.FormatStatus(s.Snapshot(), unit)))

			wg.Wait()
			s.Shutdown()
			cancelRun()
			<-runDone
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&specs, "task", nil, "Task as id:period:budget in time units (repeatable)")
	cmd.Flags().IntVar(&jobs, "jobs", 5, "Jobs (periods) each task runs before deregistering")
	cmd.Flags().Float64Var(&load, "load", 0.8, "Fraction of the budget each job actually computes")
	cmd.Flags().StringVar(&work, "work", "spin", "What a job does with its budget: spin (busy CPU) or sleep")
	cmd.Flags().StringVar(&csvPath, "csv", "", "Write lifecycle events to this CSV file")
	return cmd
}
