package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"rmsched/internal/control"
	"rmsched/internal/sched"
)

func parseUint(name, s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register ID PERIOD BUDGET",
		Short: "Register a periodic task (R,<id>,<period>,<budget>)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var nums [3]uint64
			for i, name := range []string{"id", "period", "budget"} {
				n, err := parseUint(name, args[i])
				if err != nil {
					return err
				}
				nums[i] = n
			}
			return client.Register(cmd.Context(), sched.TaskID(nums[0]), nums[1], nums[2])
		},
	}
}

func newYieldCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "yield ID",
		Short: "Yield the rest of the period and wait for the next dispatch (Y,<id>)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUint("id", args[0])
			if err != nil {
				return err
			}
			return client.Yield(cmd.Context(), sched.TaskID(id))
		},
	}
}

func newDeregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deregister ID",
		Short: "Remove a task (D,<id>)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUint("id", args[0])
			if err != nil {
				return err
			}
			return client.Deregister(cmd.Context(), sched.TaskID(id))
		},
	}
}

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send LINE",
		Short: "Send a raw control-channel line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := control.ParseRequest(args[0])
			if err != nil {
				return err
			}
			return client.Send(cmd.Context(), req)
		},
	}
}

func newStatusCmd() *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print every admitted task as <id>,<period>,<budget>,<state>",
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := client.Status(cmd.Context(), size)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, l := range lines {
				fmt.Fprintf(out, "%d,%d,%d,%d\t%s\n", l.ID, l.Period, l.Budget, int(l.State), l.State)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "Read capacity in bytes (0 = server default)")
	return cmd
}
