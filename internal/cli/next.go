package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dandantas/grabber/internal/scheduler"
)

func NewNextCmd(deps *Dependencies) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Print the upcoming recording slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := deps.Config.Schedule
			return printSlots(cmd, time.Now().UTC(), s.Interval(), s.LeadTime(), s.RecordLength(), count)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of slots to print")
	return cmd
}

func printSlots(cmd *cobra.Command, now time.Time, interval, lead, record time.Duration, count int) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "CONFIGURE\tRECORD START\tRECORD STOP\n")
	for i := 0; i < count; i++ {
		slot, err := scheduler.NextSlot(now, interval, lead)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			slot.At.Format(time.RFC3339),
			slot.Nominal.Format(time.RFC3339),
			slot.Nominal.Add(record).Format(time.RFC3339),
		)
		now = slot.At
	}
	fmt.Fprintf(w, "lead time %s\n", lead)
	return w.Flush()
}
