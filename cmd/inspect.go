package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wegman-software/osmhuge/internal/coordindex"
	"github.com/wegman-software/osmhuge/internal/logger"
	"github.com/wegman-software/osmhuge/internal/pipeline"
	"github.com/wegman-software/osmhuge/internal/progress"
)

var (
	inspectID      int64
	inspectReverse bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <input.idx>",
	Short: "Show a summary of a coordinate index",
	Long: `Load a serialized coordinate index and print its size and usage.
With --id the coordinates stored for that id are printed as lat lon lines.`,
	Args: cobra.ExactArgs(1),
	Run:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().Int64Var(&inspectID, "id", -1, "Print the coordinates of this id")
	inspectCmd.Flags().BoolVar(&inspectReverse, "reverse", false, "Print coordinates in reverse order")
}

func runInspect(cmd *cobra.Command, args []string) {
	x, closeIndex, err := pipeline.OpenIndex(cfg, logger.Get(), args[0])
	if err != nil {
		exitWithError("failed to open index", err)
	}
	defer closeIndex()

	if err := inspect(cmd.OutOrStdout(), x, inspectID, inspectReverse); err != nil {
		exitWithError("inspect failed", err)
	}
}

func inspect(w io.Writer, x *coordindex.Index, id int64, reverse bool) error {
	if id >= 0 {
		c, ok := x.Get(id)
		if !ok {
			return fmt.Errorf("no coordinates for id %d", id)
		}
		if reverse {
			c = c.Reverse()
		}
		for p := range c.All() {
			if _, err := fmt.Fprintf(w, "%.7f %.7f\n", p.Lat, p.Lon); err != nil {
				return err
			}
		}
		return nil
	}

	var collections, coords int64
	for i := int64(0); i <= x.MaxID(); i++ {
		if c, ok := x.Get(i); ok {
			collections++
			coords += int64(c.Len())
		}
	}
	_, err := fmt.Fprintf(w, "entries:     %d\nmax id:      %d\ncollections: %d\ncoordinates: %d\npairs:       %d used / %d allocated (%s)\n",
		x.Len(), x.MaxID(), collections, coords,
		x.UsedPairs(), x.AllocatedPairs(), progress.FormatBytes(x.AllocatedPairs()*8))
	return err
}
