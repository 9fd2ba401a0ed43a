package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wegman-software/osmhuge/internal/logger"
	"github.com/wegman-software/osmhuge/internal/pbf"
	"github.com/wegman-software/osmhuge/internal/replication"
)

var headerStateOut string

var headerCmd = &cobra.Command{
	Use:   "header <input.osm.pbf>",
	Short: "Print the header block of a PBF file",
	Long: `Print bounds, features, writing program and replication fields of a
PBF header. With --state-out the replication sequence and timestamp are
written as an osmosis state.txt file.`,
	Args: cobra.ExactArgs(1),
	Run:  runHeader,
}

func init() {
	rootCmd.AddCommand(headerCmd)

	headerCmd.Flags().StringVar(&headerStateOut, "state-out", "", "Write the replication state to this file")
}

func runHeader(cmd *cobra.Command, args []string) {
	f, err := os.Open(args[0])
	if err != nil {
		exitWithError("failed to open input", err)
	}
	defer f.Close()

	src, err := pbf.NewSource(f, pbf.WithLogger(logger.Get()))
	if err != nil {
		exitWithError("failed to read header", err)
	}
	defer src.Close()

	h := src.Header()
	if err := printHeader(cmd.OutOrStdout(), h); err != nil {
		exitWithError("failed to print header", err)
	}

	if headerStateOut != "" {
		state, err := replication.FromHeader(h)
		if err != nil {
			exitWithError("cannot write state", err)
		}
		if err := replication.WriteStateFile(headerStateOut, state); err != nil {
			exitWithError("cannot write state", err)
		}
	}
}

func printHeader(w io.Writer, h *pbf.HeaderBlock) error {
	var b strings.Builder
	fmt.Fprintf(&b, "writing program:   %s\n", h.WritingProgram)
	if h.Source != "" {
		fmt.Fprintf(&b, "source:            %s\n", h.Source)
	}
	fmt.Fprintf(&b, "required features: %s\n", strings.Join(h.RequiredFeatures, ", "))
	if len(h.OptionalFeatures) > 0 {
		fmt.Fprintf(&b, "optional features: %s\n", strings.Join(h.OptionalFeatures, ", "))
	}
	if h.Bounds != nil {
		fmt.Fprintf(&b, "bounds:            %.7f,%.7f,%.7f,%.7f\n", h.Bounds.MinLon, h.Bounds.MinLat, h.Bounds.MaxLon, h.Bounds.MaxLat)
	}

	state, err := replication.FromHeader(h)
	switch {
	case errors.Is(err, replication.ErrNoReplication):
	case err != nil:
		return err
	default:
		fmt.Fprintf(&b, "replication:       %d at %s\n", state.SequenceNumber, state.Timestamp.UTC().Format(time.RFC3339))
		if h.ReplicationBaseURL != "" {
			src := replication.Source{BaseURL: h.ReplicationBaseURL}
			fmt.Fprintf(&b, "next state:        %s\n", src.StateURL(state.SequenceNumber+1))
		}
	}

	_, err = io.WriteString(w, b.String())
	return err
}
