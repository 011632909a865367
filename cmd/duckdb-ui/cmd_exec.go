package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/virusdefender/duckdb-ui/internal/server"
	"github.com/virusdefender/duckdb-ui/internal/wire"
)

var (
	execConnection string
	execCatalog    string
	execChunks     int
)

func init() {
	execCmd.Flags().StringVar(&execConnection, "connection", "", "named connection to run on (default: a throwaway one)")
	execCmd.Flags().StringVar(&execCatalog, "database", "", "catalog to make current before running")
	execCmd.Flags().IntVar(&execChunks, "chunks", 0, "maximum result chunks to fetch")
	rootCmd.AddCommand(execCmd)
}

var execCmd = &cobra.Command{
	Use:   "exec SQL [PARAM...]",
	Short: "Run a query through a running UI server",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	running, err := server.ProbeRunning(cmd.Context(), cfg.Server.Port)
	if err != nil {
		return err
	}
	if running == nil {
		return errors.NotFoundf("UI server on port %d", cfg.Server.Port)
	}

	start := time.Now()
	frame, err := server.NewClient(running.URL).Run(cmd.Context(), server.Query{
		SQL:        args[0],
		Params:     args[1:],
		Connection: execConnection,
		Catalog:    execCatalog,
		ChunkLimit: execChunks,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch frame.Kind {
	case wire.FrameError:
		return errors.New(frame.Error)
	case wire.FrameEmpty:
		fmt.Fprintln(out, "OK")
		return nil
	}
	printFrame(out, frame)
	fmt.Fprintf(out, "(%d rows, %s)\n", frame.Rows(), time.Since(start).Round(time.Millisecond))
	return nil
}

func printFrame(out io.Writer, f *wire.Frame) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	fmt.Fprintln(tw, strings.Join(names, "\t"))

	row := make([]string, len(f.Columns))
	for _, chunk := range f.Chunks {
		for r := 0; r < chunk.Rows(); r++ {
			for c := range chunk.Vectors {
				row[c] = formatValue(chunk.Vectors[c].Values[r])
			}
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
	}
	tw.Flush()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("\\x%x", x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
