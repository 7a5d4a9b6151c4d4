package commands

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nir-project/nir/pkg/ir"
	"github.com/nir-project/nir/pkg/ir/text"
)

// NewCheckCmd builds the `ir check` subcommand: run every input file
// through the pipeline in parallel via ir.CompilePool, resuming from a
// --checkpoint file already marked complete, so a long batch run can
// pick up where it left off instead of recompiling everything already
// verified.
func NewCheckCmd() *cobra.Command {
	var opt optFlags
	var numWorkers int
	var checkpointPath string

	cmd := &cobra.Command{
		Use:   "check <input-file>...",
		Short: "Run one or more textual IR functions through the pipeline and report findings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeOpts, flags, err := opt.pipelineOptions()
			if err != nil {
				return err
			}

			var ckpt *text.Checkpoint
			completed := map[string]bool{}
			if checkpointPath != "" {
				if loaded, err := text.LoadCheckpoint(checkpointPath); err == nil {
					ckpt = loaded
					for name := range ckpt.Sources {
						if name <= ckpt.CompletedName {
							completed[name] = true
						}
					}
				} else {
					ckpt = &text.Checkpoint{Sources: map[string]string{}}
				}
			}

			var jobs []ir.CompileJob
			sources := map[string][]byte{}
			for _, path := range args {
				if completed[path] {
					continue
				}
				raw, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				sources[path] = raw
				c, err := text.Load(bytes.NewReader(raw))
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				c.Log = opt.debugLogger()
				c.Flags |= flags
				jobs = append(jobs, ir.CompileJob{Name: path, Context: c, Options: pipeOpts})
			}

			pool := ir.NewCompilePool(numWorkers)
			results := pool.Run(jobs)

			var failed int
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(os.Stderr, "%s: FAIL: %v\n", r.Name, r.Err)
					if r.Report != nil {
						for _, f := range r.Report.Findings() {
							fmt.Fprintf(os.Stderr, "  %s\n", f.String())
						}
					}
					continue
				}
				fmt.Printf("%s: OK\n", r.Name)
				if ckpt != nil {
					ckpt.Sources[r.Name] = string(sources[r.Name])
					if r.Name > ckpt.CompletedName {
						ckpt.CompletedName = r.Name
					}
				}
			}

			if ckpt != nil {
				if err := text.SaveCheckpoint(checkpointPath, ckpt); err != nil {
					return fmt.Errorf("writing checkpoint: %w", err)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d/%d functions failed verification", failed, len(results))
			}
			return nil
		},
	}

	opt.bind(cmd.Flags())
	cmd.Flags().IntVar(&numWorkers, "workers", 0, "parallel worker count (default: number of CPUs)")
	cmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "resume/save progress through this checkpoint file")
	return cmd
}
