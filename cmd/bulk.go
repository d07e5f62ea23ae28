package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/gravi-labs/retail-verify/internal/pipeline"
)

var bulkDir string

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Classify a directory of store images in batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		dir := bulkDir
		if dir == "" {
			dir = cfg.Bulk.LocalSourceDir
		}
		if dir == "" {
			return eris.New("no image directory given (use --dir or bulk.local_source_dir)")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.BulkRunner.Run(ctx, "file://"+dir, pipeline.LocalDirSource{Dir: dir})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(run), "encode bulk run")
	},
}

func init() {
	bulkCmd.Flags().StringVar(&bulkDir, "dir", "", "directory of images to classify")
	rootCmd.AddCommand(bulkCmd)
}
