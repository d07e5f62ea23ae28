package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/gravi-labs/retail-verify/internal/model"
	"github.com/gravi-labs/retail-verify/internal/store"
)

var (
	recordsVersion string
	recordsPlaceID string
	recordsLimit   int
)

var recordsCmd = &cobra.Command{
	Use:   "records [session-id]",
	Short: "List stored analysis records, or show one by session id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if len(args) == 1 {
			rec, err := st.GetRecord(ctx, args[0])
			if err != nil {
				return err
			}
			return eris.Wrap(enc.Encode(rec), "encode record")
		}

		records, err := st.ListRecords(ctx, store.RecordFilter{
			Version: model.SchemaVersion(recordsVersion),
			PlaceID: recordsPlaceID,
			Limit:   recordsLimit,
		})
		if err != nil {
			return err
		}
		return eris.Wrap(enc.Encode(records), "encode records")
	},
}

func init() {
	recordsCmd.Flags().StringVar(&recordsVersion, "version", "", "filter by schema version (v1 or v2)")
	recordsCmd.Flags().StringVar(&recordsPlaceID, "place-id", "", "filter by place id")
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 50, "maximum records to list")
	rootCmd.AddCommand(recordsCmd)
}
