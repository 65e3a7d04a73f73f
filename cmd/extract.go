package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var extractSave bool

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract one invoice and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		ctrl, err := buildController(cfg)
		if err != nil {
			return err
		}

		path := args[0]
		run, err := extractDocument(ctx, ctrl, path, filepath.Base(path))
		if err != nil {
			return err
		}

		if extractSave {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			if err := st.SaveRun(ctx, &run); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(responseBody(run))
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractSave, "save", false, "persist the run to the configured store")
	rootCmd.AddCommand(extractCmd)
}
