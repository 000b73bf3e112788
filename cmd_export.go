package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memtest-go/internal/database"
	"memtest-go/internal/export"
	"memtest-go/internal/repository"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all stored results to xlsx or CSV",
	Long: `Export reads every result table and writes one workbook with the sheets
COLOR, MONOCHROME and QUESTIONNAIRE, or one CSV file per table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		db, err := database.Open(cfg.Database, log)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		tables, err := export.Collect(cmd.Context(), repository.NewResults(db, log))
		if err != nil {
			return err
		}

		switch exportFormat {
		case "xlsx":
			path := exportOutput
			if path == "" {
				path = cfg.ExportPath()
			}
			if err := export.SaveXLSX(path, tables); err != nil {
				return fmt.Errorf("failed to write workbook: %w", err)
			}
			log.Info("Results exported", zap.String("file", path))
			fmt.Fprintln(cmd.OutOrStdout(), path)
		case "csv":
			dir := exportOutput
			if dir == "" {
				dir = cfg.Export.Directory
			}
			paths, err := export.SaveCSV(filepath.Clean(dir), tables)
			if err != nil {
				return fmt.Errorf("failed to write CSV files: %w", err)
			}
			log.Info("Results exported", zap.Strings("files", paths))
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
		default:
			return fmt.Errorf("unknown format %q (want xlsx or csv)", exportFormat)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "xlsx", "output format: xlsx or csv")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (xlsx) or directory (csv); defaults to the export config")
}
