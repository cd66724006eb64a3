package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"rollcall/internal/app"
	"rollcall/internal/report"
	"rollcall/internal/store"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "Bulk student operations",
}

var importZipCmd = &cobra.Command{
	Use:   "import-zip <archive.zip>",
	Short: "Enrol every REGNO.<jpg|png|webp> photo in a ZIP archive",
	Long: `Enrol students from a ZIP of photos named after their registration
numbers. Each photo must contain exactly one face. Students that already
exist are skipped; the summary lists failures with their reason.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportZip,
}

var exportCmd = &cobra.Command{
	Use:   "export <out.xlsx>",
	Short: "Write the student directory to an Excel workbook",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(studentsCmd)
	studentsCmd.AddCommand(importZipCmd, exportCmd)

	importZipCmd.Flags().Bool("quiet", false, "Hide the progress bar")
	exportCmd.Flags().String("department", "", "Only export one department")
}

func runImportZip(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	quiet, _ := cmd.Flags().GetBool("quiet")
	return withApp(cmd.Context(), func(a *app.App) error {
		var bar *progressbar.ProgressBar
		progress := func(done, total int) {
			if quiet {
				return
			}
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Enrolling faces"),
					progressbar.OptionShowCount(),
					progressbar.OptionSetItsString("photos"),
					progressbar.OptionShowElapsedTimeOnFinish(),
					progressbar.OptionFullWidth(),
				)
			}
			_ = bar.Set(done)
		}
		res, err := a.Students.ImportZip(cmd.Context(), data, progress)
		if bar != nil {
			_ = bar.Finish()
			fmt.Fprintln(cmd.OutOrStdout())
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "enrolled %d, skipped %d, failed %d\n", len(res.Success), len(res.Skipped), len(res.Failed))
		for _, f := range res.Failed {
			fmt.Fprintf(out, "  %s: %s\n", f.File, f.Reason)
		}
		return nil
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	dept, _ := cmd.Flags().GetString("department")
	return withApp(cmd.Context(), func(a *app.App) error {
		list, err := a.Students.List(cmd.Context(), store.StudentFilter{Department: dept})
		if err != nil {
			return err
		}
		data, err := report.StudentsWorkbook(list)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d students to %s\n", len(list), args[0])
		return nil
	})
}
