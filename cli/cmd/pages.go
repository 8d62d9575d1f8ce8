package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgekit-dev/edgekit/cli/bundler"
	cliconfig "github.com/edgekit-dev/edgekit/cli/config"
	"github.com/edgekit-dev/edgekit/cli/output"
)

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Build Pages projects",
	Long:  `Compile and package Pages projects for deployment.`,
}

var pagesFunctionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "Build Pages Functions",
}

var (
	pfOutfile      string
	pfOutputDir    string
	pfWorkerBundle bool
	pfCompatFlags  []string
	pfReport       bool
)

var pagesFunctionsBuildCmd = &cobra.Command{
	Use:   "build [directory]",
	Short: "Compile a folder of Pages Functions into a deployable Worker",
	Long: `Compile a folder of Pages Functions into a deployable Worker.

A _worker.js file at the build output directory root takes precedence over a
functions directory; when both exist, the functions directory is ignored.

Examples:
  edgekit pages functions build
  edgekit pages functions build --outfile=dist/_worker.js
  edgekit pages functions build --experimental-worker-bundle --compatibility-flag=nodejs_compat`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPagesFunctionsBuild,
}

func init() {
	pagesFunctionsBuildCmd.Flags().StringVar(&pfOutfile, "outfile", bundler.WorkerEntryName,
		"path to write the compiled Worker to")
	pagesFunctionsBuildCmd.Flags().StringVar(&pfOutputDir, "build-output-directory", ".",
		"directory searched for a "+bundler.WorkerEntryName+" entry")
	pagesFunctionsBuildCmd.Flags().BoolVar(&pfWorkerBundle, "experimental-worker-bundle", false,
		"package the Worker and its binary assets as a multipart bundle")
	pagesFunctionsBuildCmd.Flags().StringArrayVar(&pfCompatFlags, "compatibility-flag", nil,
		"runtime compatibility flag (repeatable)")
	pagesFunctionsBuildCmd.Flags().BoolVar(&pfReport, "report", false,
		"print a bundle size breakdown after building")

	pagesFunctionsCmd.AddCommand(pagesFunctionsBuildCmd)
	pagesCmd.AddCommand(pagesFunctionsCmd)
}

func printBetaNotice(cmd *cobra.Command) {
	if quiet {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(),
		"🚧 'edgekit pages <command>' is a beta command. Please report any issues to https://github.com/edgekit-dev/edgekit/issues/new")
}

func runPagesFunctionsBuild(cmd *cobra.Command, args []string) error {
	workDir := "."
	if len(args) == 1 {
		workDir = args[0]
	}

	cfg, err := cliconfig.Load(configPath())
	if err != nil {
		return err
	}

	outfile := pfOutfile
	if !cmd.Flags().Changed("outfile") && cfg.Build.Outfile != "" {
		outfile = cfg.Build.Outfile
	}
	outputDir := pfOutputDir
	if !cmd.Flags().Changed("build-output-directory") && cfg.Build.OutputDirectory != "" {
		outputDir = cfg.Build.OutputDirectory
	}
	workerBundle := pfWorkerBundle
	if !cmd.Flags().Changed("experimental-worker-bundle") && cfg.Build.WorkerBundle {
		workerBundle = true
	}
	compatFlags := append([]string{}, pfCompatFlags...)
	compatFlags = append(compatFlags, cfg.Build.CompatibilityFlags...)

	target, err := bundler.SelectTarget(workDir, outputDir)
	if err != nil {
		return err
	}

	req := bundler.BuildRequest{
		WorkDir:            workDir,
		Target:             target,
		OutputPath:         outfile,
		WorkerBundle:       workerBundle,
		CompatibilityFlags: compatFlags,
	}

	res, err := bundler.Build(req)
	if err != nil {
		return err
	}

	payload, err := bundler.NewPackager(req.WorkerBundle).Package(res.Module, res.Assets)
	if err != nil {
		return err
	}

	if err := bundler.WriteOutput(req.OutputPath, payload); err != nil {
		return err
	}

	printBetaNotice(cmd)
	if !quiet {
		fmt.Fprintln(cmd.OutOrStdout(), "✨ Compiled Worker successfully")
	}

	if pfReport {
		if err := printBuildReport(cmd, res); err != nil {
			fmt.Fprintln(os.Stderr, "Warning: could not produce build report:", err)
		}
	}
	return nil
}

func printBuildReport(cmd *cobra.Command, res *bundler.BuildResult) error {
	report, err := bundler.NewReport(res)
	if err != nil {
		return err
	}

	f := GetFormatter()
	f.Writer = cmd.OutOrStdout()

	f.PrintInfo(fmt.Sprintf("\nTotal bundle size: %s", bundler.FormatBytes(report.TotalBytes)))

	data := output.TableData{
		Headers: []string{"FILE", "SIZE", "PERCENT"},
		Rows:    make([][]string, len(report.InputFiles)),
	}
	for i, file := range report.InputFiles {
		data.Rows[i] = []string{
			file.Path,
			bundler.FormatBytes(file.BytesInOutput),
			fmt.Sprintf("%.1f%%", file.Percentage),
		}
	}
	f.PrintTable(data)

	if len(report.ExternalImports) > 0 {
		f.PrintInfo("\nExternal imports (resolved at runtime):")
		f.PrintList(report.ExternalImports)
	}
	if len(report.PackagedAssets) > 0 {
		f.PrintInfo("\nPackaged assets:")
		f.PrintList(report.PackagedAssets)
	}
	return nil
}
