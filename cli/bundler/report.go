package bundler

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Report summarizes one build for display: what went into the compiled
// module, what stayed external, and what was packaged alongside it.
type Report struct {
	TotalBytes      int
	InputFiles      []FileContribution
	ExternalImports []string
	PackagedAssets  []string
}

// FileContribution is one input file's share of the compiled module.
type FileContribution struct {
	Path          string
	Bytes         int
	BytesInOutput int
	Percentage    float64
}

// NewReport derives a build report from the compiler metafile and the
// packaged asset list.
func NewReport(res *BuildResult) (*Report, error) {
	var meta Metafile
	if err := json.Unmarshal([]byte(res.Metafile), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	report := &Report{}
	for _, a := range res.Assets {
		report.PackagedAssets = append(report.PackagedAssets, a.Filename)
	}

	for _, output := range meta.Outputs {
		report.TotalBytes = output.Bytes

		for _, imp := range output.Imports {
			if imp.External {
				report.ExternalImports = append(report.ExternalImports, imp.Path)
			}
		}

		for inputPath, contrib := range output.Inputs {
			displayPath := inputPath
			if strings.HasPrefix(displayPath, "<stdin>") {
				displayPath = "<generated router>"
			}

			inputInfo, ok := meta.Inputs[inputPath]
			if !ok {
				continue
			}

			percentage := 0.0
			if report.TotalBytes > 0 {
				percentage = float64(contrib.BytesInOutput) / float64(report.TotalBytes) * 100
			}

			report.InputFiles = append(report.InputFiles, FileContribution{
				Path:          displayPath,
				Bytes:         inputInfo.Bytes,
				BytesInOutput: contrib.BytesInOutput,
				Percentage:    percentage,
			})
		}

		// single entry point, single output
		break
	}

	sort.Slice(report.InputFiles, func(i, j int) bool {
		if report.InputFiles[i].BytesInOutput != report.InputFiles[j].BytesInOutput {
			return report.InputFiles[i].BytesInOutput > report.InputFiles[j].BytesInOutput
		}
		return report.InputFiles[i].Path < report.InputFiles[j].Path
	})
	sort.Strings(report.ExternalImports)

	return report, nil
}

// FormatBytes formats a byte count in human-readable form.
func FormatBytes(bytes int) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1fMB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1fKB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
