package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/weave/internal/version"
)

func newVersionCommand() *cobra.Command {
	var (
		format   string
		short    bool
		detailed bool
	)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the weave version, commit, build time, Go version and platform.

Examples:
  weave version                 # Version and platform
  weave version --short         # Version only
  weave version --detailed      # Every known build field
  weave version --format json   # Output as JSON`,
		Args: cobra.NoArgs,
		// Version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			switch format {
			case "json":
				return writeVersionJSON(w)
			case "text":
				switch {
				case short:
					_, err := fmt.Fprintln(w, version.GetShortVersion())

					return err
				case detailed:
					return writeVersionDetailed(w)
				default:
					return writeVersionDefault(w)
				}
			default:
				return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
			}
		},
	}

	versionCmd.Flags().StringVar(&format, "format", "text", "output format (text, json)")
	versionCmd.Flags().BoolVar(&short, "short", false, "show the version only")
	versionCmd.Flags().BoolVar(&detailed, "detailed", false, "show detailed version information")

	return versionCmd
}

func writeVersionDefault(w io.Writer) error {
	info := version.GetBuildInfo()

	line := "weave " + info.Version
	if info.GitCommit != "unknown" && len(info.GitCommit) >= 7 && !version.IsRelease() {
		line += " (" + info.GitCommit[:7] + ")"
	}
	if info.Dirty {
		line += " (dirty)"
	}
	fmt.Fprintln(w, line)

	if !info.BuildTime.IsZero() {
		fmt.Fprintf(w, "Built: %s\n", info.BuildTime.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	_, err := fmt.Fprintf(w, "Go: %s\nPlatform: %s\n", info.GoVersion, info.Platform)

	return err
}

func writeVersionDetailed(w io.Writer) error {
	buildType := "development"
	if version.IsRelease() {
		buildType = "release"
	}
	_, err := fmt.Fprintf(w, "%s\nBuild type: %s\n", version.GetDetailedVersion(), buildType)

	return err
}

func writeVersionJSON(w io.Writer) error {
	out := struct {
		*version.BuildInfo
		IsRelease bool `json:"is_release"`
	}{version.GetBuildInfo(), version.IsRelease()}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(out)
}
