package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/weave/internal/build"
	"github.com/conneroisu/weave/internal/config"
	"github.com/conneroisu/weave/internal/registry"
	"github.com/conneroisu/weave/internal/scanner"
)

// ComponentInfo describes one component in list output.
type ComponentInfo struct {
	Name         string   `json:"name"                   yaml:"name"`
	File         string   `json:"file"                   yaml:"file"`
	Size         int      `json:"size"                   yaml:"size"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Usage        []string `json:"usage,omitempty"        yaml:"usage,omitempty"`
}

// listOptions selects the optional list columns.
type listOptions struct {
	format   string
	withDeps bool
	usage    bool
}

func newListCommand(v *viper.Viper) *cobra.Command {
	var opts listOptions

	listCmd := &cobra.Command{
		Use:     "list <source-dir>",
		Aliases: []string{"ls"},
		Short:   "List the components of a site",
		Long: `List the components found in the components directory of a site.

Examples:
  weave list site                 Table of names, files and sizes
  weave list site --usage         Include the documents using each component
  weave list site --deps          Include the components each one uses
  weave list site --format json   Output as JSON`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.format {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("unsupported format: %s (supported: table, json, yaml)", opts.format)
			}

			cfg, err := loadConfig(v, args[0])
			if err != nil {
				return err
			}
			infos, cycles, err := listComponents(cfg, opts)
			if err != nil {
				return err
			}
			for _, cycle := range cycles {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: cyclic components: %s\n", strings.Join(cycle, " -> "))
			}

			return writeComponents(cmd.OutOrStdout(), infos, opts)
		},
	}

	listCmd.Flags().StringVar(&opts.format, "format", "table", "output format (table, json, yaml)")
	listCmd.Flags().BoolVarP(&opts.usage, "usage", "u", false, "include the documents that use each component")
	listCmd.Flags().BoolVar(&opts.withDeps, "deps", false, "include the components each component uses")

	return listCmd
}

// listComponents loads the components of cfg, sorted by name, together
// with any inclusion cycles among them.
func listComponents(cfg *config.Config, opts listOptions) ([]ComponentInfo, [][]string, error) {
	root := cfg.ComponentsRoot()
	reg := registry.NewComponentRegistry(cfg.Components.Extensions...)
	if err := reg.Load(root); err != nil {
		return nil, nil, err
	}

	var usage map[string][]string
	if opts.usage {
		var err error
		if usage, err = componentUsage(cfg, reg); err != nil {
			return nil, nil, err
		}
	}

	analyzer := registry.NewDependencyAnalyzer(reg)
	var graph map[string][]string
	if opts.withDeps {
		graph = analyzer.GetDependencyGraph()
	}

	names := reg.Names()
	infos := make([]ComponentInfo, 0, len(names))
	for _, name := range names {
		component, _ := reg.Get(name)
		file := component.FilePath
		if rel, err := filepath.Rel(root, file); err == nil {
			file = filepath.ToSlash(rel)
		}
		infos = append(infos, ComponentInfo{
			Name:         name,
			File:         file,
			Size:         len(component.Template),
			Dependencies: graph[name],
			Usage:        usage[name],
		})
	}

	return infos, analyzer.DetectCircularDependencies(), nil
}

// componentUsage maps each registered component to the documents that
// reference it directly.
func componentUsage(cfg *config.Config, reg *registry.ComponentRegistry) (map[string][]string, error) {
	docs, err := build.NewBuilder(cfg, nil, nil).Documents()
	if err != nil {
		return nil, err
	}

	ts := scanner.NewTagScanner()
	usage := make(map[string][]string)
	for _, doc := range docs {
		content, err := os.ReadFile(filepath.Join(cfg.Source, filepath.FromSlash(doc)))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", doc, err)
		}

		seen := make(map[string]bool)
		for _, tag := range ts.FindTags(string(content)) {
			if seen[tag.Name] {
				continue
			}
			seen[tag.Name] = true
			if _, ok := reg.Get(tag.Name); ok {
				usage[tag.Name] = append(usage[tag.Name], doc)
			}
		}
	}
	for name := range usage {
		sort.Strings(usage[name])
	}

	return usage, nil
}

func writeComponents(w io.Writer, infos []ComponentInfo, opts listOptions) error {
	switch opts.format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")

		return encoder.Encode(infos)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(infos); err != nil {
			return err
		}

		return encoder.Close()
	}

	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "No components found")

		return err
	}

	caser := cases.Title(language.English)
	columns := []string{"name", "file", "size"}
	if opts.withDeps {
		columns = append(columns, "depends on")
	}
	if opts.usage {
		columns = append(columns, "used in")
	}
	for i, c := range columns {
		columns[i] = caser.String(c)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, info := range infos {
		row := []string{info.Name, info.File, humanize.Bytes(uint64(info.Size))}
		if opts.withDeps {
			row = append(row, joinOrDash(info.Dependencies))
		}
		if opts.usage {
			row = append(row, joinOrDash(info.Usage))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	return tw.Flush()
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}

	return strings.Join(items, ", ")
}
