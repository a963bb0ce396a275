package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/libforge/libforge/internal/builder"
	"github.com/libforge/libforge/internal/codegen"
	"github.com/libforge/libforge/internal/metrics"
	"github.com/libforge/libforge/internal/progress"
	"github.com/libforge/libforge/internal/publish"
)

type buildParams struct {
	configFiles []string
	metricsFile string
	progress    bool
	noPublish   bool
}

func newBuildCommand(root *rootParams) *cobra.Command {
	var params buildParams

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Bundle the library and publish the artifacts",
		Example: `  libforge build
  libforge build -c libforge.yaml -c release.yaml --metrics-file metrics.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, root, params)
		},
	}

	cmd.Flags().StringSliceVarP(&params.configFiles, "config", "c", nil, "configuration file or directory (repeatable)")
	cmd.Flags().StringVar(&params.metricsFile, "metrics-file", "", "write build metrics in the Prometheus text format to this file")
	cmd.Flags().BoolVar(&params.progress, "progress", false, "show module discovery progress")
	cmd.Flags().BoolVar(&params.noPublish, "no-publish", false, "build without writing any artifact")
	return cmd
}

func runBuild(cmd *cobra.Command, root *rootParams, params buildParams) error {
	ctx := cmd.Context()
	log := root.logger(cmd)

	cfg, err := loadConfig(params.configFiles)
	if err != nil {
		return err
	}

	b := builder.New().WithConfig(cfg).WithLogger(log)
	if params.progress {
		b = b.WithProgress(progress.New(cmd.ErrOrStderr(), "building"))
	}

	arts, err := b.Build(ctx)
	if params.metricsFile != "" {
		if merr := metrics.WriteTextfile(params.metricsFile); merr != nil {
			log.Warnf("failed to write metrics: %v", merr)
		}
	}
	if err != nil {
		return err
	}

	if !params.noPublish {
		p, err := publish.New(ctx, cfg.Publish, cfg.ProjectDir(), log)
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		if err := p.Publish(ctx, arts); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}

	return printArtifacts(cmd.OutOrStdout(), arts)
}

func printArtifacts(w io.Writer, arts []codegen.Artifact) error {
	table := tablewriter.NewWriter(w)
	table.Header("Path", "Format", "Kind", "Bytes")
	for _, a := range arts {
		if err := table.Append(a.Path, a.Format, a.Kind.String(), strconv.Itoa(len(a.Code))); err != nil {
			return err
		}
		if a.MapPath != "" {
			if err := table.Append(a.MapPath, a.Format, "sourcemap", strconv.Itoa(len(a.SourceMap))); err != nil {
				return err
			}
		}
	}
	return table.Render()
}
