package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"go-tonesense/internal/config"
	"go-tonesense/internal/container"
	"go-tonesense/internal/export"
	"go-tonesense/internal/logger"
	"go-tonesense/internal/workflow"
	"go-tonesense/pkg/models"
)

func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "tonesense",
		Short: "Personal color-season analysis from a camera capture or an image file",
		Long: `ToneSense sends a portrait to the color analysis service and presents
the season, undertone, depth and contrast it finds, with palettes to wear
and to avoid. Results can be exported as a PNG card.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			if logLevel != "" {
				logger.SetLevel(logLevel)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL")

	cmd.AddCommand(
		newServeCmd(),
		newAnalyzeCmd(),
		newCaptureCmd(),
		newHealthCmd(),
	)

	return cmd
}

// buildContainer loads the environment config and wires the workflow. The
// container is torn down when ctx ends so a Ctrl+C discards pending work.
func buildContainer(ctx context.Context) (*container.Container, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c, err := container.NewContainer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}
	c.CloseOnDone(ctx)
	return c, nil
}

// finish reports the terminal session and optionally exports the result
func finish(cmd *cobra.Command, ctrl *workflow.Controller, exportPath string) error {
	s := ctrl.Session()
	switch s.Mode {
	case workflow.ModeResultsReady:
	case workflow.ModeFailed:
		return fmt.Errorf("analysis failed: %s", s.Error.Message)
	default:
		return fmt.Errorf("analysis did not complete (session is %s)", s.Mode)
	}

	printResult(cmd.OutOrStdout(), s.Result)

	if exportPath == "" {
		return nil
	}
	art, err := ctrl.Export()
	if err != nil {
		return err
	}
	path, err := writeArtifact(exportPath, art)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nSaved %s\n", path)
	return nil
}

// writeArtifact writes to path, or into path under the suggested name when
// path is a directory
func writeArtifact(path string, art *export.Artifact) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, art.SuggestedFilename)
	}
	if err := os.WriteFile(path, art.PNG, 0o644); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	return path, nil
}

func printResult(w io.Writer, resp *models.AnalysisResponse) {
	a := resp.Analysis
	fmt.Fprintf(w, "Season:     %s\n", a.Season)
	if a.SeasonDescription != "" {
		fmt.Fprintf(w, "            %s\n", a.SeasonDescription)
	}
	fmt.Fprintf(w, "Undertone:  %s (warm %.2f, cool %.2f)\n", a.Undertone.Classification, a.Undertone.WarmScore, a.Undertone.CoolScore)
	fmt.Fprintf(w, "Depth:      %s\n", a.Depth.Level)
	fmt.Fprintf(w, "Contrast:   %s\n", a.Contrast.Level)
	if a.SkinColor.Hex != "" {
		fmt.Fprintf(w, "Skin tone:  %s\n", a.SkinColor.Hex)
	}
	if len(a.BestColors) > 0 {
		fmt.Fprintf(w, "Best:       %s\n", strings.Join(a.BestColors, " "))
	}
	if len(a.WorstColors) > 0 {
		fmt.Fprintf(w, "Avoid:      %s\n", strings.Join(a.WorstColors, " "))
	}
}
