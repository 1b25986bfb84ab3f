package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-tonesense/internal/logger"
)

func newAnalyzeCmd() *cobra.Command {
	var exportPath string

	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Analyze an image file",
		Long: `Validates an image file (image types only, at most 10 MiB), submits it
to the analysis service and prints the result.`,
		Example: `  tonesense analyze portrait.jpg

  # Save the result card next to the photo
  tonesense analyze portrait.jpg --export .`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			sel, err := c.Validator().ValidateFile(args[0])
			if err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{
				"file":       sel.File.Name,
				"mime_type":  sel.File.MIMEType,
				"size_bytes": sel.File.SizeBytes,
			}).Debug("Submitting file")

			ctrl := c.Controller()
			if err := ctrl.RequestUpload(); err != nil {
				return err
			}
			if err := ctrl.SubmitFile(sel.File); err != nil {
				return err
			}
			ctrl.Wait()

			return finish(cmd, ctrl, exportPath)
		},
	}

	cmd.Flags().StringVarP(&exportPath, "export", "o", "", "Write the result card PNG to this file or directory")

	return cmd
}
