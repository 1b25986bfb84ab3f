package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"go-tonesense/internal/capture"
	"go-tonesense/internal/consent"
)

func newCaptureCmd() *cobra.Command {
	var (
		exportPath string
		facing     string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a photo from the camera and analyze it",
		Long: `Asks for camera consent, opens the camera, captures one frame and
submits it. The camera is released as soon as the frame is taken.
Camera support needs a build with -tags gocv.`,
		Example: `  tonesense capture

  # Use the rear camera and skip the prompt
  tonesense capture --facing environment --yes --export .`,
		RunE: func(cmd *cobra.Command, args []string) error {
			want := capture.Facing(facing)
			if !want.Valid() {
				return fmt.Errorf("unknown facing %q (use user or environment)", facing)
			}

			c, err := buildContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			ctrl := c.Controller()
			if err := ctrl.RequestCamera(); err != nil {
				return err
			}

			accepted := yes
			if !accepted {
				accepted, err = askConsent(cmd.InOrStdin(), cmd.OutOrStdout())
				if err != nil {
					return err
				}
			}
			if err := ctrl.Consent(consent.Decision{Accepted: accepted}); err != nil {
				return err
			}
			if !accepted {
				return errors.New("camera access declined")
			}
			ctrl.Wait()

			if ctrl.CameraStatus().Facing != want {
				if err := ctrl.SwitchFacing(); err != nil {
					return err
				}
				ctrl.Wait()
			}

			status := ctrl.CameraStatus()
			if !status.Ready {
				if status.Error != nil {
					return fmt.Errorf("camera unavailable: %s", status.Error.Message)
				}
				return errors.New("camera unavailable")
			}

			if err := ctrl.CaptureFrame(); err != nil {
				return err
			}
			ctrl.Wait()

			for _, hint := range ctrl.CameraStatus().Hints {
				fmt.Fprintf(cmd.ErrOrStderr(), "hint: %s\n", hint.Message)
			}
			return finish(cmd, ctrl, exportPath)
		},
	}

	cmd.Flags().StringVarP(&exportPath, "export", "o", "", "Write the result card PNG to this file or directory")
	cmd.Flags().StringVar(&facing, "facing", string(capture.FacingUser), "Camera to use: user or environment")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Grant camera access without prompting")

	return cmd
}

// askConsent prompts once; anything but an explicit yes declines
func askConsent(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprint(out, "ToneSense needs camera access to take your photo. Allow? [y/N] ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
