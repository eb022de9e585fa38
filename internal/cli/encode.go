package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/medrex/zeronet/internal/emergency"
	"github.com/medrex/zeronet/pkg/logger"
	"github.com/medrex/zeronet/pkg/types"
)

type encodeOptions struct {
	profilePath string
	level       string
	noHint      bool
	allowLegacy bool
	pngPath     string
	pngSize     int
}

func newEncodeCommand(root *rootOptions) *cobra.Command {
	opts := &encodeOptions{}

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a profile file into an emergency QR link",
		Example: `  zeronet encode --profile jane.yaml
  zeronet encode --profile jane.yaml --level L --png jane.png
  cat jane.yaml | zeronet encode --profile - -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.profilePath, "profile", "p", "", "profile YAML or JSON file, - for stdin")
	cmd.Flags().StringVarP(&opts.level, "level", "l", "", "QR error correction level L|M|Q|H (default H)")
	cmd.Flags().BoolVar(&opts.noHint, "no-hint", false, "omit the ?w= wallet hint from the link")
	cmd.Flags().BoolVar(&opts.allowLegacy, "allow-legacy", false, "fall back to a legacy link when the profile does not fit")
	cmd.Flags().StringVar(&opts.pngPath, "png", "", "also write the QR code as a PNG file")
	cmd.Flags().IntVar(&opts.pngSize, "png-size", 256, "PNG edge length in pixels")
	_ = cmd.MarkFlagRequired("profile")

	return cmd
}

func runEncode(cmd *cobra.Command, root *rootOptions, opts *encodeOptions) error {
	profile, err := readProfile(cmd.InOrStdin(), opts.profilePath)
	if err != nil {
		return err
	}

	cfg := root.config()
	cfg.Codec.EmbedWalletHint = !opts.noHint
	codec := root.codec()
	service := emergency.NewService(cfg, codec, nil, nil, nil, logger.NewNop())

	qr, err := service.Generate(context.Background(), emergency.GenerateRequest{
		Profile:             profile,
		Level:               types.ErrorCorrectionLevel(opts.level),
		AllowLegacyFallback: opts.allowLegacy,
	})
	if err != nil {
		return err
	}

	if opts.pngPath != "" {
		png, err := emergency.RenderPNG(qr.URL, qr.Level, opts.pngSize)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.pngPath, png, 0o644); err != nil {
			return fmt.Errorf("failed to write PNG: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if handled, err := root.emit(out, qr); handled {
		return err
	}

	headline.Fprintf(out, "%s QR code (level %s)\n", qr.Mode, qr.Level)
	fmt.Fprintln(out, qr.URL)
	if qr.Mode == types.QRModeZeroNet {
		fmt.Fprintf(out, "payload: %d raw bytes, %d packed bytes\n", qr.RawBytes, qr.PackedBytes)
	}
	fmt.Fprintf(out, "url: %d of %d bytes\n", len(qr.URL), qr.Capacity)
	for _, w := range qr.Warnings {
		warning.Fprintf(out, "warning: %s\n", w)
	}
	if opts.pngPath != "" {
		success.Fprintf(out, "wrote %s\n", opts.pngPath)
	}
	return nil
}

// readProfile loads a profile from path. YAML is a superset of JSON so both
// formats are accepted.
func readProfile(stdin io.Reader, path string) (*types.PatientProfile, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var profile types.PatientProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	return &profile, nil
}
