// Package cli implements the zeronet command, an offline tool for encoding
// profiles into emergency QR links and inspecting scanned links.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/medrex/zeronet/internal/zeronet"
	"github.com/medrex/zeronet/pkg/config"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var (
	headline = color.New(color.FgCyan, color.Bold)
	success  = color.New(color.FgGreen)
	warning  = color.New(color.FgYellow)
	failure  = color.New(color.FgRed, color.Bold)
)

type rootOptions struct {
	integrityKey string
	origin       string
	maxVersion   int
	output       string
}

// NewRootCommand builds the zeronet command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "zeronet",
		Short:         "Offline emergency QR payload tool",
		Long:          "Encode patient profiles into self-contained emergency QR links and decode scanned links without network access.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.maxVersion < zeronet.MinQRVersion || opts.maxVersion > zeronet.MaxQRVersion {
				return fmt.Errorf("--max-version must be between %d and %d, got %d",
					zeronet.MinQRVersion, zeronet.MaxQRVersion, opts.maxVersion)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.integrityKey, "key", os.Getenv("ZERONET_INTEGRITY_KEY"), "integrity key for payload tags (default $ZERONET_INTEGRITY_KEY)")
	flags.StringVar(&opts.origin, "origin", "http://localhost:3000", "public origin of emergency links")
	flags.IntVar(&opts.maxVersion, "max-version", 25, "largest QR version considered scannable")
	flags.StringVarP(&opts.output, "output", "o", outputText, "output format: text|json|yaml")

	cmd.AddCommand(
		newEncodeCommand(opts),
		newDecodeCommand(opts),
		newCapacityCommand(opts),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		failure.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		os.Exit(1)
	}
}

// config builds the service configuration the shared flags describe
func (o *rootOptions) config() *config.Config {
	cfg := config.Defaults()
	cfg.Codec.IntegrityKey = o.integrityKey
	cfg.Codec.QRMaxVersion = o.maxVersion
	cfg.PublicOrigin = o.origin
	return cfg
}

func (o *rootOptions) codec() *zeronet.Codec {
	return zeronet.NewCodec(zeronet.OptionsFromConfig(o.config().Codec))
}

// emit writes v as JSON or YAML. It reports false for text output so the
// caller can render its own view.
func (o *rootOptions) emit(w io.Writer, v interface{}) (bool, error) {
	switch o.output {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return true, enc.Encode(v)
	case outputText, "":
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format %q", o.output)
	}
}
