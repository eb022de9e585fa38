package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/medrex/zeronet/internal/zeronet"
	"github.com/medrex/zeronet/pkg/types"
)

type decodeOptions struct {
	strict      bool
	maxAgeHours int
}

// decodeReport is the structured form of a decoded link
type decodeReport struct {
	Mode     types.QRMode            `json:"mode" yaml:"mode"`
	Wallet   string                  `json:"walletAddress,omitempty" yaml:"walletAddress,omitempty"`
	Summary  *types.EmergencySummary `json:"summary,omitempty" yaml:"summary,omitempty"`
	IssuedAt string                  `json:"issuedAt,omitempty" yaml:"issuedAt,omitempty"`
	Stale    bool                    `json:"stale" yaml:"stale"`
}

func newDecodeCommand(root *rootOptions) *cobra.Command {
	opts := &decodeOptions{}

	cmd := &cobra.Command{
		Use:   "decode <payload|url>",
		Short: "Verify and decode a scanned emergency link",
		Example: `  zeronet decode "https://care.example.org/emergency/AQZl...?w=0xabc..."
  zeronet decode AQZl... --strict -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd.OutOrStdout(), root, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.strict, "strict", false, "reject stale payloads instead of warning")
	cmd.Flags().IntVar(&opts.maxAgeHours, "max-age-hours", 24*90, "age after which a payload is stale")

	return cmd
}

func runDecode(out io.Writer, root *rootOptions, opts *decodeOptions, input string) error {
	segment, _, err := zeronet.ParseURL(strings.TrimSpace(input))
	if err != nil {
		return err
	}

	if zeronet.IsWalletAddress(segment) {
		wallet, err := zeronet.ParseWallet(segment)
		if err != nil {
			return err
		}
		report := decodeReport{Mode: types.QRModeLegacy, Wallet: wallet.Hex()}
		if handled, err := root.emit(out, report); handled {
			return err
		}
		warning.Fprintf(out, "legacy link for %s: the summary must be fetched online\n", report.Wallet)
		return nil
	}

	cfg := root.config()
	cfg.Codec.StrictExpiry = opts.strict
	cfg.Codec.MaxAgeHours = opts.maxAgeHours
	codec := zeronet.NewCodec(zeronet.OptionsFromConfig(cfg.Codec))

	result, err := codec.DecodeText(segment)
	if err != nil {
		return err
	}

	report := decodeReport{
		Mode:     types.QRModeZeroNet,
		Wallet:   result.Summary.WalletAddress.Hex(),
		Summary:  result.Summary,
		IssuedAt: time.Unix(result.Summary.IssuedAt, 0).UTC().Format(time.RFC3339),
		Stale:    result.Stale,
	}
	if handled, err := root.emit(out, report); handled {
		return err
	}

	printSummary(out, result.Summary)
	fmt.Fprintf(out, "issued:     %s\n", report.IssuedAt)
	if result.Stale {
		warning.Fprintf(out, "stale: issued %s ago, ask the patient for a fresh code\n", result.Age.Truncate(time.Hour))
	} else {
		success.Fprintln(out, "integrity verified")
	}
	return nil
}

func printSummary(out io.Writer, s *types.EmergencySummary) {
	headline.Fprintln(out, "EMERGENCY SUMMARY")
	fmt.Fprintf(out, "name:        %s\n", s.Name)
	fmt.Fprintf(out, "blood group: %s\n", s.BloodGroup)
	fmt.Fprintf(out, "allergies:   %s\n", listOrNone(s.Allergies))
	fmt.Fprintf(out, "conditions:  %s\n", listOrNone(s.ChronicConditions))
	fmt.Fprintf(out, "medications: %s\n", listOrNone(s.CurrentMedications))
	fmt.Fprintf(out, "contact:     %s %s\n", s.EmergencyContact.Name, s.EmergencyContact.Phone)
	fmt.Fprintf(out, "wallet:      %s\n", s.WalletAddress.Hex())
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
