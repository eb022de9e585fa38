package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medrex/zeronet/pkg/types"
)

type capacityRow struct {
	Level    types.ErrorCorrectionLevel `json:"level" yaml:"level"`
	Capacity int                        `json:"capacity" yaml:"capacity"`
	// Payload is the room left for the packed payload after the origin,
	// path and wallet hint
	Payload int `json:"payload" yaml:"payload"`
}

func newCapacityCommand(root *rootOptions) *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "capacity",
		Short: "Show QR byte capacity per error correction level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			levels := []types.ErrorCorrectionLevel{types.ECLevelL, types.ECLevelM, types.ECLevelQ, types.ECLevelH}
			if level != "" {
				parsed, ok := types.ParseECLevel(level)
				if !ok {
					return fmt.Errorf("unknown error correction level %q", level)
				}
				levels = []types.ErrorCorrectionLevel{parsed}
			}

			packer := root.codec().Packer
			// origin + "/emergency/" + "?w=" + 42 byte wallet
			overhead := len(root.origin) + len("/emergency/") + len("?w=") + 42

			rows := make([]capacityRow, 0, len(levels))
			for _, l := range levels {
				c := packer.EstimateQRCapacity(l)
				room := c - overhead
				if room > packer.MaxPacked() {
					room = packer.MaxPacked()
				}
				if room < 0 {
					room = 0
				}
				rows = append(rows, capacityRow{Level: l, Capacity: c, Payload: room})
			}

			out := cmd.OutOrStdout()
			if handled, err := root.emit(out, rows); handled {
				return err
			}

			headline.Fprintf(out, "QR version %d, origin %s\n", packer.MaxVersion(), root.origin)
			for _, r := range rows {
				fmt.Fprintf(out, "%s  %5d bytes  payload room %4d\n", r.Level, r.Capacity, r.Payload)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&level, "level", "l", "", "only show this level")
	return cmd
}
