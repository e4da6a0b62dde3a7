package keygen

import (
	"encoding/hex"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kashguard/go-threshold-engine/internal/frost"
)

func New() *cobra.Command {
	var (
		threshold int
		total     int
		out       string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate t-of-n key shares with a trusted dealer (development only)",
		Run: func(cmd *cobra.Command, args []string) {
			shares, groupKey, err := frost.GenerateKeyShares(threshold, total)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to generate key shares")
			}
			if err := frost.SaveKeyShares(out, shares, groupKey); err != nil {
				log.Fatal().Err(err).Msg("Failed to write key file")
			}
			log.Info().
				Int("threshold", threshold).
				Int("total", total).
				Str("group_key", hex.EncodeToString(groupKey.SerializeCompressed())).
				Str("out", out).
				Msg("Key shares generated")
		},
	}

	cmd.Flags().IntVarP(&threshold, "threshold", "t", 2, "Signing threshold t")
	cmd.Flags().IntVarP(&total, "total", "n", 3, "Total participants n")
	cmd.Flags().StringVarP(&out, "out", "o", "shares.json", "Output key file")

	return cmd
}
