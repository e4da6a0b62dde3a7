package env

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kashguard/go-threshold-engine/internal/config"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the effective engine configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.DefaultEngineConfigFromEnv()
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to marshal config")
			}
			fmt.Println(string(data))
		},
	}
}
