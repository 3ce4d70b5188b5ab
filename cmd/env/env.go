package env

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kashguard/go-heartbeat-infra/internal/config"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Prints the resolved server config as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultServerConfigFromEnv()
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
