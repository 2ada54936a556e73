package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kathiravelulab/atlastrace/modules/retrieval/client"
	"github.com/kathiravelulab/atlastrace/types"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the RIPE Atlas measurements from the config file",
	Long: `Reads the AtlasTraceConfig.yml file and submits the measurement
definitions in it to RIPE Atlas. This is a one-shot scheduling request;
the analysis itself runs later against the returned measurement ID.`,
	Run: func(cmd *cobra.Command, args []string) {
		apiKey := os.Getenv("RIPE_ATLAS_API_KEY")
		if apiKey == "" {
			fmt.Println("Error: RIPE_ATLAS_API_KEY environment variable not set.")
			os.Exit(1)
		}

		cfg, err := types.LoadConfig(configFile)
		if err != nil {
			fmt.Printf("Error loading %s: %v\n", configFile, err)
			os.Exit(1)
		}
		if len(cfg.Definitions) == 0 {
			fmt.Println("No measurement_definitions in the config file.")
			os.Exit(1)
		}

		atlasClient := client.NewAtlasClient(apiKey)
		for _, def := range cfg.Definitions {
			measurementID, err := atlasClient.CreateMeasurement(def)
			if err != nil {
				fmt.Printf("Error creating measurement for target %s: %v\n", def.Target, err)
				os.Exit(1)
			}
			fmt.Printf("Successfully created measurement for %s. ID: %d\n", def.Target, measurementID)
		}
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
