package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/kathiravelulab/atlastrace/types"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new atlastrace configuration file",
	Long: `Initialize a new AtlasTraceConfig.yml file with default settings.
This creates a template configuration that you can customize: the
measurement to analyze, the target address and ASN, packets per hop and
the probe list with its locations.`,
	Run: func(cmd *cobra.Command, args []string) {
		config := types.PipelineConfig{
			MeasurementID:  113897643,
			TargetAddress:  "100.64.0.1",
			TargetASN:      14593,
			PacketsPerHop:  3,
			ExpectedProbes: 3,
			DataDir:        "data",
			Snapshot:       types.SnapshotConfig{Reuse: false},
			Probes: []types.ProbeEntry{
				{ID: 60812, Country: "Benin", Continent: "Africa"},
				{ID: 51593, Country: "Germany", Continent: "Europe"},
				{ID: 1007645, Country: "Chile", Continent: "South America"},
			},
			Definitions: []types.MeasurementDefinition{
				{
					ProbeIDs:        []int{60812, 51593, 1007645},
					Target:          "100.64.0.1",
					MeasurementType: "traceroute",
					IntervalSeconds: 900,
					Packets:         3,
				},
			},
		}

		yamlData, err := yaml.Marshal(&config)
		if err != nil {
			fmt.Printf("Error marshaling config: %v\n", err)
			return
		}

		err = os.WriteFile(configFile, yamlData, 0644)
		if err != nil {
			fmt.Printf("Error writing config file: %v\n", err)
			return
		}

		fmt.Printf("%s created successfully with default settings.\n", configFile)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
