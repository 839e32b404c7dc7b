package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Zerofisher/wordchain/fields"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List available resources",
	Long:    `List output fields, the effective configuration, and other resources.`,
	GroupID: "info",
}

// fields subcommand flags
var listFieldsFilter string

// config subcommand flags
var listConfigSave string

var listFieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List available word fields",
	Long:  `Display the fields that can be extracted with -e.`,
	Example: `  wordchain list fields
  wordchain list fields --filter ratio`,
	RunE: runListFields,
}

var listConfigCmd = &cobra.Command{
	Use:     "config",
	Short:   "Show the effective configuration",
	Long: `Print the configuration after applying the config file and environment
overrides. The password is masked. With --save the effective configuration
is written to a YAML file that --config can load later.`,
	Example: `  DB_NAME=words.db wordchain list config
  wordchain list config --save ~/.config/wordchain.yaml`,
	RunE:    runListConfig,
}

func init() {
	// fields flags
	listFieldsCmd.Flags().StringVar(&listFieldsFilter, "filter", "",
		"Filter fields by name pattern")

	// config flags
	listConfigCmd.Flags().StringVar(&listConfigSave, "save", "",
		"Write the effective configuration to this file")

	listCmd.AddCommand(listFieldsCmd)
	listCmd.AddCommand(listConfigCmd)
}

// runListFields lists available word fields
func runListFields(cmd *cobra.Command, args []string) error {
	registry := fields.NewRegistry()
	fieldList := registry.List()

	// Filter if pattern specified
	if listFieldsFilter != "" {
		filtered := make([]string, 0)
		for _, name := range fieldList {
			if strings.Contains(strings.ToLower(name), strings.ToLower(listFieldsFilter)) {
				filtered = append(filtered, name)
			}
		}
		fieldList = filtered
	}

	fmt.Println("Available fields:")
	fmt.Println("Name\t\t\tType\tDescription")
	fmt.Println(strings.Repeat("-", 70))

	for _, name := range fieldList {
		if info := registry.GetFieldInfo(name); info != "" {
			fmt.Println(info)
		}
	}

	if len(fieldList) == 0 && listFieldsFilter != "" {
		fmt.Printf("No fields matching '%s' found.\n", listFieldsFilter)
	}

	return nil
}

// runListConfig prints the effective configuration
func runListConfig(cmd *cobra.Command, args []string) error {
	if listConfigSave != "" {
		if err := appConfig.Save(listConfigSave); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", listConfigSave)
		return nil
	}

	cfg := *appConfig
	if cfg.Database.Pass != "" {
		cfg.Database.Pass = "********"
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(&cfg)
}
