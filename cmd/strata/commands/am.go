package commands

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/strata/am"
	"github.com/teranos/strata/display"
	"github.com/teranos/strata/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage strata configuration",
	Long: `am: manage strata configuration ("I am")

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (STRATA_* prefix)
3. Project config (strata.toml or am.toml, nearest walking up)
4. User config (~/.strata/am.toml)
5. Default values

Examples:
  strata am show                    # Show current configuration
  strata am show --format yaml      # Show configuration as YAML
  strata am show --sources          # Show where each value came from
  strata am get storage.backend     # Get one value
  strata am init                    # Write ./am.toml with the defaults`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., storage.backend, autosave.interval_ms)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show which configuration files are loaded",
	RunE:  runAmWhere,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAmInit,
}

var (
	configFormat  string
	configSources bool
	initForce     bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amShowCmd.Flags().BoolVar(&configSources, "sources", false, "Show the source of every setting")
	amInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file (previous copies are kept as .back1-3)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	if configSources {
		return showSources(cmd)
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	switch configFormat {
	case "json":
		return display.OutputJSON(cfg)
	case "yaml":
		data, err := am.MarshalYAML(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("# strata configuration\n%s", data)
	case "toml":
		data, err := am.MarshalTOML(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("# strata configuration\n%s", data)
	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func showSources(cmd *cobra.Command) error {
	settings := am.Introspect()
	if display.ShouldOutputJSON(cmd) || configFormat == "json" {
		return display.OutputJSON(settings)
	}

	rows := make([][]string, 0, len(settings))
	for _, s := range settings {
		rows = append(rows, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
	}
	return display.Table([]string{"Key", "Value", "Source", "From"}, rows, "No settings")
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.WithHint(errors.Newf("configuration key %q not found", key),
			"run 'strata am show --sources' to list every key")
	}
	fmt.Println(v.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	// Load validates; a returned config is a valid one.
	if _, err := am.Load(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	rows := [][]string{
		{"user", am.UserConfigPath(), fileState(am.UserConfigPath())},
	}
	if project := am.FindProjectConfig(); project != "" {
		rows = append(rows, []string{"project", project, "loaded"})
	} else {
		rows = append(rows, []string{"project", "(none found walking up from cwd)", "missing"})
	}
	rows = append(rows, []string{"environment", am.EnvPrefix + "_*", "always"})
	return display.Table([]string{"Source", "Path", "State"}, rows, "")
}

func fileState(path string) string {
	if path == "" {
		return "unavailable"
	}
	if _, err := os.Stat(path); err != nil {
		return "missing"
	}
	return "loaded"
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := "am.toml"
	if len(args) == 1 {
		path = args[0]
	}
	if err := am.WriteFile(path, am.Defaults(), initForce); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s\n", path)
	return nil
}
