package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voiceagent/internal/config"
	"github.com/teslashibe/go-voiceagent/pkg/catalog"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the deployment config and edit agent settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config and the persisted settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("# %s\n", configPath)
		if err := toml.NewEncoder(os.Stdout).Encode(redact(cfg)); err != nil {
			return err
		}

		cat := catalog.Default()
		store := catalog.NewFileStore(cfg.Agent.SettingsPath, cat.DefaultSettings())
		settings, err := store.Load()
		if err != nil {
			return err
		}
		fmt.Printf("\n# settings: %s\n", store.Path())
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(settings)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a persisted agent setting",
	Long: `Change a persisted agent setting. Keys: model, voice, system_prompt,
vad_preset, fallback_enabled, fallback_chain (comma separated, empty resets).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := parseSettingsPatch(args[0], args[1])
		if err != nil {
			return err
		}

		cat := catalog.Default()
		store := catalog.NewFileStore(cfg.Agent.SettingsPath, cat.DefaultSettings())
		current, err := store.Load()
		if err != nil {
			return err
		}
		next := current.Apply(patch)
		if err := cat.Validate(next); err != nil {
			return err
		}
		if err := store.Save(next); err != nil {
			return err
		}
		logger.Info("settings updated", "key", args[0], "path", store.Path())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// parseSettingsPatch turns one key/value pair into a settings patch.
func parseSettingsPatch(key, value string) (catalog.SettingsPatch, error) {
	var patch catalog.SettingsPatch
	switch key {
	case "model":
		patch.Model = &value
	case "voice":
		patch.Voice = &value
	case "system_prompt":
		patch.SystemPrompt = &value
	case "vad_preset":
		patch.VADPreset = &value
	case "fallback_enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return patch, fmt.Errorf("fallback_enabled: %w", err)
		}
		patch.FallbackEnabled = &b
	case "fallback_chain":
		chain := []string{}
		for _, k := range strings.Split(value, ",") {
			if k = strings.TrimSpace(k); k != "" {
				chain = append(chain, k)
			}
		}
		patch.FallbackChain = &chain
	default:
		return patch, fmt.Errorf("unknown setting %q", key)
	}
	return patch, nil
}

// redact masks API keys for display.
func redact(c config.Config) config.Config {
	providers := make(map[string]config.ProviderConfig, len(c.Providers))
	for name, p := range c.Providers {
		if p.APIKey != "" {
			p.APIKey = mask(p.APIKey)
		}
		providers[name] = p
	}
	c.Providers = providers
	return c
}

func mask(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
