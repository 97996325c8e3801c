package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voiceagent/pkg/tools"
)

var toolsFormat string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool declarations sent to vendors",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := tools.NewRegistry(logger)
		registry.MustRegister(hostTools()...)
		defs := append(tools.Builtins(), registry.List()...)

		var out any
		switch toolsFormat {
		case "gemini":
			out = tools.GeminiDeclarations(defs)
		case "openai":
			out = tools.OpenAITools(defs)
		case "jsonschema":
			out = tools.JSONSchemaTools(defs)
		default:
			return fmt.Errorf("unknown format %q (gemini, openai, jsonschema)", toolsFormat)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	toolsCmd.Flags().StringVar(&toolsFormat, "format", "jsonschema", "output format: gemini, openai, jsonschema")
	rootCmd.AddCommand(toolsCmd)
}
