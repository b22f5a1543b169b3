// Package config embeds the starter configuration written by
// "agentchat config create".
package config

import (
	"embed"
)

// DefaultConfigYAML is the starter configuration file.
//
//go:embed agentchat.default.yaml
var DefaultConfigYAML []byte

// PromptsFS holds the starter prompt files referenced by DefaultConfigYAML.
//
//go:embed prompts/*.md
var PromptsFS embed.FS

// PromptsDir is the directory within PromptsFS holding the prompts.
const PromptsDir = "prompts"

// ConfigFileName is the name the starter configuration is written as.
const ConfigFileName = "agentchat.yaml"
