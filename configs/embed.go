// Package configs embeds the configuration templates written by
// `amanrag config init`.
//
// Configuration hierarchy (see internal/config Load):
//  1. Built-in defaults
//  2. User config ($XDG_CONFIG_HOME/amanrag/config.yaml)
//  3. Project config (.amanrag.yaml)
//  4. Environment variables (AMANRAG_*)
package configs

import _ "embed"

// ProjectConfigTemplate is written to .amanrag.yaml by `amanrag config init`.
// It holds corpus and ranking settings that travel with the data.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// UserConfigTemplate is written by `amanrag config init --user`.
// It holds machine settings such as the data directory, cache and logging.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
