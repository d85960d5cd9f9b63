// Package configs provides embedded configuration templates for searchsync.
//
// The templates are used by:
//   - cmd/searchsync/cmd/config.go: `config init` writes .searchsync.yaml and
//     searchsync.types.yaml into the project
//   - cmd/searchsync/cmd/config.go: `config init --user` writes
//     ~/.config/searchsync/config.yaml
//
// To modify templates, edit the .yaml files in this directory and rebuild.
package configs

import _ "embed"

// UserConfigTemplate holds machine-wide settings such as cluster hosts and
// the log level.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written to .searchsync.yaml in the project root.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// TypesTemplate is an example type registry, written next to the project
// config when none exists.
//
//go:embed types.example.yaml
var TypesTemplate string
