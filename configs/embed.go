// Package configs provides embedded configuration templates for Beacon.
//
// Templates are embedded at build time with go:embed so they ship in
// every distribution, source builds included.
//
// Configuration hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config/config.go NewConfig())
//  2. User config (~/.config/beacon/config.yaml)
//  3. Project config (.beacon.yaml)
//  4. Environment variables (BEACON_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration.
// Created by `beacon config init` at ~/.config/beacon/config.yaml.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration.
// Created by `beacon config init --project` at .beacon.yaml in the
// working directory.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
