package config

import _ "embed"

// Default holds the built-in configuration merged beneath conf.yaml.
//
//go:embed conf.default.yaml
var Default []byte
