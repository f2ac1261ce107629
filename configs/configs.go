// Package configs embeds the default scenario and tuning so binaries run without a config directory.
package configs

import _ "embed"

//go:embed scenario.yaml
var Scenario []byte

//go:embed tuning.yaml
var Tuning []byte
