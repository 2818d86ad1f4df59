//go:generate go run ../build/gen-config-schema.go schema.json

// Package config embeds the JSON schema of the assetctl configuration file.
// The schema is reflected from internal/config.Root; regenerate it with
// go generate after changing the configuration structs.
package config

import (
	_ "embed"
)

//go:embed "schema.json"
var schema []byte

func Schema() []byte {
	return schema
}
