// Package scenarios embeds the built-in scenario catalog.
package scenarios

import "embed"

// FS holds the bundled scenario definitions.
//
//go:embed *.yaml
var FS embed.FS
