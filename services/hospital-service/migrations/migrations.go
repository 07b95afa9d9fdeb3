// Package migrations embeds the hospital-service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
