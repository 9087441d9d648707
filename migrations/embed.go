// Package migrations carries the sighting-log schema as embedded SQL
// files, so the gateway binary migrates its own database without any
// files on disk.
package migrations

import (
	"embed"

	"github.com/tagbridge/tagbridge-core/internal/infrastructure/database"
)

//go:embed *.sql
var schemaFS embed.FS

func init() {
	database.MigrationsFS = schemaFS
	database.MigrationsDir = "."
}
