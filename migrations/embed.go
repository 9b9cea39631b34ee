// Package migrations embeds the SQL schema migrations into the binary
// and registers them with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/slotline/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
