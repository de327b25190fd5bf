// Package migrations embeds the SQL schema migrations into the binary.
//
// Importing this package (usually blank, from main) registers the files with
// the database package, so nearclipd needs no SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nearclip/nearclip-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
