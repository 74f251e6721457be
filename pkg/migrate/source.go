package migrate

import (
	"embed"
	"io/fs"
	"os"
)

// DefaultDir is where new migrations are written during development.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source returns the migrations under dir, or the set compiled into the
// binary when dir is empty.
func Source(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		return embedded
	}
	return sub
}
