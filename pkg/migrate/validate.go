package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// File is one goose SQL migration on disk.
type File struct {
	Version int64
	Name    string
}

// ListFiles returns the migrations in dir ordered by version. An empty dir
// lists the embedded set.
func ListFiles(dir string) ([]File, error) {
	entries, err := fs.ReadDir(Source(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations %q: %w", dir, err)
	}

	var files []File
	seen := map[int64]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		name := e.Name()
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version, _ := strconv.ParseInt(m[1], 10, 64)
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %d in %q and %q", version, prev, name)
		}
		seen[version] = name
		files = append(files, File{Version: version, Name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

// ValidateDir checks filenames, goose section markers and statement block balance.
func ValidateDir(dir string) error {
	files, err := ListFiles(dir)
	if err != nil {
		return err
	}
	fsys := Source(dir)
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f.Name)
		if err != nil {
			return fmt.Errorf("read migration %q: %w", f.Name, err)
		}
		if err := validateContent(string(b)); err != nil {
			return fmt.Errorf("migration %q: %w", f.Name, err)
		}
	}
	return nil
}

func validateContent(txt string) error {
	up := strings.Index(txt, "-- +goose Up")
	down := strings.Index(txt, "-- +goose Down")
	if up < 0 {
		return fmt.Errorf("missing \"-- +goose Up\"")
	}
	if down < 0 {
		return fmt.Errorf("missing \"-- +goose Down\"")
	}
	if down < up {
		return fmt.Errorf("\"-- +goose Down\" precedes \"-- +goose Up\"")
	}
	begins := strings.Count(txt, "-- +goose StatementBegin")
	ends := strings.Count(txt, "-- +goose StatementEnd")
	if begins != ends {
		return fmt.Errorf("unbalanced statement blocks (%d begin, %d end)", begins, ends)
	}
	return nil
}
