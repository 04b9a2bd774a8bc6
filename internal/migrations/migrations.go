package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed sql/*.sql
var files embed.FS

// All returns every embedded migration in filename order.
func All() ([]string, error) {
	entries, err := fs.ReadDir(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("could not list embedded migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	scripts := make([]string, 0, len(names))
	for _, name := range names {
		content, err := files.ReadFile("sql/" + name)
		if err != nil {
			return nil, fmt.Errorf("could not read migration %s: %w", name, err)
		}
		scripts = append(scripts, string(content))
	}
	return scripts, nil
}
