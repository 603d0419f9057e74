package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

//go:embed *.sql
var files embed.FS

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Up, Down:
		return Direction(s), nil
	}
	return "", fmt.Errorf("direction must be 'up' or 'down', got %q", s)
}

// Files returns the migration file names for direction in the order they run.
func Files(direction Direction) ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), fmt.Sprintf(".%s.sql", direction)) {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)
	if direction == Down {
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
	}

	return names, nil
}

func Run(ctx context.Context, db *sql.DB, direction Direction, log logrus.FieldLogger) (int, error) {
	names, err := Files(direction)
	if err != nil {
		return 0, err
	}

	for _, name := range names {
		content, err := files.ReadFile(name)
		if err != nil {
			return 0, fmt.Errorf("read migration file %s: %w", name, err)
		}

		log.WithField("file", name).Info("Running migration")
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return 0, fmt.Errorf("execute migration %s: %w", name, err)
		}
	}

	return len(names), nil
}
