package database

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one versioned pair of Postgres scripts under migrations/,
// named <version>_<name>.up.sql and <version>_<name>.down.sql.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
	// Tables lists the tables the up script creates.
	Tables []string
}

// Checksum identifies the up script; an applied migration whose script
// later changes is reported as drift.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.Up))
	return hex.EncodeToString(sum[:])
}

func (m Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

var createTableRe = regexp.MustCompile(`(?i)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?"?([a-z_][a-z0-9_]*)"?`)

var (
	loadOnce      sync.Once
	loaded        []Migration
	loadErr       error
	migrationFile = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.up\.sql$`)
)

// Migrations returns the embedded migrations ordered by version.
func Migrations() ([]Migration, error) {
	loadOnce.Do(func() {
		loaded, loadErr = parseMigrations(migrationFS, "migrations")
	})
	return loaded, loadErr
}

func parseMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var out []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		match := migrationFile.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("migration %s: expected <version>_<name>.up.sql", entry.Name())
		}
		version, err := strconv.Atoi(match[1])
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: invalid version", entry.Name())
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by both %s and %s", version, other, entry.Name())
		}
		seen[version] = entry.Name()

		up, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		downName := strings.TrimSuffix(entry.Name(), ".up.sql") + ".down.sql"
		down, err := fs.ReadFile(fsys, path.Join(dir, downName))
		if err != nil {
			return nil, fmt.Errorf("migration %s has no %s: %w", entry.Name(), downName, err)
		}

		m := Migration{Version: version, Name: match[2], Up: string(up), Down: string(down)}
		for _, t := range createTableRe.FindAllStringSubmatch(m.Up, -1) {
			m.Tables = append(m.Tables, strings.ToLower(t[1]))
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func migrationByVersion(ms []Migration, version int) (Migration, bool) {
	for _, m := range ms {
		if m.Version == version {
			return m, true
		}
	}
	return Migration{}, false
}
