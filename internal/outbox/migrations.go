package outbox

import (
	"context"
	"embed"
	"fmt"
	"path"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// schemaStep is one numbered file under migrations/, e.g. 001_messages.sql.
type schemaStep struct {
	version int
	name    string
	sql     string
}

// schemaSteps returns the embedded steps in version order.
func schemaSteps() ([]schemaStep, error) {
	files, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	steps := make([]schemaStep, 0, len(files))
	for _, f := range files {
		prefix, _, ok := strings.Cut(f.Name(), "_")
		if f.IsDir() || !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: version prefix: %w", f.Name(), err)
		}
		data, err := migrationFS.ReadFile(path.Join("migrations", f.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", f.Name(), err)
		}
		steps = append(steps, schemaStep{version: version, name: f.Name(), sql: string(data)})
	}
	// ReadDir sorts by name; zero-padded prefixes keep that numeric.
	return steps, nil
}

// migrate brings the journal schema up to date, tracking progress in
// PRAGMA user_version so each step runs exactly once.
func (s *Store) migrate(ctx context.Context) error {
	steps, err := schemaSteps()
	if err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, step := range steps {
		if step.version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", step.name, err)
		}
		if _, err := tx.ExecContext(ctx, step.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", step.name, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", step.version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", step.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", step.name, err)
		}
		current = step.version
	}
	return nil
}

// SchemaVersion reports the applied journal schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
