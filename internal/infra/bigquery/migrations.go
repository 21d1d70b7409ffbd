package bigquery

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/customer-rfm/internal/logger"
	"google.golang.org/api/iterator"
)

// Placeholders substituted into migration SQL.
const (
	ProjectPlaceholder = "{{PROJECT_ID}}"
	DatasetPlaceholder = "{{DATASET_ID}}"
)

// migrationPattern matches migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// ParseMigrationFilename extracts version and name from a migration filename.
func ParseMigrationFilename(filename string) (int, string, bool) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// ReadMigrations reads all migration files from dir, substitutes the dataset
// placeholders and returns them sorted by version. The checksum covers the
// file content before substitution so it does not depend on the target dataset.
func ReadMigrations(ctx context.Context, dir string, ds Dataset) ([]Migration, error) {
	log := logger.FromContext(ctx)

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ReadMigrations: reading migrations directory: %w", err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		version, name, ok := ParseMigrationFilename(file.Name())
		if !ok {
			log.Warn().Str("file", file.Name()).Msg("Skipping file with invalid migration name")
			continue
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("ReadMigrations: version %04d used by %s and %s", version, other, file.Name())
		}
		seen[version] = file.Name()

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("ReadMigrations: reading file %s: %w", file.Name(), err)
		}

		sql := string(content)
		sql = strings.ReplaceAll(sql, ProjectPlaceholder, ds.ProjectID)
		sql = strings.ReplaceAll(sql, DatasetPlaceholder, ds.DatasetID)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// PendingMigrations returns the migrations whose version is not yet applied.
// Applied migrations whose checksum no longer matches the file are reported
// in drifted.
func PendingMigrations(migrations []Migration, applied []AppliedMigration) (pending []Migration, drifted []Migration) {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	for _, m := range migrations {
		am, ok := byVersion[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			drifted = append(drifted, m)
		}
	}
	return pending, drifted
}

// Migrator applies migration files to a dataset and records them in schema_migrations.
type Migrator struct {
	client    *bigquery.Client
	dataset   Dataset
	appliedBy string
}

// NewMigrator creates a Migrator using an existing client.
func NewMigrator(client *bigquery.Client, dataset Dataset, appliedBy string) *Migrator {
	return &Migrator{client: client, dataset: dataset, appliedBy: appliedBy}
}

// Apply runs every pending migration in dir in version order and returns how many ran.
// With dryRun set it only reports what would run.
func (m *Migrator) Apply(ctx context.Context, dir string, dryRun bool) (int, error) {
	log := logger.FromContext(ctx)

	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("Apply: ensuring schema_migrations table: %w", err)
	}

	migrations, err := ReadMigrations(ctx, dir, m.dataset)
	if err != nil {
		return 0, fmt.Errorf("Apply: %w", err)
	}
	log.Info().Int("files", len(migrations)).Msg("Found migration files")

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("Apply: %w", err)
	}
	log.Info().Int("applied", len(applied)).Msg("Found already applied migrations")

	pending, drifted := PendingMigrations(migrations, applied)
	for _, d := range drifted {
		log.Warn().Str("migration", d.Filename).Msg("Applied migration changed on disk")
	}

	for _, migration := range pending {
		mlog := log.With().Int("version", migration.Version).Str("name", migration.Name).Logger()
		if dryRun {
			mlog.Info().Msg("Would apply migration")
			continue
		}

		mlog.Info().Msg("Applying migration")
		if err := runAndWait(ctx, m.client.Query(migration.SQL)); err != nil {
			return 0, fmt.Errorf("Apply: executing %s: %w", migration.Filename, err)
		}
		if err := m.recordMigration(ctx, migration); err != nil {
			return 0, fmt.Errorf("Apply: recording %s: %w", migration.Filename, err)
		}
		mlog.Info().Msg("Migration applied")
	}

	if dryRun {
		return 0, nil
	}
	return len(pending), nil
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func (m *Migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	q := m.client.Query(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, m.dataset.Table(schemaMigrationTable)))
	return runAndWait(ctx, q)
}

// appliedMigrations retrieves the list of already applied migrations
func (m *Migrator) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	q := m.client.Query(fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM %s
		ORDER BY version ASC
	`, m.dataset.Table(schemaMigrationTable)))

	it, err := q.Read(ctx)
	if err != nil {
		// If table doesn't exist yet, return empty list
		if strings.Contains(err.Error(), "Not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}

	return applied, nil
}

// recordMigration records a successfully applied migration in schema_migrations
func (m *Migrator) recordMigration(ctx context.Context, migration Migration) error {
	q := m.client.Query(fmt.Sprintf(`
		INSERT INTO %s
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, m.dataset.Table(schemaMigrationTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: migration.Version},
		{Name: "name", Value: migration.Name},
		{Name: "checksum", Value: migration.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	}
	return runAndWait(ctx, q)
}
