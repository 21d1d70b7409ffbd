package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInputRequired is returned when neither a workbook nor a BigQuery source is configured
	ErrInputRequired = errors.New("an input workbook path or a BigQuery source table is required")

	// ErrAmbiguousInput is returned when both inputs are configured
	ErrAmbiguousInput = errors.New("configure either an input workbook or a BigQuery source, not both")

	// ErrProjectRequired is returned when a BigQuery feature is enabled without a project
	ErrProjectRequired = errors.New("bigquery project is required")

	// ErrNotionDatabaseRequired is returned when Notion sync is enabled without a database
	ErrNotionDatabaseRequired = errors.New("notion database id is required")
)

// Environment overrides.
const (
	EnvProject     = "GOOGLE_CLOUD_PROJECT"
	EnvNotionToken = "NOTION_TOKEN"
	EnvPushgateway = "RFM_PUSHGATEWAY_URL"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "rfm.yaml"

// Config is the full run configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Input    InputConfig    `yaml:"input"`
	BigQuery BigQueryConfig `yaml:"bigquery"`
	Output   OutputConfig   `yaml:"output"`
	Notion   NotionConfig   `yaml:"notion"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	API      APIConfig      `yaml:"api"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"console"`
}

// InputConfig locates the transaction workbook.
type InputConfig struct {
	// Path is a local file or a gs:// URI
	Path string `yaml:"path"`

	// Sheets limits loading to these sheets; empty means every sheet
	Sheets []string `yaml:"sheets"`

	Columns ColumnsConfig `yaml:"columns"`

	// DateLayouts are Go time layouts tried in order before Excel serials
	DateLayouts []string `yaml:"date_layouts"`
}

// ColumnsConfig names the header cells of the source sheets. Matching is case-insensitive.
type ColumnsConfig struct {
	Identifier    string `yaml:"identifier" default:"c_mobile"`
	InvoiceNumber string `yaml:"invoice_number" default:"invno"`
	InvoiceDate   string `yaml:"invoice_date" default:"invdate"`
	ItemName      string `yaml:"item_name" default:"itemname"`
	NetAmount     string `yaml:"net_amount" default:"n_net_sales"`
}

type BigQueryConfig struct {
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset" default:"rfm"`

	// SourceTable switches the input to the raw_transactions table when set
	SourceTable string `yaml:"source_table"`

	// SourcePeriods limits the BigQuery source to these periods
	SourcePeriods []string `yaml:"source_periods"`

	WriteResults bool `yaml:"write_results"`
	TrackRuns    bool `yaml:"track_runs"`

	MigrationsDir string `yaml:"migrations_dir" default:"migrations/bigquery"`
}

// Enabled reports whether any BigQuery feature needs a client.
func (c BigQueryConfig) Enabled() bool {
	return c.SourceTable != "" || c.WriteResults || c.TrackRuns
}

type OutputConfig struct {
	// Path is a local file or a gs:// URI; empty disables the workbook sink
	Path  string `yaml:"path" default:"RFM_output_clean.xlsx"`
	Sheet string `yaml:"sheet" default:"RFM"`

	// SummarySheet receives the per-segment table; empty skips it
	SummarySheet string `yaml:"summary_sheet" default:"Segments"`
}

type NotionConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"database_id"`
	DryRun     bool   `yaml:"dry_run"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job" default:"rfm_segmentation"`
}

type APIConfig struct {
	Port           string `yaml:"port" default:"8080"`
	AllowedOrigins string `yaml:"allowed_origins" default:"*"`

	// EnableRuns lets POST /api/runs queue segmentation runs
	EnableRuns bool `yaml:"enable_runs"`
	QueueSize  int  `yaml:"queue_size" default:"16"`
}

// Load reads the YAML file at path on top of the defaults and applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("Load: applying defaults: %w", err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("Load: parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("Load: reading %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvProject); v != "" && c.BigQuery.Project == "" {
		c.BigQuery.Project = v
	}
	if v := os.Getenv(EnvNotionToken); v != "" {
		c.Notion.Token = v
	}
	if v := os.Getenv(EnvPushgateway); v != "" {
		c.Metrics.PushgatewayURL = v
	}
}

// Validate checks the settings needed by a segmentation run.
func (c *Config) Validate() error {
	hasWorkbook := strings.TrimSpace(c.Input.Path) != ""
	hasTable := strings.TrimSpace(c.BigQuery.SourceTable) != ""

	switch {
	case !hasWorkbook && !hasTable:
		return ErrInputRequired
	case hasWorkbook && hasTable:
		return ErrAmbiguousInput
	}

	if c.BigQuery.Enabled() && c.BigQuery.Project == "" {
		return ErrProjectRequired
	}
	if c.Notion.Enabled && c.Notion.DatabaseID == "" {
		return ErrNotionDatabaseRequired
	}
	if c.Output.Path != "" && c.Output.Sheet == c.Output.SummarySheet {
		return fmt.Errorf("output sheet and summary sheet must differ, both are %q", c.Output.Sheet)
	}
	return nil
}
