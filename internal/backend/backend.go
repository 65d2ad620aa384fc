// Package backend selects the report output the worker writes to.
package backend

import (
	"context"
	"errors"
	"fmt"

	"eventfin/internal/config"
	applog "eventfin/internal/log"
	"eventfin/internal/sheets"
	gsheet "eventfin/internal/sheets/google"
	"eventfin/internal/sheets/memory"
)

// Type names a report output backend.
type Type string

const (
	SheetsBackend Type = "sheets"
	MemoryBackend Type = "memory"
)

// IsValid reports whether t is a known backend.
func (t Type) IsValid() bool {
	return t == SheetsBackend || t == MemoryBackend
}

func (t Type) String() string { return string(t) }

// Config describes the output backend to build.
type Config struct {
	Type Type

	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// FromAppConfig picks Google Sheets when a spreadsheet is configured and the
// in-memory store otherwise.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	cfg := Config{
		Type:            MemoryBackend,
		SpreadsheetID:   appConfig.GoogleSpreadsheetID,
		SheetName:       appConfig.GoogleSheetName,
		CredentialsJSON: appConfig.GoogleServiceAccountJSON,
		CredentialsFile: appConfig.GoogleServiceAccountFile,
	}
	if cfg.SpreadsheetID != "" {
		cfg.Type = SheetsBackend
	}
	return cfg, cfg.Validate()
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SheetsBackend {
		if c.SpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets backend")
		}
		if c.CredentialsJSON == "" && c.CredentialsFile == "" {
			return errors.New("service account credentials are required for sheets backend")
		}
	}
	return nil
}

// Result holds the constructed writer. Memory is set only for the memory
// backend so callers can inspect what was written.
type Result struct {
	Type   Type
	Writer sheets.ReportWriter
	Memory *memory.Store
}

// NewReportWriter builds the writer described by cfg.
func NewReportWriter(ctx context.Context, cfg Config, logger *applog.Logger) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	logger = logger.WithComponent(applog.ComponentSheets)

	switch cfg.Type {
	case SheetsBackend:
		client, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   cfg.SpreadsheetID,
			SheetName:       cfg.SheetName,
			CredentialsJSON: cfg.CredentialsJSON,
			CredentialsFile: cfg.CredentialsFile,
		})
		if err != nil {
			return Result{}, fmt.Errorf("create sheets backend: %w", err)
		}
		logger.Info("Google Sheets backend initialized", "spreadsheet_id", cfg.SpreadsheetID, "sheet", cfg.SheetName)
		return Result{Type: cfg.Type, Writer: client}, nil
	default:
		store := memory.New()
		logger.Warn("Memory backend initialized - reports are not persisted")
		return Result{Type: cfg.Type, Writer: store, Memory: store}, nil
	}
}
