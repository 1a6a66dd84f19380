package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/roman-kulish/fsm-monitor/internal/export"
)

type Config struct {
	DBPath    string
	SessionID string // Empty selects the latest session
	OutputDir string
	Format    export.Format
	Verbose   bool
}

func NewConfig() *Config {
	return &Config{
		OutputDir: ".",
		Format:    export.FormatXLSX,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return newConfigFromArgs(flag.CommandLine, os.Args[1:])
}

func newConfigFromArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()

	var format string
	fs.StringVar(&c.DBPath, "db", "", "Path to the session journal")
	fs.StringVar(&c.SessionID, "s", "", "Session UUID, defaults to the latest session")
	fs.StringVar(&c.OutputDir, "o", c.OutputDir, "Output directory")
	fs.StringVar(&format, "f", string(c.Format), "Output format. [xlsx, csv, parquet]")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.OutputDir == "" {
		err = errors.New("output directory is required")
	} else if c.SessionID != "" {
		if _, pErr := uuid.Parse(c.SessionID); pErr != nil {
			err = fmt.Errorf("invalid session id: %w", pErr)
		}
	}
	if err == nil {
		c.Format, err = export.ParseFormat(format)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	return c, nil
}
