package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/ginjaninja78/chms-migrate/internal/config"
	"github.com/ginjaninja78/chms-migrate/internal/csvwriter"
	"github.com/ginjaninja78/chms-migrate/internal/importapi"
	"github.com/ginjaninja78/chms-migrate/internal/types"
	"github.com/ginjaninja78/chms-migrate/internal/xmlwriter"
)

// schemaFileName sits next to the XML document.
const schemaFileName = "interchange.xsd"

// fanOut hands every record to each writer in turn.
type fanOut []types.Writer

func (f fanOut) Write(r types.Record) error {
	for _, w := range f {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer, even after a failure.
func (f fanOut) Close() error {
	var errs []error
	for _, w := range f {
		errs = append(errs, closeWriter(w))
	}
	return errors.Join(errs...)
}

// Flush sends whatever the batching writers still hold.
func (f fanOut) Flush() error {
	var errs []error
	for _, w := range f {
		if fw, ok := w.(interface{ Flush() error }); ok {
			errs = append(errs, fw.Flush())
		}
	}
	return errors.Join(errs...)
}

func closeWriter(w types.Writer) error {
	if c, ok := w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// openWriters builds one writer per enabled format. Files go into dir.
func openWriters(ctx context.Context, cfg *config.Config, fsys afero.Fs, dir string, log logrus.FieldLogger) (types.Writer, error) {
	var out fanOut
	fail := func(err error) (types.Writer, error) {
		_ = out.Close()
		return nil, err
	}

	if cfg.Output.HasFormat(config.FormatCSV) {
		w, err := csvwriter.NewWriter(fsys, dir)
		if err != nil {
			return fail(err)
		}
		out = append(out, w)
	}

	if cfg.Output.HasFormat(config.FormatXML) {
		opts := xmlwriter.DefaultGenerateOptions()
		xsd, err := xmlwriter.GenerateXSD(opts)
		if err != nil {
			return fail(err)
		}
		if err := afero.WriteFile(fsys, filepath.Join(dir, schemaFileName), xsd, 0o644); err != nil {
			return fail(fmt.Errorf("write schema: %w", err))
		}
		f, err := fsys.Create(filepath.Join(dir, xmlwriter.FileName))
		if err != nil {
			return fail(fmt.Errorf("create %s: %w", xmlwriter.FileName, err))
		}
		out = append(out, xmlwriter.NewWriter(f, opts))
	}

	if cfg.Output.HasFormat(config.FormatAPI) {
		client, err := importapi.NewClient(importapi.Options{
			BaseURL:    cfg.ImportAPI.BaseURL,
			APIKey:     cfg.ImportAPI.APIKey,
			BatchSize:  cfg.ImportAPI.BatchSize,
			Timeout:    cfg.ImportAPI.Timeout,
			MaxRetries: cfg.ImportAPI.MaxRetries,
			Logger:     log,
		})
		if err != nil {
			return fail(err)
		}
		out = append(out, client.Writer(ctx))
	}

	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}
