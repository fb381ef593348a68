package csvfile

import (
	"encoding/csv"
	"fmt"

	"github.com/AlfredBerg/rod-jobs/internal/outputHandlers"
	"github.com/spf13/afero"
)

// ensure CsvOutput implements outputHandlers.Handler
var _ outputHandlers.Handler = (*CsvOutput)(nil)

// CsvOutput writes listings as comma separated UTF-8 rows terminated by CRLF, one flushed
// row per listing.
type CsvOutput struct {
	Path string

	file afero.File
	w    *csv.Writer
}

// New truncates or creates the file at path and writes the header row.
func New(fs afero.Fs, path string) (*CsvOutput, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	w.UseCRLF = true
	o := &CsvOutput{Path: path, file: f, w: w}
	if err := o.write(outputHandlers.Header); err != nil {
		f.Close()
		return nil, err
	}
	return o, nil
}

func (o *CsvOutput) write(record []string) error {
	if err := o.w.Write(record); err != nil {
		return fmt.Errorf("writing %s: %w", o.Path, err)
	}
	o.w.Flush()
	if err := o.w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", o.Path, err)
	}
	return nil
}

func (o *CsvOutput) HandleListing(l outputHandlers.Listing) error {
	return o.write(l.Row())
}

func (o *CsvOutput) Close() error {
	o.w.Flush()
	if err := o.w.Error(); err != nil {
		o.file.Close()
		return fmt.Errorf("flushing %s: %w", o.Path, err)
	}
	return o.file.Close()
}
