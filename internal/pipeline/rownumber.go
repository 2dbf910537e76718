package pipeline

import (
	"context"
	stdcsv "encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hubspot/pkg/connector/destinations/csv"
	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
	"github.com/ajitpratap0/nebula-hubspot/pkg/models"
)

// RowNumberColumn is appended to every row of the output table
const RowNumberColumn = "row_number"

// RowNumberConfig configures the row number transformation
type RowNumberConfig struct {
	InputDir  string
	OutputDir string
	// Input and Output are table names; a trailing ".csv" is ignored
	Input  string
	Output string
	Writer csv.Options
	// LogRows logs every row at info level
	LogRows bool
}

// RowNumber copies the input table to the output table with an extra
// 0-based row_number column, and writes the output manifest with
// row_number as an incremental primary key.
func RowNumber(ctx context.Context, fs afero.Fs, cfg RowNumberConfig, log *zap.Logger) (manifest models.Manifest, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	input := strings.TrimSuffix(cfg.Input, ".csv")
	output := strings.TrimSuffix(cfg.Output, ".csv")
	if input == "" || output == "" {
		return models.Manifest{}, errors.New(errors.ErrorTypeConfig, "row number transformation needs input and output tables")
	}
	log = log.With(zap.String("component", "row_number"), zap.String("input", input), zap.String("output", output))

	inPath := filepath.Join(cfg.InputDir, input+".csv")
	file, err := fs.Open(inPath)
	if err != nil {
		return models.Manifest{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to open input table").
			WithDetail("table", input).
			WithDetail("path", inPath)
	}
	defer file.Close()

	reader := stdcsv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return models.Manifest{}, errors.Wrap(err, errors.ErrorTypeData, "input table has no header").
			WithDetail("table", input)
	}
	for _, col := range header {
		if col == RowNumberColumn {
			return models.Manifest{}, errors.New(errors.ErrorTypeData, "input table already has a row_number column").
				WithDetail("table", input)
		}
	}
	columns := append(append([]string(nil), header...), RowNumberColumn)

	writerOpts := cfg.Writer
	writerOpts.Logger = log
	writer, err := csv.Open(fs, cfg.OutputDir, models.TableDef{
		Name:        output,
		Columns:     columns,
		PrimaryKey:  []string{RowNumberColumn},
		Incremental: true,
	}, writerOpts)
	if err != nil {
		return models.Manifest{}, err
	}
	defer func() {
		manifests, closeErr := writer.Close()
		if closeErr != nil && err == nil {
			err = closeErr
		}
		if werr := csv.WriteManifests(fs, manifests, writerOpts.Delimiter); werr != nil && err == nil {
			err = werr
		}
		if len(manifests) > 0 {
			manifest = manifests[0]
		}
	}()

	if err := writer.WriteHeader(); err != nil {
		return models.Manifest{}, err
	}

	for n := 0; ; n++ {
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return models.Manifest{}, err
			}
		}
		record, err := reader.Read()
		if err == io.EOF {
			log.Info("row numbers assigned", zap.Int("rows", n))
			return models.Manifest{}, nil
		}
		if err != nil {
			return models.Manifest{}, errors.Wrap(err, errors.ErrorTypeData, "failed to read input row").
				WithDetail("table", input).
				WithDetail("row", n)
		}

		row := models.NewFlatRow(columns)
		for i, value := range record {
			row.Set(columns[i], value)
		}
		row.Set(RowNumberColumn, strconv.Itoa(n))
		if cfg.LogRows {
			log.Info("row", zap.Strings("values", record), zap.Int(RowNumberColumn, n))
		}
		if err := writer.Write(row); err != nil {
			return models.Manifest{}, err
		}
	}
}
