package csv

import (
	"github.com/spf13/afero"

	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
	"github.com/ajitpratap0/nebula-hubspot/pkg/json"
	"github.com/ajitpratap0/nebula-hubspot/pkg/models"
)

// ManifestSuffix is appended to a table file name to name its manifest
const ManifestSuffix = ".manifest"

type manifestFile struct {
	PrimaryKey  []string `json:"primary_key"`
	Incremental bool     `json:"incremental"`
	Delimiter   string   `json:"delimiter,omitempty"`
}

// WriteManifest stores m next to its table file as <file>.manifest.
// A delimiter other than the default is recorded in the manifest.
func WriteManifest(fs afero.Fs, m models.Manifest, delimiter rune) (string, error) {
	if m.Path == "" {
		return "", errors.New(errors.ErrorTypeInternal, "manifest has no table path").
			WithDetail("table", m.Table)
	}

	doc := manifestFile{PrimaryKey: m.PrimaryKey, Incremental: m.Incremental}
	if doc.PrimaryKey == nil {
		doc.PrimaryKey = []string{}
	}
	if delimiter != 0 && delimiter != DefaultDelimiter {
		doc.Delimiter = string(delimiter)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode manifest").
			WithDetail("table", m.Table)
	}

	path := m.Path + ManifestSuffix
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to write manifest").
			WithDetail("table", m.Table).
			WithDetail("path", path)
	}
	return path, nil
}

// WriteManifests writes the manifest of every table in ms
func WriteManifests(fs afero.Fs, ms []models.Manifest, delimiter rune) error {
	for _, m := range ms {
		if _, err := WriteManifest(fs, m, delimiter); err != nil {
			return err
		}
	}
	return nil
}
