package pipeline

import (
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
	"github.com/ajitpratap0/nebula-hubspot/pkg/json"
)

// StateFile is the name of the state file in the output data directory
const StateFile = "state.json"

// State is persisted after a successful run and handed to the next one
type State struct {
	LastUpdate time.Time `json:"last_update"`
}

// WriteState stores the state of a finished run in dir
func WriteState(fs afero.Fs, dir string, state State) error {
	data, err := json.Marshal(struct {
		LastUpdate string `json:"last_update"`
	}{LastUpdate: state.LastUpdate.UTC().Format(time.RFC3339)})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode state")
	}

	path := filepath.Join(dir, StateFile)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create state directory").WithDetail("path", dir)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write state").WithDetail("path", path)
	}
	return nil
}

// ReadState loads the state left by the previous run. A missing file
// yields the zero State.
func ReadState(fs afero.Fs, dir string) (State, error) {
	path := filepath.Join(dir, StateFile)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if exists, _ := afero.Exists(fs, path); !exists {
			return State{}, nil
		}
		return State{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to read state").WithDetail("path", path)
	}

	var raw struct {
		LastUpdate string `json:"last_update"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return State{}, errors.Wrap(err, errors.ErrorTypeConfig, "state file is not valid JSON").WithDetail("path", path)
	}
	if raw.LastUpdate == "" {
		return State{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw.LastUpdate)
	if err != nil {
		return State{}, errors.Wrap(err, errors.ErrorTypeConfig, "state has an invalid last_update").WithDetail("path", path)
	}
	return State{LastUpdate: ts}, nil
}
