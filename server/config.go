package regler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ConfigFile is one trend source.
// Source and Params are local paths or http(s) URLs.
type ConfigFile struct {
	ID       string   `json:"id"`
	Source   string   `json:"source"`
	Params   string   `json:"params,omitempty"`   // optional parameter CSV
	Unit     string   `json:"unit,omitempty"`     // unit shown in summaries
	Setpoint *float64 `json:"setpoint,omitempty"` // nil when there is none
}

// LoadConfigFileName pulls a given filename config off local disk
// Validation is performed on the file before opening
func LoadConfigFileName(filename string) ([]ConfigFile, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// validation
	err = validateLoad(file)
	if err != nil {
		slog.Error("Validation failed", slog.Any("Error", err))
		return nil, err
	}

	config, err := LoadConfig(file)
	if err != nil {
		return nil, err
	}

	for i, c := range config {
		if c.Source == "" {
			slog.Error("source missing", slog.Int("entry", i), slog.String("id", c.ID))
			return nil, fmt.Errorf("config entry %d (%q): %w", i, c.ID, ErrNoSource)
		}
	}

	return config, nil
}

var ErrNoSource = errors.New("no trend source configured")

func validateLoad(file *os.File) error {
	// validate file
	info, err := file.Stat()
	if err != nil {
		slog.Error("could not stat file")
		return err
	}

	// validate size
	if info.Size() == 0 {
		slog.Error("file is empty")
		return errors.New("file is empty")
	}

	return nil
}

// LoadConfig decodes the JSON list of sources
func LoadConfig(r io.Reader) ([]ConfigFile, error) {
	var config []ConfigFile
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil {
		slog.Error("could not decode file")
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return config, nil
}
