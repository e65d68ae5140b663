package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/jsonc"
)

// Dataset is one named entry of a dataset manifest.
type Dataset struct {
	SourceRoot      string `json:"source_root"`
	ListFile        string `json:"list_file,omitempty"`
	StorePath       string `json:"store_path"`
	DestinationRoot string `json:"destination_root,omitempty"`
}

// Manifest maps dataset names to their locations.
type Manifest map[string]Dataset

// LoadManifest reads a JSON manifest. Comments and trailing commas are
// allowed. Relative paths are resolved against the manifest's directory.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, &ConfigError{Field: "dataset_info", Reason: err.Error()}
	}

	base := filepath.Dir(path)
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	for name, d := range m {
		d.SourceRoot = abs(d.SourceRoot)
		d.ListFile = abs(d.ListFile)
		d.StorePath = abs(d.StorePath)
		d.DestinationRoot = abs(d.DestinationRoot)
		m[name] = d
	}
	return m, nil
}

// Names returns the dataset names in sorted order.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Job is one run: a name (empty for a single-dataset config) and the
// configuration to run it with.
type Job struct {
	Name   string
	Config *Config
}

// Jobs expands the named datasets into one configuration each. Without
// datasets the config itself is the only job.
func (c *Config) Jobs() ([]Job, error) {
	if len(c.Datasets) == 0 {
		return []Job{{Config: c}}, nil
	}

	m, err := LoadManifest(c.DatasetInfo)
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(c.Datasets))
	for _, name := range c.Datasets {
		d, ok := m[name]
		if !ok {
			return nil, &ConfigError{Field: "datasets", Reason: fmt.Sprintf("dataset %q not found in %s", name, c.DatasetInfo)}
		}
		if d.StorePath == "" {
			return nil, &ConfigError{Field: "datasets", Reason: fmt.Sprintf("dataset %q has no store_path", name)}
		}

		job := *c
		job.Datasets = nil
		job.DatasetInfo = ""
		job.SourceRoot = d.SourceRoot
		job.ListFile = d.ListFile
		job.StorePath = d.StorePath
		if d.DestinationRoot != "" {
			job.DestinationRoot = d.DestinationRoot
		}
		jobs = append(jobs, Job{Name: name, Config: &job})
	}
	return jobs, nil
}
