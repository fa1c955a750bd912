package catalog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
)

// File is the on-disk shape of a template file in any supported format.
type File struct {
	Templates []Entry `json:"templates" toml:"templates" yaml:"templates" validate:"dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// IsTemplateFile reports whether path has a supported template extension.
func IsTemplateFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".toml", ".yaml", ".yml":
		return true
	}
	return false
}

// Parse decodes template entries from data. The format is chosen by the
// extension of name.
func Parse(name string, data []byte) ([]Entry, error) {
	var f File
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, errors.Wrapf(err, "parse %s", name)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, errors.Wrapf(err, "parse %s", name)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, errors.Wrapf(err, "parse %s", name)
		}
	default:
		return nil, errors.Newf("unsupported template format %q", ext)
	}

	for i, e := range f.Templates {
		if err := Validate(e); err != nil {
			return nil, errors.Wrapf(err, "%s: template %d", name, i)
		}
	}
	return f.Templates, nil
}

// Validate checks field constraints and seed graph consistency.
func Validate(e Entry) error {
	if err := validate.Struct(e); err != nil {
		return errors.WithHint(errors.Wrapf(err, "invalid template %q", e.Kind),
			"kind and name are required; seed nodes need id and kind")
	}

	seen := make(map[string]bool, len(e.SeedNodes))
	for _, sn := range e.SeedNodes {
		if seen[sn.ID] {
			return errors.Wrapf(errors.ErrDuplicateNode, "template %q seed %s", e.Kind, sn.ID)
		}
		seen[sn.ID] = true
	}
	for _, se := range e.SeedEdges {
		if !seen[se.Source] || !seen[se.Target] {
			return errors.Wrapf(errors.ErrNodeNotFound, "template %q seed edge %s -> %s", e.Kind, se.Source, se.Target)
		}
	}
	return nil
}

// LoadFile reads one template file.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read template file %s", path)
	}
	return Parse(path, data)
}

// LoadDir reads every template file in dir in name order. A file that fails to
// parse or validate is logged and skipped so one bad file never empties the
// catalog. A missing dir yields no entries.
func LoadDir(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read template dir %s", dir)
	}

	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !IsTemplateFile(de.Name()) {
			continue
		}
		names = append(names, de.Name())
	}
	sort.Strings(names)

	var entries []Entry
	for _, name := range names {
		path := filepath.Join(dir, name)
		loaded, err := LoadFile(path)
		if err != nil {
			logger.Warnw("Skipping template file",
				"file", path,
				logger.FieldError, err,
			)
			continue
		}
		entries = append(entries, loaded...)
	}
	return entries, nil
}

// Load builds a catalog from the builtin entries overlaid with the templates in
// dir. An empty dir loads builtins only.
func Load(dir string) (*Catalog, error) {
	c := Builtin()
	if dir == "" {
		return c, nil
	}
	entries, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	c.Merge(entries)
	return c, nil
}
