package source

import (
	"errors"
	"io/fs"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultSettingsFile is the project settings document at the root.
	DefaultSettingsFile = "_settings.json"
	// DefaultProjectName is used when the settings omit project_name.
	DefaultProjectName = "docweave"
)

// Settings is the project level input to a build. Global is consulted by the
// field resolver as the last source for endpoint defaults.
type Settings struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ReadMe      string `json:"readme"`
	Global      any    `json:"global,omitempty"`
}

// LoadSettings reads the settings document and README.md from fsys. Missing
// or broken files degrade to defaults with a warning.
func LoadSettings(fsys fs.FS, settingsFile string, log logrus.FieldLogger) Settings {
	if settingsFile == "" {
		settingsFile = DefaultSettingsFile
	}
	s := Settings{Name: DefaultProjectName, ReadMe: DefaultProjectName}

	if data, err := fs.ReadFile(fsys, "README.md"); err == nil {
		s.ReadMe = string(data)
	}

	data, err := fs.ReadFile(fsys, settingsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warnf("no %q file, using default project settings", settingsFile)
		} else {
			log.WithError(err).Warnf("read %s", settingsFile)
		}
		return s
	}
	v, err := Parse(data)
	if err != nil {
		log.WithError(err).Warnf("parse %s", settingsFile)
		return s
	}
	obj, ok := v.(map[string]any)
	if !ok {
		log.Warnf("%s is not an object", settingsFile)
		return s
	}
	if name, ok := obj["project_name"].(string); ok {
		s.Name = name
	}
	if desc, ok := obj["project_desc"].(string); ok {
		s.Description = desc
	}
	s.Global = obj["global"]
	return s
}
