package template

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
)

//go:embed all:templates
var embedded embed.FS

const (
	personaFile       = "SOUL.md.tmpl"
	heartbeatFile     = "HEARTBEAT.md.tmpl"
	runtimeConfigFile = "config.toml.tmpl"
	storageFile       = "storage.toml.tmpl"
	skillsDir         = "skills"
)

// Set holds the templates and static skill files used to build one agent workspace.
type Set struct {
	Persona       string
	Heartbeat     string
	RuntimeConfig string

	// Storage is appended to the runtime config when a database URL is configured.
	Storage string

	// Skills maps slash-separated paths relative to the skills directory to file contents.
	// Skills are copied verbatim and never rendered.
	Skills map[string][]byte
}

// Text returns the template source for name.
func (set Set) Text(name Name) (string, error) {
	switch name {
	case Persona:
		return set.Persona, nil
	case Heartbeat:
		return set.Heartbeat, nil
	case RuntimeConfig:
		return set.RuntimeConfig, nil
	case Storage:
		return set.Storage, nil
	default:
		return "", fmt.Errorf("unknown template %q", name)
	}
}

// DefaultSet loads the templates shipped with the binary.
func DefaultSet() (Set, error) {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return Set{}, fmt.Errorf("open embedded templates: %w", err)
	}

	return LoadSet(sub)
}

// LoadSet reads a template set from fsys. The persona, heartbeat and runtime config
// templates are required; the storage template and skills directory are optional.
func LoadSet(fsys fs.FS) (Set, error) {
	var set Set
	var err error

	set.Persona, err = readRequired(fsys, personaFile)
	if err != nil {
		return Set{}, err
	}

	set.Heartbeat, err = readRequired(fsys, heartbeatFile)
	if err != nil {
		return Set{}, err
	}

	set.RuntimeConfig, err = readRequired(fsys, runtimeConfigFile)
	if err != nil {
		return Set{}, err
	}

	storage, err := fs.ReadFile(fsys, storageFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Set{}, fmt.Errorf("read %s: %w", storageFile, err)
	}
	set.Storage = string(storage)

	set.Skills, err = loadSkills(fsys)
	if err != nil {
		return Set{}, err
	}

	return set, nil
}

func readRequired(fsys fs.FS, name string) (string, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}

	return string(data), nil
}

func loadSkills(fsys fs.FS) (map[string][]byte, error) {
	skills := map[string][]byte{}

	if _, err := fs.Stat(fsys, skillsDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return skills, nil
		}
		return nil, fmt.Errorf("stat %s: %w", skillsDir, err)
	}

	err := fs.WalkDir(fsys, skillsDir, func(filePath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			return nil
		}

		data, err := fs.ReadFile(fsys, filePath)
		if err != nil {
			return fmt.Errorf("read %s: %w", filePath, err)
		}

		relative, err := relativeTo(skillsDir, filePath)
		if err != nil {
			return err
		}

		skills[relative] = data

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}

	return skills, nil
}

func relativeTo(base, filePath string) (string, error) {
	prefix := path.Clean(base) + "/"
	if len(filePath) <= len(prefix) || filePath[:len(prefix)] != prefix {
		return "", fmt.Errorf("skill path %s outside %s", filePath, base)
	}

	return filePath[len(prefix):], nil
}
