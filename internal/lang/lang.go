package lang

import (
	"path/filepath"
	"strings"
)

// Language is a source kind the extractors understand.
type Language string

const (
	Python Language = "python"
	XML    Language = "xml"
)

// AllLanguages returns all supported languages.
func AllLanguages() []Language {
	return []Language{Python, XML}
}

// LanguageSpec describes how files of a language are recognized and which
// syntax node kinds the extractors look at.
type LanguageSpec struct {
	Language       Language
	FileExtensions []string

	// ClassNodeTypes lists class definition node kinds (Python only).
	ClassNodeTypes []string
	// AssignmentNodeTypes lists assignment node kinds read as class attributes.
	AssignmentNodeTypes []string
	// CallNodeTypes lists call node kinds read as field declarations.
	CallNodeTypes []string
	// ManifestNames are per-module descriptor file names, never extracted as source.
	ManifestNames []string
}

// registry maps file extensions to language specs.
var registry = map[string]*LanguageSpec{}

// Register adds a LanguageSpec to the global registry.
func Register(spec *LanguageSpec) {
	for _, ext := range spec.FileExtensions {
		registry[ext] = spec
	}
}

// ForExtension returns the LanguageSpec for a file extension (e.g. ".py").
func ForExtension(ext string) *LanguageSpec {
	return registry[strings.ToLower(ext)]
}

// ForLanguage returns the LanguageSpec for a language.
func ForLanguage(lang Language) *LanguageSpec {
	for _, spec := range registry {
		if spec.Language == lang {
			return spec
		}
	}
	return nil
}

// ForPath returns the language of a source path. Manifests are not source.
func ForPath(path string) (Language, bool) {
	spec := ForExtension(filepath.Ext(path))
	if spec == nil {
		return "", false
	}
	base := filepath.Base(path)
	for _, m := range spec.ManifestNames {
		if base == m {
			return "", false
		}
	}
	return spec.Language, true
}

// IsManifest reports whether path names a module descriptor.
func IsManifest(path string) bool {
	base := filepath.Base(path)
	for _, spec := range registry {
		for _, m := range spec.ManifestNames {
			if base == m {
				return true
			}
		}
	}
	return false
}
