package engine

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ProfileFile is the YAML override format. Entries merge over the built-in
// table by slug: set fields replace the built-in value, unknown slugs append
// as new engines, `disabled: true` drops the engine for this process.
type ProfileFile struct {
	Engines    []ProfileEntry   `yaml:"engines"`
	Submitters []SubmitterEntry `yaml:"submitters"`
}

// ProfileEntry is one engine override or addition.
type ProfileEntry struct {
	Name          string `yaml:"name"`
	Slug          string `yaml:"slug"`
	URLMatch      string `yaml:"url_match"`
	ExtractScript string `yaml:"extract_script"`
	Format        string `yaml:"format"`
	QueryURL      string `yaml:"query_url"`
	TitleQuery    bool   `yaml:"title_query"`
	Disabled      bool   `yaml:"disabled"`
}

// SubmitterEntry is one activation override or addition.
type SubmitterEntry struct {
	Name              string `yaml:"name"`
	URLMatch          string `yaml:"url_match"`
	ActivationScript  string `yaml:"activation_script"`
	AwaitsAsyncResult bool   `yaml:"awaits_async_result"`
	Disabled          bool   `yaml:"disabled"`
}

// LoadFile reads a YAML profile file and merges it over the built-in
// registry.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read profiles: %w", err)
	}

	var file ProfileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("engine: parse profiles: %w", err)
	}

	return Merge(Default(), file)
}

// Merge applies a ProfileFile over a base registry, returning a new one.
func Merge(base *Registry, file ProfileFile) (*Registry, error) {
	profiles := append([]Profile(nil), base.profiles...)

	for _, entry := range file.Engines {
		if entry.Slug == "" {
			return nil, fmt.Errorf("engine: profile entry without slug")
		}

		idx := -1
		for i, p := range profiles {
			if p.Slug == entry.Slug {
				idx = i
				break
			}
		}

		if entry.Disabled {
			if idx >= 0 {
				profiles = append(profiles[:idx], profiles[idx+1:]...)
			}
			continue
		}

		var p Profile
		if idx >= 0 {
			p = profiles[idx]
		} else {
			p = Profile{Slug: entry.Slug, Format: FormatText}
		}

		if entry.Name != "" {
			p.Name = entry.Name
		}
		if entry.URLMatch != "" {
			re, err := regexp.Compile(entry.URLMatch)
			if err != nil {
				return nil, fmt.Errorf("engine: profile %s: url_match: %w", entry.Slug, err)
			}
			p.URLMatch = re
		}
		if entry.ExtractScript != "" {
			p.ExtractScript = entry.ExtractScript
		}
		if entry.Format != "" {
			switch Format(entry.Format) {
			case FormatText, FormatHTML:
				p.Format = Format(entry.Format)
			default:
				return nil, fmt.Errorf("engine: profile %s: unknown format %q", entry.Slug, entry.Format)
			}
		}
		if entry.QueryURL != "" {
			p.QueryURL = entry.QueryURL
		}
		if entry.TitleQuery {
			p.TitleQuery = true
		}

		if p.Name == "" || p.URLMatch == nil || p.ExtractScript == "" {
			return nil, fmt.Errorf("engine: profile %s: name, url_match and extract_script are required for new engines", entry.Slug)
		}

		if idx >= 0 {
			profiles[idx] = p
		} else {
			profiles = append(profiles, p)
		}
	}

	submitters := append([]Submitter(nil), base.submitters...)
	for _, entry := range file.Submitters {
		if entry.Name == "" {
			return nil, fmt.Errorf("engine: submitter entry without name")
		}

		idx := -1
		for i, s := range submitters {
			if s.Name == entry.Name {
				idx = i
				break
			}
		}

		if entry.Disabled {
			if idx >= 0 {
				submitters = append(submitters[:idx], submitters[idx+1:]...)
			}
			continue
		}

		var s Submitter
		if idx >= 0 {
			s = submitters[idx]
		} else {
			s = Submitter{Name: entry.Name}
		}

		if entry.URLMatch != "" {
			re, err := regexp.Compile(entry.URLMatch)
			if err != nil {
				return nil, fmt.Errorf("engine: submitter %s: url_match: %w", entry.Name, err)
			}
			s.URLMatch = re
		}
		if entry.ActivationScript != "" {
			s.ActivationScript = entry.ActivationScript
		}
		if entry.AwaitsAsyncResult {
			s.AwaitsAsyncResult = true
		}

		if s.URLMatch == nil || s.ActivationScript == "" {
			return nil, fmt.Errorf("engine: submitter %s: url_match and activation_script are required", entry.Name)
		}

		if idx >= 0 {
			submitters[idx] = s
		} else {
			submitters = append(submitters, s)
		}
	}

	return NewRegistry(profiles, submitters), nil
}
