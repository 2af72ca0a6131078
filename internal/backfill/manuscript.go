package backfill

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

// Manuscript is one parsed file ready to become a document.
type Manuscript struct {
	Path  string
	Title string
	Kind  models.DocumentKind
	Body  string
}

type frontMatter struct {
	Title string `yaml:"title"`
	Type  string `yaml:"type"`
	Kind  string `yaml:"kind"`
}

// folderKinds maps directory names to the kind files under them get.
var folderKinds = map[string]models.DocumentKind{
	"plot":       models.KindPlot,
	"plots":      models.KindPlot,
	"character":  models.KindCharacter,
	"characters": models.KindCharacter,
	"idea":       models.KindBookIdea,
	"ideas":      models.KindBookIdea,
	"book_idea":  models.KindBookIdea,
	"book_ideas": models.KindBookIdea,
	"story":      models.KindStory,
	"stories":    models.KindStory,
	"chapters":   models.KindStory,
}

// ParseManuscript splits optional YAML front matter from the body and
// resolves title and kind. Front matter wins, then the parent folder name,
// then fallback. The title falls back to the first markdown heading and
// then the file name.
func ParseManuscript(path string, data []byte, fallback models.DocumentKind) (Manuscript, error) {
	fm, body, err := splitFrontMatter(data)
	if err != nil {
		return Manuscript{}, fmt.Errorf("front matter: %w", err)
	}

	m := Manuscript{
		Path: path,
		Body: strings.TrimSpace(body),
	}

	kind := fm.Type
	if kind == "" {
		kind = fm.Kind
	}
	switch {
	case kind != "":
		m.Kind = models.DocumentKind(strings.ToLower(strings.TrimSpace(kind)))
		if !m.Kind.Valid() {
			return Manuscript{}, fmt.Errorf("unknown document type %q", kind)
		}
	default:
		m.Kind = kindFromPath(path, fallback)
	}

	m.Title = strings.TrimSpace(fm.Title)
	if m.Title == "" {
		m.Title = headingTitle(m.Body)
	}
	if m.Title == "" {
		m.Title = fileTitle(path)
	}
	return m, nil
}

func splitFrontMatter(data []byte) (frontMatter, string, error) {
	var fm frontMatter
	text := string(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n")))
	if !strings.HasPrefix(text, "---\n") {
		return fm, text, nil
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return fm, text, nil
	}
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return fm, "", err
	}
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	return fm, body, nil
}

func kindFromPath(path string, fallback models.DocumentKind) models.DocumentKind {
	dir := strings.ToLower(filepath.Base(filepath.Dir(path)))
	if k, ok := folderKinds[dir]; ok {
		return k
	}
	if fallback == "" {
		return models.KindStory
	}
	return fallback
}

func headingTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if t, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(t)
		}
		return ""
	}
	return ""
}

func fileTitle(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.TrimSpace(name)
}
