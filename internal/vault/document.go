package vault

import (
	"bytes"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/starford/relaynote/internal/models"
)

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// Document is a parsed vault file.
type Document struct {
	ID     string
	Title  string
	Tags   []string
	Status models.Status
	Folder string
	Values models.Attrs
	Fields models.Attrs
	Body   string
}

type frontmatter struct {
	ID     string       `yaml:"id"`
	Title  string       `yaml:"title"`
	Tags   tagList      `yaml:"tags"`
	Status string       `yaml:"status"`
	Folder string       `yaml:"folder"`
	Values models.Attrs `yaml:"values"`
	Fields models.Attrs `yaml:"fields"`
}

// tagList accepts either a YAML sequence or a comma separated string.
type tagList []string

func (t *tagList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var out []string
		for _, s := range strings.Split(node.Value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*t = out
		return nil
	default:
		var out []string
		if err := node.Decode(&out); err != nil {
			return err
		}
		*t = out
		return nil
	}
}

// Parse reads a vault file. relPath decides the fallback id, title and folder.
// Malformed frontmatter is not an error: the whole file becomes the body.
func Parse(relPath string, data []byte) Document {
	fm, body, ok := splitFrontmatter(data)

	doc := Document{Body: body}
	if ok {
		doc.ID = strings.TrimSpace(fm.ID)
		doc.Title = strings.TrimSpace(fm.Title)
		doc.Folder = strings.Trim(strings.TrimSpace(fm.Folder), "/")
		doc.Values = fm.Values
		doc.Fields = fm.Fields
		if s := models.Status(strings.ToLower(strings.TrimSpace(fm.Status))); s.Valid() {
			doc.Status = s
		}
	}
	if doc.ID == "" {
		doc.ID = NoteID(relPath)
	}
	if doc.Title == "" {
		doc.Title = firstHeading(body)
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(path.Base(relPath), ".md")
	}
	if doc.Folder == "" {
		if dir := path.Dir(relPath); dir != "." {
			doc.Folder = dir
		}
	}
	doc.Tags = mergeTags(fm.Tags, body)
	return doc
}

// NoteID returns the stable id of a file without an explicit id.
func NoteID(relPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("relaynote-vault:"+relPath)).String()
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body.
func splitFrontmatter(data []byte) (frontmatter, string, bool) {
	const delim = "---"
	var fm frontmatter
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return fm, string(data), false
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return fm, string(data), false
	}
	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return frontmatter{}, string(data), false
	}
	return fm, body, true
}

// mergeTags returns the frontmatter tags followed by inline #tags, without
// case-insensitive duplicates.
func mergeTags(declared []string, body string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(t string) {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	for _, t := range declared {
		add(strings.TrimPrefix(t, "#"))
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
