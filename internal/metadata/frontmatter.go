// Package metadata extracts per-document metadata (title, date, category,
// vault, people, projects) from frontmatter and filename conventions.
package metadata

import (
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ahart-dev/vaultmind/internal/model"
	"gopkg.in/yaml.v3"
)

var frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n?`)

// dateInFilenamePattern matches YYYY-MM-DD anywhere in a filename.
var dateInFilenamePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// mmddyyPattern matches the MMDDYY convention used by scanned PDF filenames.
var mmddyyPattern = regexp.MustCompile(`\b(\d{2})(\d{2})(\d{2})\b`)

// Extract derives Metadata and the document body from raw file content.
// Malformed or missing frontmatter degrades gracefully: it is treated as
// absent, so every field falls back to its path-derived default (title from
// the filename stem, and so on), and body is the full input.
func Extract(path string, raw []byte, workRoot, personalRoot string) (model.Metadata, string) {
	content := string(raw)
	body := content
	fields := map[string]any{}

	if m := frontmatterPattern.FindStringSubmatch(content); m != nil {
		var parsed map[string]any
		if err := yaml.Unmarshal([]byte(m[1]), &parsed); err == nil {
			fields = parsed
			body = content[len(m[0]):]
		}
	}

	meta := model.Metadata{
		Title:    deriveTitle(fields, path),
		Date:     deriveDate(fields, path),
		Category: deriveCategory(path, workRoot, personalRoot),
		Vault:    deriveVault(path, workRoot, personalRoot),
		People:   deriveStringList(fields["people"]),
		Projects: deriveStringList(fields["projects"]),
	}

	return meta, body
}

// ContentHash returns the MD5 hex digest of raw, used as the document's
// identity for change detection. It is computed over the full content
// (frontmatter included for markdown, raw bytes for PDF), not the body
// alone, so a frontmatter-only edit is still detected as a change.
func ContentHash(raw []byte) string {
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}

func deriveTitle(fields map[string]any, path string) string {
	if v, ok := fields["title"].(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func deriveDate(fields map[string]any, path string) string {
	if v, ok := fields["date"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}

	base := filepath.Base(path)
	if m := dateInFilenamePattern.FindString(base); m != "" {
		return m
	}
	if strings.EqualFold(filepath.Ext(base), ".pdf") {
		if m := mmddyyPattern.FindStringSubmatch(base); m != nil {
			return "20" + m[3] + "-" + m[1] + "-" + m[2]
		}
	}
	return ""
}

func deriveCategory(path, workRoot, personalRoot string) string {
	root := workRoot
	if strings.HasPrefix(path, personalRoot) {
		root = personalRoot
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "documents"
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) > 1 && parts[0] != "" && parts[0] != "." {
		return parts[0]
	}
	return "documents"
}

func deriveVault(path, workRoot, personalRoot string) model.Vault {
	if strings.HasPrefix(path, personalRoot) {
		return model.VaultPersonal
	}
	return model.VaultWork
}

func deriveStringList(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}
