package metadata

import (
	"testing"

	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/stretchr/testify/assert"
)

const workRoot = "/vaults/work"
const personalRoot = "/vaults/personal"

func TestExtract_ParsesFrontmatter(t *testing.T) {
	content := []byte(`---
title: Quarterly Plan
date: 2026-01-15
people:
  - Alice
  - Bob
projects:
  - Atlas
---
Body content here.
`)

	meta, body := Extract("/vaults/work/planning/q1.md", content, workRoot, personalRoot)

	assert.Equal(t, "Quarterly Plan", meta.Title)
	assert.Equal(t, "2026-01-15", meta.Date)
	assert.Equal(t, []string{"Alice", "Bob"}, meta.People)
	assert.Equal(t, []string{"Atlas"}, meta.Projects)
	assert.Equal(t, "planning", meta.Category)
	assert.Equal(t, model.VaultWork, meta.Vault)
	assert.Contains(t, body, "Body content here.")
}

func TestExtract_MissingFrontmatter_DegradesGracefully(t *testing.T) {
	content := []byte("Just plain text, no frontmatter.\n")

	meta, body := Extract("/vaults/personal/journal/2026-02-01-entry.md", content, workRoot, personalRoot)

	assert.Equal(t, "2026-02-01-entry", meta.Title)
	assert.Equal(t, "2026-02-01", meta.Date)
	assert.Equal(t, "journal", meta.Category)
	assert.Equal(t, model.VaultPersonal, meta.Vault)
	assert.Equal(t, "Just plain text, no frontmatter.\n", body)
}

func TestExtract_MalformedFrontmatter_FallsBackToFullBody(t *testing.T) {
	content := []byte("---\ntitle: [unterminated\n---\nBody text.\n")

	meta, body := Extract("/vaults/work/notes/file.md", content, workRoot, personalRoot)

	assert.Equal(t, "file", meta.Title) // falls back to filename stem
	assert.Equal(t, content, []byte(body))
}

func TestExtract_PeopleAsScalarCommaList(t *testing.T) {
	content := []byte("---\npeople: Alice, Bob, Carol\n---\nBody.\n")

	meta, _ := Extract("/vaults/work/notes/file.md", content, workRoot, personalRoot)

	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, meta.People)
}

func TestExtract_CategoryDefaultsWhenAtVaultRoot(t *testing.T) {
	content := []byte("No frontmatter.\n")

	meta, _ := Extract("/vaults/work/readme.md", content, workRoot, personalRoot)

	assert.Equal(t, "documents", meta.Category)
}

func TestContentHash_IsDeterministic(t *testing.T) {
	a := ContentHash([]byte("hello world"))
	b := ContentHash([]byte("hello world"))
	c := ContentHash([]byte("hello world!"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32) // MD5 hex digest
}

func TestContentHash_IncludesFrontmatter(t *testing.T) {
	withFM := []byte("---\ndate: 2026-01-01\n---\nbody")
	withoutFM := []byte("body")

	assert.NotEqual(t, ContentHash(withFM), ContentHash(withoutFM))
}
