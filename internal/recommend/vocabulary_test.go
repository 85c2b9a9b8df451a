package recommend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "minimal", Normalize("  Minimal \n"))
	assert.Equal(t, "", Normalize("   "))
}

func TestClassify(t *testing.T) {
	vocab := DefaultVocabulary()

	tests := []struct {
		token string
		want  []Category
	}{
		{"minimal", []Category{CategoryStyle}},
		{" NAVY ", []Category{CategoryColor}},
		{"casual", []Category{CategoryStyle, CategoryOccasion}},
		{"work", []Category{CategoryStyle, CategoryOccasion}},
		{"winter", []Category{CategorySeason}},
		{"oversized", []Category{CategoryFit}},
		{"linen", []Category{CategoryFabric}},
		{"sage", []Category{CategoryColor}},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, vocab.Classify(tt.token))
		})
	}
}

func TestClassify_UnknownTokens(t *testing.T) {
	vocab := DefaultVocabulary()
	for _, token := range []string{"", "goth", "under $50", "neon green", "3"} {
		assert.Empty(t, vocab.Classify(token), "token %q", token)
	}
}

func TestNewVocabulary_Injectable(t *testing.T) {
	vocab := NewVocabulary(map[Category][]string{
		CategoryColor: {"Mint", " lilac "},
	})

	assert.True(t, vocab.Contains(CategoryColor, "mint"))
	assert.True(t, vocab.Contains(CategoryColor, "LILAC"))
	assert.False(t, vocab.Contains(CategoryStyle, "minimal"))
	assert.Equal(t, []string{"lilac", "mint"}, vocab.Tags(CategoryColor))
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory("Colors")
	require.True(t, ok)
	assert.Equal(t, CategoryColor, c)

	c, ok = ParseCategory("price")
	require.True(t, ok)
	assert.Equal(t, CategoryBudget, c)

	_, ok = ParseCategory("mood")
	assert.False(t, ok)
}

func writeVocabulary(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocabulary.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadVocabularyFile_Extend(t *testing.T) {
	path := writeVocabulary(t, `
categories:
  color: [mint, lilac]
  styles: [gorpcore]
`)
	vocab, err := LoadVocabularyFile(path, DefaultVocabulary())
	require.NoError(t, err)

	assert.True(t, vocab.Contains(CategoryColor, "mint"))
	assert.True(t, vocab.Contains(CategoryColor, "navy"))
	assert.True(t, vocab.Contains(CategoryStyle, "gorpcore"))
	assert.True(t, vocab.Contains(CategoryFabric, "denim"))
}

func TestLoadVocabularyFile_Replace(t *testing.T) {
	path := writeVocabulary(t, `
mode: replace
categories:
  color: [mint]
`)
	vocab, err := LoadVocabularyFile(path, DefaultVocabulary())
	require.NoError(t, err)

	assert.True(t, vocab.Contains(CategoryColor, "mint"))
	assert.False(t, vocab.Contains(CategoryColor, "navy"))
	assert.Empty(t, vocab.Classify("minimal"))
}

func TestLoadVocabularyFile_Errors(t *testing.T) {
	_, err := LoadVocabularyFile(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	_, err = LoadVocabularyFile(writeVocabulary(t, "categories:\n  mood: [happy]\n"), nil)
	assert.ErrorContains(t, err, "unknown category")

	_, err = LoadVocabularyFile(writeVocabulary(t, "mode: append\n"), nil)
	assert.ErrorContains(t, err, "unknown mode")
}
