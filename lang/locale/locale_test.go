package locale

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/lgen/lang"
)

func collection(t *testing.T, id, src string) *lang.Templates {
	t.Helper()

	ts := lang.ParseText(src, id)
	require.False(t, ts.HasErrors(), "diagnostics: %v", ts.Diagnostics())

	return ts
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"fr", "fr"},
		{"en_us", "en-US"},
		{"EN-gb", "en-GB"},
		{" de-DE ", "de-DE"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonical(tt.in))
		})
	}
}

func TestResolve_DefaultChain(t *testing.T) {
	m := New(nil)

	assert.Equal(t, []string{"fr-FR", "fr", ""}, m.Resolve("fr-FR"))
	assert.Equal(t, []string{"fr", ""}, m.Resolve("fr"))
	assert.Equal(t, []string{""}, m.Resolve(""))
}

func TestResolve_Policy(t *testing.T) {
	m := New(nil, WithPolicy(map[string][]string{
		"en-AU": {"en-GB", "en"},
		"":      {"en"},
	}))

	assert.Equal(t, []string{"en-GB", "en", ""}, m.Resolve("en_au"))
	assert.Equal(t, []string{"en", ""}, m.Resolve("de"))
	assert.Equal(t, []string{""}, New(nil, WithPolicy(map[string][]string{})).Resolve("de"))
}

func TestGenerate_PolicyReachesNeutral(t *testing.T) {
	m := New(map[string]*lang.Templates{
		"":   collection(t, "main.lg", "# Greeting\n- Hello\n"),
		"fr": collection(t, "main.fr.lg", "# Other\n- Autre\n"),
	}, WithPolicy(map[string][]string{
		"fr-FR": {"fr-FR", "fr"},
	}))

	got, err := m.Generate(context.Background(), "Greeting", nil, "fr-FR")
	require.NoError(t, err)
	assert.Equal(t, "Hello", got)
}

func TestGenerate_FallsBackToParent(t *testing.T) {
	m := New(map[string]*lang.Templates{
		"":   collection(t, "main.lg", "# Greeting\n- Hello\n# Farewell\n- Bye\n"),
		"fr": collection(t, "main.fr.lg", "# Greeting\n- Bonjour\n"),
	})

	got, err := m.Generate(context.Background(), "Greeting", map[string]any{}, "fr-FR")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", got)

	got, err = m.Generate(context.Background(), "Greeting", nil, "de-DE")
	require.NoError(t, err)
	assert.Equal(t, "Hello", got)
}

func TestGenerate_ExactCollectionMissingTemplate(t *testing.T) {
	m := New(map[string]*lang.Templates{
		"":   collection(t, "main.lg", "# Greeting\n- Hello\n# Farewell\n- Bye\n"),
		"fr": collection(t, "main.fr.lg", "# Greeting\n- Bonjour\n"),
	})

	_, err := m.Generate(context.Background(), "Farewell", nil, "fr")
	require.ErrorIs(t, err, lang.ErrTemplateNotFound)

	// fr-FR has no collection of its own, so the chain reaches "".
	got, err := m.Generate(context.Background(), "Farewell", nil, "fr-FR")
	require.NoError(t, err)
	assert.Equal(t, "Bye", got)
}

func TestGenerate_NoSupportedLanguage(t *testing.T) {
	m := New(map[string]*lang.Templates{
		"fr": collection(t, "main.fr.lg", "# Greeting\n- Bonjour\n"),
	})

	_, err := m.Generate(context.Background(), "Greeting", nil, "de-DE")
	require.ErrorIs(t, err, lang.ErrNoSupportedLanguage)

	var lerr *lang.Error
	require.ErrorAs(t, err, &lerr)

	chain, ok := lerr.Attr("chain")
	require.True(t, ok)
	assert.Equal(t, `"de-DE" -> "de" -> ""`, chain.String())
}

func TestGenerate_Canceled(t *testing.T) {
	m := New(map[string]*lang.Templates{
		"": collection(t, "main.lg", "# Greeting\n- Hello\n"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, "Greeting", nil, "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestExpand(t *testing.T) {
	m := New(map[string]*lang.Templates{
		"": collection(t, "main.lg", "# Greeting\n- Hello\n- Hi\n"),
	})

	seq, err := m.Expand("Greeting", nil, "en-US")
	require.NoError(t, err)

	var got []any

	for v, err := range seq {
		require.NoError(t, err)

		got = append(got, v)
	}

	assert.Equal(t, []any{"Hello", "Hi"}, got)

	_, err = m.Expand("Nope", nil, "en-US")
	require.ErrorIs(t, err, lang.ErrNoSupportedLanguage)
}

func TestFileLocale(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"main.lg", ""},
		{"main.fr.lg", "fr"},
		{"main.fr-FR.lg", "fr-FR"},
		{"dir/main.en_us.lg", "en-US"},
		{"my.templates.lg", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileLocale(tt.name))
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	write := func(name, src string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600))
	}

	write("main.lg", "# Greeting\n- Hello\n")
	write("main.fr.lg", "# Greeting\n- Bonjour\n")
	write("notes.txt", "ignored")

	collections, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, collections, 2)

	m := New(collections)
	assert.Equal(t, []string{"", "fr"}, m.Locales())

	got, err := m.Generate(context.Background(), "Greeting", nil, "fr-CA")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", got)

	_, err = LoadDir(t.TempDir())
	require.ErrorIs(t, err, lang.ErrFileNotFound)

	_, err = LoadDir(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, lang.ErrReadInput)
}

func TestGenerateActivity(t *testing.T) {
	m := New(map[string]*lang.Templates{
		"": collection(t, "main.lg", `# Greeting
- Hello ${name}
# Welcome
[Activity
    text = Welcome ${name}
]
# Card
[HeroCard
    title = Hi
    buttons = Yes | No
]
`),
	})

	ctx := context.Background()
	data := map[string]any{"name": "Ann"}

	got, err := m.GenerateActivity(ctx, "Greeting", data, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "message", "text": "Hello Ann", "speak": "Hello Ann"}, got)

	got, err = m.GenerateActivity(ctx, "Welcome", data, "")
	require.NoError(t, err)
	assert.Equal(t, "message", got["type"])
	assert.Equal(t, "Welcome Ann", got["text"])
	assert.Equal(t, "Welcome Ann", got["speak"])
	assert.NotContains(t, got, "lgType")

	got, err = m.GenerateActivity(ctx, "Card", data, "")
	require.NoError(t, err)
	require.Len(t, got["attachments"], 1)

	att := got["attachments"].([]any)[0].(map[string]any)
	assert.Equal(t, "application/vnd.microsoft.card.hero", att["contentType"])
	assert.Equal(t, "Hi", att["content"].(map[string]any)["title"])

	_, err = m.GenerateActivity(ctx, "Missing", data, "")
	require.ErrorIs(t, err, lang.ErrTemplateNotFound)
}
