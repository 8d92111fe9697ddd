package backlog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloop/internal/status"
	"storyloop/internal/store"
	"storyloop/internal/story"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadFromFile_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "csv",
			file: "backlog.csv",
			content: `id, title, priority, issue_number
AUTH-1,Login form,1,42
AUTH-2,Password reset,2,
`,
		},
		{
			name: "yaml",
			file: "backlog.yml",
			content: `stories:
  - id: AUTH-1
    title: Login form
    priority: 1
    issue_number: 42
  - id: AUTH-2
    title: Password reset
    priority: 2
`,
		},
		{
			name: "toml",
			file: "backlog.toml",
			content: `[[stories]]
id = "AUTH-1"
title = "Login form"
priority = 1
issue_number = 42

[[stories]]
id = "AUTH-2"
title = "Password reset"
priority = 2
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ReadFromFile(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			require.Len(t, m.Entries, 2)

			assert.Equal(t, "AUTH-1", m.Entries[0].ID)
			assert.Equal(t, "Login form", m.Entries[0].Title)
			assert.Equal(t, 1, m.Entries[0].Priority)
			require.NotNil(t, m.Entries[0].IssueNumber)
			assert.Equal(t, 42, *m.Entries[0].IssueNumber)

			assert.Equal(t, "AUTH-2", m.Entries[1].ID)
			assert.Equal(t, 2, m.Entries[1].Priority)
			assert.Nil(t, m.Entries[1].IssueNumber)
		})
	}
}

func TestReadCSV_MinimalColumns(t *testing.T) {
	m, err := ReadCSV(strings.NewReader("priority,id\n3,X\n"))
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)
	assert.Equal(t, Entry{ID: "X", Priority: 3}, m.Entries[0])
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty", "", "failed to read backlog header"},
		{"missing column", "id,title\nA,x\n", "missing required column: priority"},
		{"bad priority", "id,priority\nA,high\n", `line 2: invalid priority "high"`},
		{"bad issue", "id,priority,issue_number\nA,1,#4\n", `line 2: invalid issue_number "#4"`},
		{"no rows", "id,priority\n", "contains no stories"},
		{"missing id", "id,priority\n,1\n", "id is required"},
		{"duplicate id", "id,priority\nA,1\nA,2\n", `duplicate id "A"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ReadCSV(strings.NewReader(tt.input))
			assert.Nil(t, m)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadFromFile_Errors(t *testing.T) {
	_, err := ReadFromFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, err, "failed to open backlog")

	_, err = ReadFromFile(writeFile(t, "backlog.json", "{}"))
	assert.ErrorContains(t, err, `unsupported backlog format ".json"`)

	_, err = ReadFromFile(writeFile(t, "bad.yaml", "stories: [\n"))
	assert.ErrorContains(t, err, "failed to parse backlog")

	_, err = ReadFromFile(writeFile(t, "bad.toml", "[[stories]\n"))
	assert.ErrorContains(t, err, "failed to parse backlog")
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	st := store.NewFileStore(filepath.Join(t.TempDir(), "state.yaml"))

	existing := story.New("AUTH-1", 9)
	existing.Status = status.StatusCommitted
	existing.BranchName = "story/AUTH-1"
	snap := store.NewSnapshot()
	require.NoError(t, snap.Stories.Add(existing))
	require.NoError(t, st.Commit(ctx, snap))

	issue := 7
	m := &Manifest{Entries: []Entry{
		{ID: "AUTH-1", Title: "Login form", Priority: 1},
		{ID: "AUTH-2", Title: "Password reset", Priority: 2, IssueNumber: &issue},
	}}

	res, err := Import(ctx, st, m)
	require.NoError(t, err)
	assert.Equal(t, []string{"AUTH-2"}, res.Added)
	assert.Equal(t, []string{"AUTH-1"}, res.Skipped)

	got, err := st.Load(ctx)
	require.NoError(t, err)

	a := got.Stories["AUTH-1"]
	assert.Equal(t, status.StatusCommitted, a.Status, "existing story untouched")
	assert.Equal(t, 9, a.Priority)

	b := got.Stories["AUTH-2"]
	assert.Equal(t, status.StatusPending, b.Status)
	assert.Equal(t, "Password reset", b.Title)
	require.NotNil(t, b.IssueNumber)
	assert.Equal(t, 7, *b.IssueNumber)

	res, err = Import(ctx, st, m)
	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Equal(t, []string{"AUTH-1", "AUTH-2"}, res.Skipped)
}
