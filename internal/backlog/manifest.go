// Package backlog reads backlog authoring files and imports them as pending
// stories.
//
// Three formats are accepted, chosen by file extension:
//
// CSV (.csv), with a header row; id and priority are required columns:
//
//	id,title,priority,issue_number
//	AUTH-1,Login form,1,42
//	AUTH-2,Password reset,2,
//
// YAML (.yaml, .yml) and TOML (.toml), as a list of stories:
//
//	stories:
//	  - id: AUTH-1
//	    title: Login form
//	    priority: 1
//	    issue_number: 42
//
//	[[stories]]
//	id = "AUTH-1"
//	title = "Login form"
//	priority = 1
//	issue_number = 42
//
// Entries keep file order. Ids must be unique within one manifest.
package backlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Entry is one story to be created.
type Entry struct {
	ID          string `yaml:"id" toml:"id"`
	Title       string `yaml:"title" toml:"title"`
	Priority    int    `yaml:"priority" toml:"priority"`
	IssueNumber *int   `yaml:"issue_number" toml:"issue_number"`
}

// Manifest holds the entries parsed from a backlog file.
type Manifest struct {
	Entries []Entry
}

type manifestFile struct {
	Stories []Entry `yaml:"stories" toml:"stories"`
}

// ReadFromFile reads a backlog manifest, choosing the format by extension.
func ReadFromFile(path string) (*Manifest, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open backlog: %w", err)
		}
		defer f.Close()
		return ReadCSV(f)
	case ".yaml", ".yml", ".toml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read backlog: %w", err)
		}
		if ext == ".toml" {
			return ReadTOML(data)
		}
		return ReadYAML(data)
	default:
		return nil, fmt.Errorf("unsupported backlog format %q", ext)
	}
}

// ReadCSV parses a CSV backlog with a header row.
func ReadCSV(r io.Reader) (*Manifest, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read backlog header: %w", err)
	}

	colIndex := buildColumnIndex(header)
	if err := validateColumns(colIndex); err != nil {
		return nil, err
	}

	var entries []Entry
	lineNum := 1
	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read backlog line %d: %w", lineNum, err)
		}

		entry := Entry{
			ID:    getField(record, colIndex, "id"),
			Title: getField(record, colIndex, "title"),
		}

		priority := getField(record, colIndex, "priority")
		entry.Priority, err = strconv.Atoi(priority)
		if err != nil {
			return nil, fmt.Errorf("backlog line %d: invalid priority %q", lineNum, priority)
		}

		if issue := getField(record, colIndex, "issue_number"); issue != "" {
			n, err := strconv.Atoi(issue)
			if err != nil {
				return nil, fmt.Errorf("backlog line %d: invalid issue_number %q", lineNum, issue)
			}
			entry.IssueNumber = &n
		}

		entries = append(entries, entry)
	}

	return newManifest(entries)
}

// ReadYAML parses a YAML backlog.
func ReadYAML(data []byte) (*Manifest, error) {
	var raw manifestFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse backlog: %w", err)
	}
	return newManifest(raw.Stories)
}

// ReadTOML parses a TOML backlog.
func ReadTOML(data []byte) (*Manifest, error) {
	var raw manifestFile
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse backlog: %w", err)
	}
	return newManifest(raw.Stories)
}

func newManifest(entries []Entry) (*Manifest, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("backlog contains no stories")
	}

	seen := make(map[string]bool, len(entries))
	for i := range entries {
		entries[i].ID = strings.TrimSpace(entries[i].ID)
		id := entries[i].ID
		if id == "" {
			return nil, fmt.Errorf("backlog entry %d: id is required", i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("backlog entry %d: duplicate id %q", i+1, id)
		}
		seen[id] = true
	}
	return &Manifest{Entries: entries}, nil
}

var requiredColumns = []string{"id", "priority"}

func buildColumnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(strings.ToLower(col))] = i
	}
	return index
}

func validateColumns(colIndex map[string]int) error {
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return fmt.Errorf("backlog missing required column: %s", col)
		}
	}
	return nil
}

func getField(record []string, colIndex map[string]int, column string) string {
	idx, ok := colIndex[column]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
