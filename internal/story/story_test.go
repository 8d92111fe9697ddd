package story

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloop/internal/status"
)

func TestStory_Validate(t *testing.T) {
	next := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		story   Story
		wantErr string
	}{
		{
			name:  "pending story is valid",
			story: Story{ID: "A", Status: status.StatusPending},
		},
		{
			name:    "empty id",
			story:   Story{Status: status.StatusPending},
			wantErr: "empty id",
		},
		{
			name:    "unknown status",
			story:   Story{ID: "A", Status: status.Status("done")},
			wantErr: "status",
		},
		{
			name:    "skipped without reason",
			story:   Story{ID: "A", Status: status.StatusSkipped},
			wantErr: "requires a skip reason",
		},
		{
			name:  "invalid with reason",
			story: Story{ID: "A", Status: status.StatusInvalid, SkipReason: "merged elsewhere"},
		},
		{
			name:    "merged without next check",
			story:   Story{ID: "A", Status: status.StatusMerged},
			wantErr: "without next check",
		},
		{
			name:  "merged and final needs no next check",
			story: Story{ID: "A", Status: status.StatusMerged, MergedCheckFinalState: true, MergedCheckCount: 4},
		},
		{
			name:  "merged with next check",
			story: Story{ID: "A", Status: status.StatusMerged, NextMergedCheck: &next},
		},
		{
			name:    "check count out of range",
			story:   Story{ID: "A", Status: status.StatusMerged, NextMergedCheck: &next, MergedCheckCount: 5},
			wantErr: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.story.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidStory))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStory_IsTerminal(t *testing.T) {
	next := time.Now()

	assert.False(t, (&Story{Status: status.StatusPending}).IsTerminal())
	assert.False(t, (&Story{Status: status.StatusPushed}).IsTerminal())
	assert.False(t, (&Story{Status: status.StatusMerged, NextMergedCheck: &next}).IsTerminal())
	assert.True(t, (&Story{Status: status.StatusMerged, MergedCheckFinalState: true}).IsTerminal())
	assert.True(t, (&Story{Status: status.StatusSkipped}).IsTerminal())
	assert.True(t, (&Story{Status: status.StatusInvalid}).IsTerminal())
}

func TestStory_Clone(t *testing.T) {
	pr := 12
	s := &Story{
		ID:            "A",
		Status:        status.StatusPushed,
		PRNumber:      &pr,
		IterationLogs: []string{"it-1"},
	}

	c := s.Clone()
	*c.PRNumber = 99
	c.IterationLogs[0] = "changed"

	assert.Equal(t, 12, *s.PRNumber)
	assert.Equal(t, "it-1", s.IterationLogs[0])
}

func TestStory_DistinctStrategies(t *testing.T) {
	s := &Story{Attempts: []Attempt{
		{Signature: "rewrite-parser"},
		{Signature: "rewrite-parser"},
		{Signature: "patch-lexer"},
		{Signature: ""},
	}}
	assert.Equal(t, 2, s.DistinctStrategies())
}

func TestBacklog_IDsSorted(t *testing.T) {
	b := Backlog{
		"c": New("c", 1),
		"a": New("a", 1),
		"b": New("b", 1),
	}
	assert.Equal(t, []string{"a", "b", "c"}, b.IDs())
	assert.Equal(t, "a", b.Sorted()[0].ID)
}

func TestBacklog_Add(t *testing.T) {
	b := Backlog{}
	require.NoError(t, b.Add(New("a", 1)))

	err := b.Add(New("a", 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	assert.Equal(t, 1, b["a"].Priority)

	assert.Error(t, b.Add(&Story{ID: "x", Status: status.Status("bogus")}))
}

func TestBacklog_Validate_KeyMismatch(t *testing.T) {
	b := Backlog{"a": New("b", 1)}
	err := b.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key a holds story b")
}

func TestBacklog_AllTerminal(t *testing.T) {
	assert.True(t, Backlog{}.AllTerminal())

	b := Backlog{
		"a": {ID: "a", Status: status.StatusSkipped, SkipReason: "dup"},
		"b": {ID: "b", Status: status.StatusMerged, MergedCheckFinalState: true},
	}
	assert.True(t, b.AllTerminal())

	b["c"] = New("c", 1)
	assert.False(t, b.AllTerminal())
}

func TestBacklog_CloneIsDeep(t *testing.T) {
	b := Backlog{"a": New("a", 1)}
	c := b.Clone()
	c["a"].Status = status.StatusCommitted

	assert.Equal(t, status.StatusPending, b["a"].Status)
}
