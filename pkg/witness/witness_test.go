package witness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_RecordChainsLinks(t *testing.T) {
	l := NewLog(10)

	e1 := l.Record(Provenance, "hash1", nil)
	e2 := l.Record(Provenance, "hash2", nil)

	assert.Empty(t, e1.PrevLink)
	assert.NotEmpty(t, e1.Link)
	assert.Equal(t, e1.Link, e2.PrevLink)
	assert.NotEqual(t, e1.Link, e2.Link)
}

func TestLog_DeterministicLinkGivenSameInputs(t *testing.T) {
	a := NewLog(10)
	b := NewLog(10)

	ea := a.Record(Search, "h", map[string]string{"k": "v"})
	eb := b.Record(Search, "h", map[string]string{"k": "v"})

	assert.Equal(t, ea.Link, eb.Link)
}

func TestLog_DifferentActionHashChangesLink(t *testing.T) {
	l := NewLog(10)
	e1 := l.Record(Computation, "hash-a", nil)

	l2 := NewLog(10)
	e2 := l2.Record(Computation, "hash-b", nil)

	assert.NotEqual(t, e1.Link, e2.Link)
}

func TestLog_GetStatus(t *testing.T) {
	l := NewLog(10)
	l.Record(Deletion, "h1", nil)
	e2 := l.Record(Deletion, "h2", nil)

	status := l.GetStatus()
	assert.Equal(t, 2, status.BufferedEntries)
	assert.Equal(t, int64(2), status.LastSeq)
	assert.Equal(t, e2.Link, status.LastLink)
}

func TestLog_EvictsOldestBeyondMaxBuffer(t *testing.T) {
	l := NewLog(2)
	l.Record(Provenance, "h1", nil)
	l.Record(Provenance, "h2", nil)
	l.Record(Provenance, "h3", nil)

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "h2", entries[0].ActionHash)
	assert.Equal(t, "h3", entries[1].ActionHash)
}

func TestLog_EntriesOrderedOldestFirst(t *testing.T) {
	l := NewLog(10)
	l.Record(Provenance, "h1", nil)
	l.Record(Provenance, "h2", nil)
	l.Record(Provenance, "h3", nil)

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"h1", "h2", "h3"}, []string{entries[0].ActionHash, entries[1].ActionHash, entries[2].ActionHash})
}
