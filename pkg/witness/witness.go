// Package witness implements the append-only, hash-linked witness log:
// every recorded action is chained to its predecessor with a
// SHAKE256-based sponge link, so the sequence cannot be reordered or
// have an entry removed from its middle without breaking the chain.
package witness

import (
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/crypto/sha3"
)

// Type is the kind of action a WitnessEntry records.
type Type string

const (
	Provenance  Type = "PROVENANCE"
	Computation Type = "COMPUTATION"
	Search      Type = "SEARCH"
	Deletion    Type = "DELETION"
)

// linkSize is the output length, in bytes, of the SHAKE256 link
// function. 32 bytes gives the link 256 bits of collision resistance,
// matching the security level of the SHA-256 content hashes it
// chains alongside.
const linkSize = 32

// Entry is one append-only witness record.
type Entry struct {
	Seq        int64
	Type       Type
	ActionHash string
	Metadata   map[string]string
	PrevLink   string
	Link       string
	RecordedAt time.Time
}

// Status summarizes the log for health reporting.
type Status struct {
	BufferedEntries int
	LastSeq         int64
	LastLink        string
}

const defaultMaxBuffer = 1000

// Log is the in-memory, hash-linked witness log. Entries beyond
// maxBuffer are evicted oldest-first; callers that need durability
// flush entries to pkg/audit themselves (the log is the fast-path
// get_status() answer, not the system of record).
type Log struct {
	mu        sync.Mutex
	seq       int64
	lastLink  string
	maxBuffer int
	buffer    *orderedmap.OrderedMap[int64, Entry]
}

// NewLog builds an empty witness log bounded at maxBuffer in-memory
// entries (defaulting to 1000).
func NewLog(maxBuffer int) *Log {
	if maxBuffer <= 0 {
		maxBuffer = defaultMaxBuffer
	}
	return &Log{
		maxBuffer: maxBuffer,
		buffer:    orderedmap.New[int64, Entry](),
	}
}

// Record appends a new entry chained to the previous link and returns
// it.
func (l *Log) Record(typ Type, actionHash string, metadata map[string]string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	link := nextLink(l.lastLink, typ, actionHash, l.seq)

	e := Entry{
		Seq:        l.seq,
		Type:       typ,
		ActionHash: actionHash,
		Metadata:   metadata,
		PrevLink:   l.lastLink,
		Link:       link,
		RecordedAt: time.Now(),
	}
	l.lastLink = link

	l.buffer.Set(e.Seq, e)
	for l.buffer.Len() > l.maxBuffer {
		oldest := l.buffer.Oldest()
		if oldest == nil {
			break
		}
		l.buffer.Delete(oldest.Key)
	}

	return e
}

// GetStatus returns a snapshot of the log's current size and chain
// head.
func (l *Log) GetStatus() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Status{
		BufferedEntries: l.buffer.Len(),
		LastSeq:         l.seq,
		LastLink:        l.lastLink,
	}
}

// Entries returns every currently buffered entry, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, l.buffer.Len())
	for _, e := range l.buffer.FromOldest() {
		out = append(out, e)
	}
	return out
}

// nextLink computes the SHAKE256 sponge link for the next entry: the
// previous link, the entry's type and action hash, and its sequence
// number are absorbed, and a fixed-length digest is squeezed out.
func nextLink(prevLink string, typ Type, actionHash string, seq int64) string {
	h := sha3.NewShake256()
	h.Write([]byte(prevLink))
	h.Write([]byte(typ))
	h.Write([]byte(actionHash))

	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], uint64(seq))
	h.Write(seqBuf[:])

	out := make([]byte, linkSize)
	h.Read(out)
	return hex.EncodeToString(out)
}
