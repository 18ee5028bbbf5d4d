package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
)

// Load reads the journal of a duel from dir.
func Load(dir, duelID string) (Header, []Entry, error) {
	j := &Journal{dir: dir}
	f, err := os.Open(j.Path(duelID))
	if errors.Is(err, os.ErrNotExist) {
		return Header{}, nil, fmt.Errorf("%w: %s", ErrNotFound, duelID)
	}
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a compressed journal stream.
func Read(r io.Reader) (Header, []Entry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Header{}, nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var hdr Header
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return Header{}, nil, err
		}
		return Header{}, nil, errors.New("journal: missing header")
	}
	if err := json.Unmarshal(sc.Bytes(), &hdr); err != nil {
		return Header{}, nil, fmt.Errorf("journal header: %w", err)
	}
	if hdr.Version != Version {
		return Header{}, nil, fmt.Errorf("unsupported journal version: %d", hdr.Version)
	}

	var entries []Entry
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return Header{}, nil, fmt.Errorf("journal entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return Header{}, nil, err
	}
	return hdr, entries, nil
}

// Verify recomputes the checksum chain and checks iterations increase.
// It returns the final checksum.
func Verify(entries []Entry) (string, error) {
	sum := ""
	last := -1
	for i, e := range entries {
		if e.Iteration <= last {
			return "", fmt.Errorf("entry %d: iteration %d after %d", i, e.Iteration, last)
		}
		last = e.Iteration
		sum = Chain(sum, e.Deltas)
		if sum != e.Checksum {
			return "", fmt.Errorf("entry %d: checksum mismatch", i)
		}
	}
	return sum, nil
}

// Memory is an in-process sink keeping entries per duel. Replays use it to
// compare a re-run against a recorded journal.
type Memory struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]Entry)}
}

func (m *Memory) RecordMutation(duelID string, iteration int, deltas []duel.Delta) error {
	raw, err := EncodeDeltas(deltas)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := ""
	if es := m.entries[duelID]; len(es) > 0 {
		prev = es[len(es)-1].Checksum
	}
	m.entries[duelID] = append(m.entries[duelID], Entry{
		Iteration: iteration,
		Deltas:    raw,
		Checksum:  Chain(prev, raw),
	})
	return nil
}

// Entries returns the entries recorded for a duel.
func (m *Memory) Entries(duelID string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries[duelID]...)
}

// Checksum returns the last checksum of a duel, empty if none.
func (m *Memory) Checksum(duelID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	es := m.entries[duelID]
	if len(es) == 0 {
		return ""
	}
	return es[len(es)-1].Checksum
}
