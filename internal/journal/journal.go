// Package journal records the deltas of every duel mutation to compressed
// JSONL files, one file per duel, so that finished duels can be audited
// and replays checked for determinism.
package journal

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
)

// Version of the file format.
const Version = 1

const fileSuffix = ".jsonl.zst"

var ErrNotFound = errors.New("journal not found")

// Header is the first line of a journal file.
type Header struct {
	Version   int       `json:"version"`
	DuelID    string    `json:"duelId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Entry is one mutation. Checksum chains the previous entry's checksum
// with the deltas of this one, so any divergence propagates to the end.
type Entry struct {
	Iteration int               `json:"iteration"`
	Deltas    []json.RawMessage `json:"deltas"`
	Checksum  string            `json:"checksum"`
}

// Journal is a duel.MutationSink writing under a directory.
type Journal struct {
	dir    string
	level  zstd.EncoderLevel
	logger *zap.Logger

	mu      sync.Mutex
	writers map[string]*writer
}

// New creates a journal writing to dir. level is the zstd encoder level,
// from 1 (fastest) to 4 (best compression).
func New(dir string, level int, logger *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	if level < int(zstd.SpeedFastest) || level > int(zstd.SpeedBestCompression) {
		level = int(zstd.SpeedDefault)
	}
	return &Journal{
		dir:     dir,
		level:   zstd.EncoderLevel(level),
		logger:  logger,
		writers: make(map[string]*writer),
	}, nil
}

// Path returns the file of a duel.
func (j *Journal) Path(duelID string) string {
	return filepath.Join(j.dir, duelID+fileSuffix)
}

// RecordMutation appends a mutation to the duel's file, creating it on
// first use.
func (j *Journal) RecordMutation(duelID string, iteration int, deltas []duel.Delta) error {
	w, err := j.writerFor(duelID)
	if err != nil {
		return err
	}
	return w.write(iteration, deltas)
}

func (j *Journal) writerFor(duelID string) (*writer, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if w, ok := j.writers[duelID]; ok {
		return w, nil
	}
	w, err := openWriter(j.Path(duelID), duelID, j.level)
	if err != nil {
		return nil, err
	}
	j.writers[duelID] = w
	j.logger.Debug("journal opened", zap.String("duel_id", duelID))
	return w, nil
}

// Finish closes the duel's file. It returns the final checksum, empty if
// nothing was recorded.
func (j *Journal) Finish(duelID string) (string, error) {
	j.mu.Lock()
	w, ok := j.writers[duelID]
	delete(j.writers, duelID)
	j.mu.Unlock()
	if !ok {
		return "", nil
	}
	sum := w.checksum
	if err := w.close(); err != nil {
		return "", fmt.Errorf("failed to close journal of %s: %w", duelID, err)
	}
	j.logger.Info("journal saved",
		zap.String("duel_id", duelID),
		zap.Int("entries", w.entries),
		zap.String("checksum", sum))
	return sum, nil
}

// Close finishes every open file.
func (j *Journal) Close() error {
	j.mu.Lock()
	ids := make([]string, 0, len(j.writers))
	for id := range j.writers {
		ids = append(ids, id)
	}
	j.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if _, err := j.Finish(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type writer struct {
	mu       sync.Mutex
	f        *os.File
	enc      *zstd.Encoder
	w        *bufio.Writer
	checksum string
	entries  int
}

func openWriter(path, duelID string, level zstd.EncoderLevel) (*writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal file: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(level))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &writer{f: f, enc: enc, w: bufio.NewWriterSize(enc, 64*1024)}
	if err := w.line(Header{Version: Version, DuelID: duelID, CreatedAt: time.Now().UTC()}); err != nil {
		_ = w.close()
		return nil, err
	}
	return w, nil
}

func (w *writer) write(iteration int, deltas []duel.Delta) error {
	raw, err := EncodeDeltas(deltas)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return errors.New("journal closed")
	}
	sum := Chain(w.checksum, raw)
	if err := w.line(Entry{Iteration: iteration, Deltas: raw, Checksum: sum}); err != nil {
		return err
	}
	w.checksum = sum
	w.entries++
	return nil
}

func (w *writer) line(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *writer) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	if w.w != nil {
		err = w.w.Flush()
		w.w = nil
	}
	if w.enc != nil {
		err = errors.Join(err, w.enc.Close())
		w.enc = nil
	}
	if w.f != nil {
		err = errors.Join(err, w.f.Close())
		w.f = nil
	}
	return err
}

// EncodeDeltas serializes deltas with every field, hidden ones included.
func EncodeDeltas(deltas []duel.Delta) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(deltas))
	for i, dl := range deltas {
		raw, err := duel.EncodeDeltaFull(dl)
		if err != nil {
			return nil, fmt.Errorf("failed to encode delta %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// Chain folds encoded deltas into a running checksum.
func Chain(prev string, deltas []json.RawMessage) string {
	h := newHash()
	h.Write([]byte(prev))
	for _, d := range deltas {
		h.Write(d)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func newHash() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only fails for keys longer than 64 bytes
		panic(err)
	}
	return h
}
