package snapshotstore

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/snapshot"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/standings"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/faults"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/id"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/logging"
)

const (
	extPlain      = ".json"
	extCompressed = ".json.gz"
)

// TxRunner runs fn inside one transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Config struct {
	Dir                string
	MaxSnapshots       int
	CompressionEnabled bool
	ChecksumEnabled    bool
	// ProductionMode forces a pre-restore snapshot before any destructive
	// restore.
	ProductionMode bool
}

// FileStore archives league-season tables as self-describing JSON blobs on
// disk and restores them through the standings repository.
type FileStore struct {
	cfg     Config
	entries standings.Repository
	tx      TxRunner
	logger  *logging.Logger
	now     func() time.Time
	suffix  func() (string, error)
}

func NewFileStore(cfg Config, entries standings.Repository, tx TxRunner, logger *logging.Logger) (*FileStore, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, crerr.New("snapshot directory is required")
	}
	if cfg.MaxSnapshots < 1 {
		cfg.MaxSnapshots = 50
	}
	if logger == nil {
		logger = logging.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, crerr.Wrap(err, "create snapshot directory")
	}

	return &FileStore{
		cfg:     cfg,
		entries: entries,
		tx:      tx,
		logger:  logger,
		now:     time.Now,
		suffix:  id.NewSuffix,
	}, nil
}

// Create archives the current table of the pair and returns the snapshot id.
// A create failure must stop any destructive work the caller planned.
func (s *FileStore) Create(ctx context.Context, leagueID, seasonID int, description string) (string, error) {
	rows, err := s.entries.ListSeason(ctx, leagueID, seasonID)
	if err != nil {
		return "", faults.Wrap(faults.TypeDatabaseError, err, fmt.Sprintf("read table for snapshot league=%d season=%d", leagueID, seasonID))
	}

	now := s.now().UTC()
	suffix, err := s.suffix()
	if err != nil {
		return "", crerr.Wrap(err, "generate snapshot suffix")
	}
	snapshotID := fmt.Sprintf("snapshot_%d_%d_%s_%s", leagueID, seasonID, now.Format("20060102T150405Z"), suffix)

	blob := snapshot.Snapshot{
		Metadata: snapshot.Metadata{
			SnapshotID:  snapshotID,
			LeagueID:    leagueID,
			SeasonID:    seasonID,
			CreatedAt:   now,
			Description: description,
			Version:     snapshot.Version,
		},
		Entries: rows,
	}
	if s.cfg.ChecksumEnabled {
		sum, err := entriesChecksum(rows)
		if err != nil {
			return "", crerr.Wrap(err, "compute snapshot checksum")
		}
		blob.Checksum = sum
	}

	if err := s.writeBlob(snapshotID, blob); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "snapshot created",
		"snapshot_id", snapshotID,
		"league_id", leagueID,
		"season_id", seasonID,
		"entries", len(rows),
	)

	if err := s.enforceCountCap(leagueID, seasonID); err != nil {
		s.logger.WarnContext(ctx, "snapshot count cap sweep failed", "error", err)
	}
	return snapshotID, nil
}

// Get loads and verifies one snapshot.
func (s *FileStore) Get(_ context.Context, snapshotID string) (snapshot.Snapshot, error) {
	path, info, err := s.locate(snapshotID)
	if err != nil {
		return snapshot.Snapshot{}, err
	}

	raw, err := s.readBlob(path)
	if err != nil {
		return snapshot.Snapshot{}, err
	}

	var blob snapshot.Snapshot
	if err := sonic.Unmarshal(raw, &blob); err != nil {
		return snapshot.Snapshot{}, faults.Wrap(faults.TypeValidationError, err, fmt.Sprintf("snapshot %s is not a valid blob", snapshotID))
	}
	if err := validateBlob(snapshotID, blob); err != nil {
		return snapshot.Snapshot{}, err
	}
	if blob.Checksum != "" {
		sum, err := entriesChecksum(blob.Entries)
		if err != nil {
			return snapshot.Snapshot{}, crerr.Wrap(err, "recompute snapshot checksum")
		}
		if sum != blob.Checksum {
			return snapshot.Snapshot{}, faults.New(faults.TypeValidationError, fmt.Sprintf("snapshot %s checksum mismatch", snapshotID))
		}
	}

	blob.SizeBytes = info.Size()
	blob.FilePath = path
	return blob, nil
}

// List returns the snapshots of the pair, newest first.
func (s *FileStore) List(ctx context.Context, leagueID, seasonID int) ([]snapshot.Snapshot, error) {
	prefix := fmt.Sprintf("snapshot_%d_%d_", leagueID, seasonID)

	files, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, crerr.Wrap(err, "read snapshot directory")
	}

	out := make([]snapshot.Snapshot, 0)
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), prefix) {
			continue
		}
		blob, err := s.Get(ctx, trimExt(file.Name()))
		if err != nil {
			s.logger.WarnContext(ctx, "skip unreadable snapshot", "file", file.Name(), "error", err)
			continue
		}
		out = append(out, blob)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata.CreatedAt.After(out[j].Metadata.CreatedAt)
	})
	return out, nil
}

// Restore replaces the current table of the snapshot's pair with the archived
// entries, inside one transaction. In production mode a pre-restore snapshot
// of the current state is taken first and its id recorded in the result.
func (s *FileStore) Restore(ctx context.Context, snapshotID string) (snapshot.RestoreResult, error) {
	result := snapshot.RestoreResult{}

	blob, err := s.Get(ctx, snapshotID)
	if err != nil {
		result.Errors = append(result.Errors, restoreError(err))
		return result, err
	}

	for _, e := range blob.Entries {
		if err := e.Validate(); err != nil {
			f := faults.Wrap(faults.TypeValidationError, err, fmt.Sprintf("snapshot %s holds an invalid entry", snapshotID))
			result.Errors = append(result.Errors, restoreError(f))
			return result, f
		}
	}

	if s.cfg.ProductionMode {
		preID, err := s.Create(ctx, blob.Metadata.LeagueID, blob.Metadata.SeasonID, "pre-restore of "+snapshotID)
		if err != nil {
			result.Errors = append(result.Errors, restoreError(err))
			return result, crerr.Wrap(err, "create pre-restore snapshot")
		}
		result.PreRestoreSnapshotID = preID
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.entries.ReplaceSeason(ctx, blob.Metadata.LeagueID, blob.Metadata.SeasonID, blob.Entries)
	})
	if err != nil {
		f := faults.Wrap(faults.TypeDatabaseError, err, fmt.Sprintf("restore snapshot %s", snapshotID))
		result.Errors = append(result.Errors, restoreError(f))
		return result, f
	}

	result.Success = true
	result.RestoredEntries = len(blob.Entries)
	s.logger.InfoContext(ctx, "snapshot restored",
		"snapshot_id", snapshotID,
		"entries", result.RestoredEntries,
		"pre_restore_snapshot_id", result.PreRestoreSnapshotID,
	)
	return result, nil
}

func (s *FileStore) Delete(_ context.Context, snapshotID string) error {
	path, _, err := s.locate(snapshotID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return crerr.Wrapf(err, "delete snapshot %s", snapshotID)
	}
	return nil
}

// DeleteOlderThan removes snapshots whose file modification time is older
// than maxAgeDays. Returns the number of deleted files.
func (s *FileStore) DeleteOlderThan(ctx context.Context, maxAgeDays int) (int, error) {
	if maxAgeDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -maxAgeDays)

	files, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return 0, crerr.Wrap(err, "read snapshot directory")
	}

	deleted := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), "snapshot_") {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.cfg.Dir, file.Name())); err != nil {
				s.logger.WarnContext(ctx, "snapshot age sweep failed", "file", file.Name(), "error", err)
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}

func (s *FileStore) writeBlob(snapshotID string, blob snapshot.Snapshot) error {
	raw, err := sonic.Marshal(blob)
	if err != nil {
		return crerr.Wrap(err, "marshal snapshot blob")
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	ext := extPlain
	if s.cfg.CompressionEnabled {
		ext = extCompressed
		zw := gzip.NewWriter(buf)
		if _, err := zw.Write(raw); err != nil {
			return crerr.Wrap(err, "compress snapshot blob")
		}
		if err := zw.Close(); err != nil {
			return crerr.Wrap(err, "finish snapshot compression")
		}
	} else {
		if _, err := buf.Write(raw); err != nil {
			return crerr.Wrap(err, "buffer snapshot blob")
		}
	}

	path := filepath.Join(s.cfg.Dir, snapshotID+ext)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return crerr.Wrapf(err, "write snapshot file %s", path)
	}
	return nil
}

func (s *FileStore) readBlob(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, crerr.Wrapf(err, "read snapshot file %s", path)
	}
	if !strings.HasSuffix(path, extCompressed) {
		return raw, nil
	}

	zr, err := gzip.NewReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, faults.Wrap(faults.TypeValidationError, err, "snapshot file is not valid gzip")
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, faults.Wrap(faults.TypeValidationError, err, "decompress snapshot file")
	}
	return out, nil
}

// locate finds the file for a snapshot id, trying both codec extensions.
func (s *FileStore) locate(snapshotID string) (string, os.FileInfo, error) {
	snapshotID = strings.TrimSpace(snapshotID)
	if snapshotID == "" || strings.ContainsAny(snapshotID, "/\\") {
		return "", nil, faults.New(faults.TypeInvalidInput, "snapshot id is invalid")
	}

	for _, ext := range []string{extPlain, extCompressed} {
		path := filepath.Join(s.cfg.Dir, snapshotID+ext)
		info, err := os.Stat(path)
		if err == nil {
			return path, info, nil
		}
	}
	return "", nil, faults.New(faults.TypeUnknownError, fmt.Sprintf("snapshot %s not found", snapshotID)).WithCode("SNAPSHOT_NOT_FOUND")
}

// enforceCountCap evicts the oldest snapshots of the pair beyond the cap.
func (s *FileStore) enforceCountCap(leagueID, seasonID int) error {
	prefix := fmt.Sprintf("snapshot_%d_%d_", leagueID, seasonID)

	files, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return crerr.Wrap(err, "read snapshot directory")
	}

	type candidate struct {
		name    string
		modTime time.Time
	}
	matches := make([]candidate, 0)
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), prefix) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		matches = append(matches, candidate{name: file.Name(), modTime: info.ModTime()})
	}
	if len(matches) <= s.cfg.MaxSnapshots {
		return nil
	}

	// Oldest first, mtime as the GC tie-break.
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].modTime.Equal(matches[j].modTime) {
			return matches[i].modTime.Before(matches[j].modTime)
		}
		return matches[i].name < matches[j].name
	})
	for _, victim := range matches[:len(matches)-s.cfg.MaxSnapshots] {
		if err := os.Remove(filepath.Join(s.cfg.Dir, victim.name)); err != nil {
			return crerr.Wrapf(err, "evict snapshot %s", victim.name)
		}
	}
	return nil
}

func validateBlob(snapshotID string, blob snapshot.Snapshot) error {
	meta := blob.Metadata
	if meta.SnapshotID == "" || meta.CreatedAt.IsZero() || meta.Version < 1 {
		return faults.New(faults.TypeValidationError, fmt.Sprintf("snapshot %s has incomplete metadata", snapshotID))
	}
	for _, e := range blob.Entries {
		if strings.TrimSpace(e.ClubName) == "" {
			return faults.New(faults.TypeValidationError, fmt.Sprintf("snapshot %s entry club=%d lacks a club name", snapshotID, e.ClubID))
		}
		if e.Rank < 1 || e.Points < 0 {
			return faults.New(faults.TypeValidationError, fmt.Sprintf("snapshot %s entry club=%d has invalid rank/points", snapshotID, e.ClubID))
		}
	}
	return nil
}

// entriesChecksum hashes the canonical JSON of the entry array only, so
// metadata edits never invalidate the checksum.
func entriesChecksum(entries []standings.Entry) (string, error) {
	canonical := entries
	if canonical == nil {
		canonical = []standings.Entry{}
	}
	raw, err := sonic.ConfigStd.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

func restoreError(err error) snapshot.RestoreError {
	f := faults.Classify(err)
	kind := snapshot.RestoreErrorDatabase
	switch {
	case f.Code == "SNAPSHOT_NOT_FOUND":
		kind = snapshot.RestoreErrorNotFound
	case f.Type == faults.TypeValidationError || f.Type == faults.TypeInvalidInput:
		kind = snapshot.RestoreErrorValidation
	}
	return snapshot.RestoreError{Type: kind, Message: f.Message}
}

func trimExt(name string) string {
	name = strings.TrimSuffix(name, extCompressed)
	return strings.TrimSuffix(name, extPlain)
}
