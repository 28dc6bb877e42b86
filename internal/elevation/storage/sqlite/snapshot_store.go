// Package sqlite contains the SQLite repository for mapping sessions and
// recorded map snapshots. All database read/write operations for session
// recording belong here rather than in the estimation layer, which keeps
// the fusion code free of SQL noise.
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/gstavrinos/elevation-mapping/internal/elevation"
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Session represents one recorded mapping run.
type Session struct {
	SessionID   string          `json:"session_id"`
	MapFrameID  string          `json:"map_frame_id"`
	ConfigJSON  json.RawMessage `json:"config_json,omitempty"`
	StartedAtNs int64           `json:"started_at_ns"`
}

// SnapshotRecord is one stored snapshot row.
type SnapshotRecord struct {
	SnapshotID int64                  `json:"snapshot_id"`
	SessionID  string                 `json:"session_id"`
	Snapshot   *elevation.MapSnapshot `json:"-"`
}

// SnapshotStore persists map snapshots per mapping session. After
// StartSession it satisfies the mapper's snapshot sink; channel data is
// stored as zstd-compressed little-endian blobs so NaN cells survive
// intact.
type SnapshotStore struct {
	db        *sql.DB
	sessionID string
}

// NewSnapshotStore creates a SnapshotStore backed by the given database.
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// StartSession creates a new session row and makes it the target of
// subsequent RecordSnapshot calls. config may be nil.
func (s *SnapshotStore) StartSession(mapFrameID string, config interface{}) (*Session, error) {
	session := &Session{
		SessionID:   uuid.New().String(),
		MapFrameID:  mapFrameID,
		StartedAtNs: time.Now().UnixNano(),
	}
	if config != nil {
		raw, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("marshal session config: %w", err)
		}
		session.ConfigJSON = raw
	}

	_, err := s.db.Exec(
		`INSERT INTO mapping_sessions (session_id, map_frame_id, config_json, started_at_ns)
		 VALUES (?, ?, ?, ?)`,
		session.SessionID,
		session.MapFrameID,
		nullString(string(session.ConfigJSON)),
		session.StartedAtNs,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	s.sessionID = session.SessionID
	return session, nil
}

// SessionID returns the active session id, or empty before StartSession.
func (s *SnapshotStore) SessionID() string {
	return s.sessionID
}

// RecordSnapshot stores a snapshot under the active session.
func (s *SnapshotStore) RecordSnapshot(snap *elevation.MapSnapshot) error {
	if s.sessionID == "" {
		return fmt.Errorf("record snapshot: no active session")
	}

	_, err := s.db.Exec(
		`INSERT INTO map_snapshots (
			session_id, stamp_ns, frame_id, rows, cols,
			resolution, length_x, length_y,
			elevation, variance, variance_x, variance_y, color
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.sessionID,
		snap.Stamp.UnixNano(),
		snap.FrameID,
		snap.Rows,
		snap.Cols,
		snap.Resolution,
		snap.LengthX,
		snap.LengthY,
		compressFloats(snap.Elevation),
		compressFloats(snap.Variance),
		compressFloats(snap.VarianceX),
		compressFloats(snap.VarianceY),
		compressColors(snap.Color),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *SnapshotStore) GetSession(sessionID string) (*Session, error) {
	var session Session
	var configJSON sql.NullString

	err := s.db.QueryRow(
		`SELECT session_id, map_frame_id, config_json, started_at_ns
		 FROM mapping_sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&session.SessionID, &session.MapFrameID, &configJSON, &session.StartedAtNs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if configJSON.Valid {
		session.ConfigJSON = json.RawMessage(configJSON.String)
	}
	return &session, nil
}

// ListSessions returns all sessions, newest first.
func (s *SnapshotStore) ListSessions() ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT session_id, map_frame_id, config_json, started_at_ns
		 FROM mapping_sessions ORDER BY started_at_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var session Session
		var configJSON sql.NullString
		if err := rows.Scan(&session.SessionID, &session.MapFrameID, &configJSON, &session.StartedAtNs); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if configJSON.Valid {
			session.ConfigJSON = json.RawMessage(configJSON.String)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// LatestSnapshot returns the most recent snapshot of a session.
func (s *SnapshotStore) LatestSnapshot(sessionID string) (*SnapshotRecord, error) {
	return s.querySnapshot(
		`SELECT snapshot_id, session_id, stamp_ns, frame_id, rows, cols,
		        resolution, length_x, length_y,
		        elevation, variance, variance_x, variance_y, color
		 FROM map_snapshots WHERE session_id = ?
		 ORDER BY stamp_ns DESC LIMIT 1`,
		sessionID,
	)
}

// GetSnapshot retrieves a snapshot by row id.
func (s *SnapshotStore) GetSnapshot(snapshotID int64) (*SnapshotRecord, error) {
	return s.querySnapshot(
		`SELECT snapshot_id, session_id, stamp_ns, frame_id, rows, cols,
		        resolution, length_x, length_y,
		        elevation, variance, variance_x, variance_y, color
		 FROM map_snapshots WHERE snapshot_id = ?`,
		snapshotID,
	)
}

// CountSnapshots returns the number of snapshots stored for a session.
func (s *SnapshotStore) CountSnapshots(sessionID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM map_snapshots WHERE session_id = ?`, sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return count, nil
}

func (s *SnapshotStore) querySnapshot(query string, arg interface{}) (*SnapshotRecord, error) {
	var rec SnapshotRecord
	var snap elevation.MapSnapshot
	var stampNs int64
	var elevBlob, varBlob, varXBlob, varYBlob, colorBlob []byte

	err := s.db.QueryRow(query, arg).Scan(
		&rec.SnapshotID,
		&rec.SessionID,
		&stampNs,
		&snap.FrameID,
		&snap.Rows,
		&snap.Cols,
		&snap.Resolution,
		&snap.LengthX,
		&snap.LengthY,
		&elevBlob,
		&varBlob,
		&varXBlob,
		&varYBlob,
		&colorBlob,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	snap.Stamp = time.Unix(0, stampNs).UTC()
	cells := snap.Rows * snap.Cols
	if snap.Elevation, err = decompressFloats(elevBlob, cells); err != nil {
		return nil, fmt.Errorf("elevation channel: %w", err)
	}
	if snap.Variance, err = decompressFloats(varBlob, cells); err != nil {
		return nil, fmt.Errorf("variance channel: %w", err)
	}
	if snap.VarianceX, err = decompressFloats(varXBlob, cells); err != nil {
		return nil, fmt.Errorf("variance_x channel: %w", err)
	}
	if snap.VarianceY, err = decompressFloats(varYBlob, cells); err != nil {
		return nil, fmt.Errorf("variance_y channel: %w", err)
	}
	if snap.Color, err = decompressColors(colorBlob, cells); err != nil {
		return nil, fmt.Errorf("color channel: %w", err)
	}

	rec.Snapshot = &snap
	return &rec, nil
}

func compressFloats(vs []float64) []byte {
	raw := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	return zstdEncoder.EncodeAll(raw, nil)
}

func decompressFloats(blob []byte, want int) ([]float64, error) {
	raw, err := decompressRaw(blob, 8*want)
	if err != nil {
		return nil, err
	}
	vs := make([]float64, want)
	for i := range vs {
		vs[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return vs, nil
}

func compressColors(vs []uint32) []byte {
	raw := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(raw[4*i:], v)
	}
	return zstdEncoder.EncodeAll(raw, nil)
}

func decompressColors(blob []byte, want int) ([]uint32, error) {
	raw, err := decompressRaw(blob, 4*want)
	if err != nil {
		return nil, err
	}
	vs := make([]uint32, want)
	for i := range vs {
		vs[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return vs, nil
}

func decompressRaw(blob []byte, wantBytes int) ([]byte, error) {
	raw, err := zstdDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	if len(raw) != wantBytes {
		return nil, fmt.Errorf("blob is %d bytes, want %d", len(raw), wantBytes)
	}
	return raw, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
