package state

import (
	"database/sql"
	"errors"
	"time"

	dbutil "github.com/llehouerou/vibra/internal/db"
	"github.com/llehouerou/vibra/internal/playback"
)

// Verify Manager implements the session's snapshot contract at compile time.
var _ playback.SnapshotStore = (*Manager)(nil)

// SaveSnapshot persists the session snapshot. The write is transactional so
// a failure never corrupts the previous snapshot.
func (m *Manager) SaveSnapshot(snap playback.Snapshot) error {
	return dbutil.WithTx(m.db, func(tx *sql.Tx) error {
		// Clear existing tracks
		if _, err := tx.Exec(`DELETE FROM session_tracks`); err != nil {
			return err
		}

		_, err := tx.Exec(`
			INSERT INTO session_state (id, current_index, shuffle, repeat_mode, position_ms)
			VALUES (1, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				current_index = excluded.current_index,
				shuffle = excluded.shuffle,
				repeat_mode = excluded.repeat_mode,
				position_ms = excluded.position_ms
		`, snap.CurrentIndex, snap.Shuffle, int(snap.RepeatMode), snap.Position.Milliseconds())
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO session_tracks (position, track_id, title, artist, media_uri, cover_uri, duration_ms, liked)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range snap.Tracks {
			_, err = stmt.Exec(i, t.ID, t.Title, t.Artist, t.MediaURI, t.CoverURI,
				t.Duration.Milliseconds(), t.Liked)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSnapshot returns the saved snapshot, or nil if none was saved.
func (m *Manager) LoadSnapshot() (*playback.Snapshot, error) {
	var currentIndex, repeatMode int
	var shuffle bool
	var positionMs int64

	row := m.db.QueryRow(`SELECT current_index, shuffle, repeat_mode, position_ms FROM session_state WHERE id = 1`)
	err := row.Scan(&currentIndex, &shuffle, &repeatMode, &positionMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil snapshot means nothing saved, not an error
	}
	if err != nil {
		return nil, err
	}

	rows, err := m.db.Query(`
		SELECT track_id, title, artist, media_uri, cover_uri, duration_ms, liked
		FROM session_tracks
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []playback.Track
	for rows.Next() {
		var t playback.Track
		var artist, coverURI sql.NullString
		var durationMs int64

		if err := rows.Scan(&t.ID, &t.Title, &artist, &t.MediaURI, &coverURI, &durationMs, &t.Liked); err != nil {
			return nil, err
		}
		t.Artist = dbutil.NullStringValue(artist)
		t.CoverURI = dbutil.NullStringValue(coverURI)
		t.Duration = time.Duration(durationMs) * time.Millisecond
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &playback.Snapshot{
		Tracks:       tracks,
		CurrentIndex: currentIndex,
		Shuffle:      shuffle,
		RepeatMode:   playback.RepeatMode(repeatMode),
		Position:     time.Duration(positionMs) * time.Millisecond,
	}, nil
}

// ClearSnapshot removes the saved snapshot. Called on logout and when a
// loaded snapshot turns out to be inconsistent.
func (m *Manager) ClearSnapshot() error {
	return dbutil.WithTx(m.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM session_tracks`); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM session_state`)
		return err
	})
}
