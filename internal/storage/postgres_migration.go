package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"sessionhub/internal/models"
)

// Snapshot holds the full contents of a JSON datastore for import into
// Postgres. Rows are imported verbatim: identifiers, password hashes, and
// timestamps are preserved.
type Snapshot struct {
	Users    []UserRecord
	Sessions []models.Session
}

// SnapshotCounts reports row counts per entity for verification after import.
type SnapshotCounts struct {
	Users    int
	Sessions int
}

// Counts returns the per-entity row counts of the snapshot.
func (s Snapshot) Counts() SnapshotCounts {
	return SnapshotCounts{Users: len(s.Users), Sessions: len(s.Sessions)}
}

// LoadSnapshotFromJSON reads a JSON datastore file and flattens it into a
// Snapshot with deterministic ordering.
func LoadSnapshotFromJSON(path string) (Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot file: %w", err)
	}
	defer file.Close()

	var data dataset
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot file: %w", err)
	}

	snapshot := Snapshot{
		Users:    make([]UserRecord, 0, len(data.Users)),
		Sessions: make([]models.Session, 0, len(data.Sessions)),
	}
	for _, user := range data.Users {
		snapshot.Users = append(snapshot.Users, user)
	}
	for _, session := range data.Sessions {
		snapshot.Sessions = append(snapshot.Sessions, session)
	}
	sort.Slice(snapshot.Users, func(i, j int) bool { return snapshot.Users[i].ID < snapshot.Users[j].ID })
	sort.Slice(snapshot.Sessions, func(i, j int) bool { return snapshot.Sessions[i].ID < snapshot.Sessions[j].ID })
	return snapshot, nil
}

// ImportSnapshotToPostgres writes the snapshot into the Postgres repository in
// a single transaction. Existing rows with matching identifiers are
// overwritten, making the import safe to re-run.
func ImportSnapshotToPostgres(ctx context.Context, repo Repository, snapshot Snapshot) error {
	pg, ok := repo.(*postgresRepository)
	if !ok {
		return fmt.Errorf("repository does not support postgres import")
	}

	tx, err := pg.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, user := range snapshot.Users {
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET
			   email = EXCLUDED.email,
			   password_hash = EXCLUDED.password_hash,
			   created_at = EXCLUDED.created_at`,
			user.ID, user.Email, user.PasswordHash, user.CreatedAt,
		); err != nil {
			return fmt.Errorf("import user %s: %w", user.ID, err)
		}
	}

	for _, session := range snapshot.Sessions {
		if _, err := tx.Exec(ctx,
			`INSERT INTO sessions (id, user_id, title, tags, json_file_url, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE SET
			   user_id = EXCLUDED.user_id,
			   title = EXCLUDED.title,
			   tags = EXCLUDED.tags,
			   json_file_url = EXCLUDED.json_file_url,
			   status = EXCLUDED.status,
			   created_at = EXCLUDED.created_at,
			   updated_at = EXCLUDED.updated_at`,
			session.ID, session.UserID, session.Title, session.Tags, session.JSONFileURL, string(session.Status), session.CreatedAt, session.UpdatedAt,
		); err != nil {
			return fmt.Errorf("import session %s: %w", session.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import transaction: %w", err)
	}
	return nil
}
