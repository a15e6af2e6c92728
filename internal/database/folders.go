package database

import (
	"database/sql"
	"time"

	"github.com/bryan-buckman/newsriver/internal/model"
)

const folderColumns = "id, user_id, name, created_at, updated_at, deleted_at"

// CreateFolder creates a new folder. Returns the ID.
func (db *DB) CreateFolder(userID int64, name string) (int64, error) {
	now := time.Now().UTC()
	res, err := db.conn.Exec("INSERT INTO folders (user_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		userID, name, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetFolderByID returns one folder.
func (db *DB) GetFolderByID(folderID int64) (*model.Folder, error) {
	row := db.conn.QueryRow("SELECT "+folderColumns+" FROM folders WHERE id = ?", folderID)
	return scanFolder(row)
}

// GetFoldersByUser returns a user's live folders ordered by name.
func (db *DB) GetFoldersByUser(userID int64) ([]model.Folder, error) {
	rows, err := db.conn.Query("SELECT "+folderColumns+" FROM folders WHERE user_id = ? AND deleted_at IS NULL ORDER BY name", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var folders []model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, *f)
	}
	return folders, rows.Err()
}

// GetOrCreateFolder finds a user's folder by name, or creates it.
func (db *DB) GetOrCreateFolder(userID int64, name string) (int64, error) {
	var id int64
	err := db.conn.QueryRow("SELECT id FROM folders WHERE user_id = ? AND name = ? AND deleted_at IS NULL", userID, name).Scan(&id)
	if err == sql.ErrNoRows {
		return db.CreateFolder(userID, name)
	}
	return id, err
}

// RenameFolder updates a folder's name.
func (db *DB) RenameFolder(folderID int64, name string) error {
	_, err := db.conn.Exec("UPDATE folders SET name = ?, updated_at = ? WHERE id = ?", name, time.Now().UTC(), folderID)
	return err
}

// SoftDeleteFolder marks a folder deleted and detaches its feeds.
func (db *DB) SoftDeleteFolder(folderID int64) error {
	now := time.Now().UTC()
	if _, err := db.conn.Exec("UPDATE feeds SET folder_id = NULL, updated_at = ? WHERE folder_id = ?", now, folderID); err != nil {
		return err
	}
	_, err := db.conn.Exec("UPDATE folders SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL", now, now, folderID)
	return err
}

func scanFolder(row rowScanner) (*model.Folder, error) {
	var f model.Folder
	var deletedAt sql.NullTime
	if err := row.Scan(&f.ID, &f.UserID, &f.Name, &f.CreatedAt, &f.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	f.DeletedAt = timePtr(deletedAt)
	return &f, nil
}
