package schema

import (
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrProjectNotFound    = errors.New("project not found")
	ErrVideoNotFound      = errors.New("video not found")
	ErrAnnotationNotFound = errors.New("annotation not found")
	ErrDbAccessFailed     = errors.New("db access failed")
)

// Migrate creates the five tables if they are missing. It is safe to run on
// every process start; existing tables and rows are left untouched.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{}, &Project{}, &Video{},
		&TemporalAnnotation{}, &BboxAnnotation{},
	)
}

func GetUser(userId int64, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "user_id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetProject(projectId int64, db *gorm.DB) (Project, error) {
	var project Project

	result := db.First(&project, "project_id = ?", projectId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return project, ErrProjectNotFound
		}
		slog.Error("sql error in get project", "project_id", projectId, "error", result.Error)
		return project, ErrDbAccessFailed
	}

	return project, nil
}

func GetVideo(videoId int64, db *gorm.DB) (Video, error) {
	var video Video

	result := db.First(&video, "video_id = ?", videoId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return video, ErrVideoNotFound
		}
		slog.Error("sql error in get video", "video_id", videoId, "error", result.Error)
		return video, ErrDbAccessFailed
	}

	return video, nil
}

// SyncProjectCounters recomputes total_videos and completed_videos from the
// videos relation. Callers run it inside the same transaction as the change
// that invalidated the counters.
func SyncProjectCounters(projectId int64, txn *gorm.DB) error {
	result := txn.Model(&Project{}).Where("project_id = ?", projectId).Updates(map[string]interface{}{
		"total_videos":     txn.Model(&Video{}).Where("project_id = ?", projectId).Select("count(*)"),
		"completed_videos": txn.Model(&Video{}).Where("project_id = ? AND is_completed = ?", projectId, true).Select("count(*)"),
	})
	if result.Error != nil {
		slog.Error("sql error syncing project video counters", "project_id", projectId, "error", result.Error)
		return ErrDbAccessFailed
	}
	return nil
}

// TouchProject bumps last_activity, used by any mutation under the project.
func TouchProject(projectId int64, txn *gorm.DB) error {
	result := txn.Model(&Project{}).Where("project_id = ?", projectId).Update("last_activity", time.Now().UTC())
	if result.Error != nil {
		slog.Error("sql error updating project last activity", "project_id", projectId, "error", result.Error)
		return ErrDbAccessFailed
	}
	return nil
}
