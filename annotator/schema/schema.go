package schema

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	Id int64 `gorm:"column:user_id;primaryKey;autoIncrement" json:"user_id"`

	Username     string `gorm:"unique;size:50;not null" json:"username"`
	Email        string `gorm:"unique;size:254;not null" json:"email"`
	PasswordHash []byte `gorm:"not null" json:"-"`

	Role     string `gorm:"size:50;not null;default:'annotator'" json:"role"`
	FullName string `gorm:"size:100;not null" json:"full_name"`

	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`

	LastActive          time.Time  `json:"last_active"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil         *time.Time `json:"-"`
	PasswordChangedAt   time.Time  `json:"-"`
	MustChangePassword  bool       `gorm:"not null;default:false" json:"must_change_password"`
}

// UserPublic is the redacted projection returned outside the storage boundary.
// The password hash and the security counters never leave the auth package.
type UserPublic struct {
	Id         int64     `json:"user_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	FullName   string    `json:"full_name"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

func (u *User) Public() UserPublic {
	return UserPublic{
		Id:         u.Id,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		FullName:   u.FullName,
		IsActive:   u.IsActive,
		CreatedAt:  u.CreatedAt,
		LastActive: u.LastActive,
	}
}

type Project struct {
	Id int64 `gorm:"column:project_id;primaryKey;autoIncrement" json:"project_id"`

	Name        string  `gorm:"size:100;not null" json:"name"`
	Description *string `json:"description"`

	CreatedBy int64 `gorm:"not null" json:"created_by"`
	Creator   *User `gorm:"foreignKey:CreatedBy" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	Deadline  *string   `json:"deadline"`

	Status string `gorm:"size:50;not null;default:'setup'" json:"status"`

	AnnotationSchema      *string `json:"annotation_schema"`
	NormalizationSettings *string `json:"normalization_settings"`

	QualityThreshold float64 `gorm:"not null;default:0.8" json:"quality_threshold"`

	// Derived from the videos relation, recounted inside the transaction that
	// changes it. Never settable through the update surface.
	TotalVideos     int64 `gorm:"not null;default:0" json:"total_videos"`
	CompletedVideos int64 `gorm:"not null;default:0" json:"completed_videos"`

	LastActivity time.Time `json:"last_activity"`
}

type Video struct {
	Id int64 `gorm:"column:video_id;primaryKey;autoIncrement" json:"video_id"`

	Filename string `gorm:"not null" json:"filename"`

	// Nullable: metadata probing is best effort, a failed probe leaves these unset.
	Resolution *string  `json:"resolution"`
	Framerate  *float64 `json:"framerate"`
	Duration   *float64 `json:"duration"`

	ImportDate            time.Time `json:"import_date"`
	NormalizationSettings *string   `json:"normalization_settings"`

	Status      string `gorm:"size:50;not null;default:'pending'" json:"status"`
	IsCompleted bool   `gorm:"not null;default:false" json:"is_completed"`

	UploadBatch uuid.UUID `gorm:"type:uuid" json:"upload_batch"`

	ProjectId *int64   `json:"project_id"`
	Project   *Project `json:"-"`

	AssignedTo *int64 `json:"assigned_to"`
	Assignee   *User  `gorm:"foreignKey:AssignedTo" json:"-"`
}

type TemporalAnnotation struct {
	Id int64 `gorm:"column:annotation_id;primaryKey;autoIncrement" json:"annotation_id"`

	VideoId int64  `gorm:"not null;index" json:"video_id"`
	Video   *Video `json:"-"`

	StartTime  float64 `gorm:"not null" json:"start_time"`
	EndTime    float64 `gorm:"not null" json:"end_time"`
	StartFrame int64   `gorm:"not null" json:"start_frame"`
	EndFrame   int64   `gorm:"not null" json:"end_frame"`

	Label string `gorm:"not null" json:"label"`

	CreatedBy *int64    `json:"created_by"`
	Creator   *User     `gorm:"foreignKey:CreatedBy" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type BboxAnnotation struct {
	Id int64 `gorm:"column:bbox_id;primaryKey;autoIncrement" json:"bbox_id"`

	VideoId int64  `gorm:"not null;index" json:"video_id"`
	Video   *Video `json:"-"`

	FrameIndex int64   `gorm:"not null" json:"frame_index"`
	X          float64 `gorm:"not null" json:"x"`
	Y          float64 `gorm:"not null" json:"y"`
	Width      float64 `gorm:"not null" json:"width"`
	Height     float64 `gorm:"not null" json:"height"`

	PartLabel string `gorm:"not null" json:"part_label"`

	CreatedBy *int64    `json:"created_by"`
	Creator   *User     `gorm:"foreignKey:CreatedBy" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
