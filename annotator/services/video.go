package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"falldetect/annotator/auth"
	"falldetect/annotator/metadata"
	"falldetect/annotator/metrics"
	"falldetect/annotator/schema"
	"falldetect/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VideoService struct {
	db       *gorm.DB
	userAuth *auth.Provider
	prober   metadata.Prober
}

func (s *VideoService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/list", s.List)
	r.Post("/upload", s.Upload)
	r.Get("/metadata", s.Metadata)
	r.Post("/{video_id}/assign", s.Assign)
	r.Post("/{video_id}/complete", s.Complete)

	return r
}

// List applies the optional filters conjunctively. When both assigned_to and
// unassigned=true are supplied the explicit assignee wins.
func (s *VideoService) List(w http.ResponseWriter, r *http.Request) {
	projectId, err := utils.QueryParamInt(r, "project_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	assignedTo, err := utils.QueryParamInt(r, "assigned_to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	unassigned := utils.QueryParamBool(r, "unassigned")

	query := s.db.Order("video_id asc")
	if projectId != nil {
		query = query.Where("project_id = ?", *projectId)
	}
	if assignedTo != nil {
		query = query.Where("assigned_to = ?", *assignedTo)
	} else if unassigned {
		query = query.Where("assigned_to IS NULL")
	}

	var videos []schema.Video
	result := query.Find(&videos)
	if result.Error != nil {
		slog.Error("sql error listing videos", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing videos: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, videos)
}

type uploadVideosRequest struct {
	FilePaths []string `json:"file_paths"`
	ProjectId *int64   `json:"project_id"`
}

// Upload creates one row per path. Metadata probing is best effort: a failed
// probe leaves the nullable fields unset and never fails the batch.
func (s *VideoService) Upload(w http.ResponseWriter, r *http.Request) {
	var params uploadVideosRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if len(params.FilePaths) == 0 {
		http.Error(w, "no file paths provided", http.StatusUnprocessableEntity)
		return
	}

	batch := uuid.New()
	now := time.Now().UTC()

	videos := make([]schema.Video, 0, len(params.FilePaths))
	for _, path := range params.FilePaths {
		video := schema.Video{
			Filename:    path,
			ImportDate:  now,
			Status:      schema.VideoPending,
			UploadBatch: batch,
			ProjectId:   params.ProjectId,
		}

		meta, err := s.prober.Probe(r.Context(), path)
		if err != nil {
			slog.Warn("metadata probe failed, importing without metadata", "path", path, "error", err)
		} else {
			video.Resolution = meta.Resolution
			video.Framerate = meta.Framerate
			video.Duration = meta.Duration
		}

		videos = append(videos, video)
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if params.ProjectId != nil {
			if err := checkProjectExists(txn, *params.ProjectId); err != nil {
				return err
			}
		}

		if result := txn.Create(&videos); result.Error != nil {
			slog.Error("sql error creating video entries", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if params.ProjectId != nil {
			if err := schema.SyncProjectCounters(*params.ProjectId, txn); err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
			if err := schema.TouchProject(*params.ProjectId, txn); err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error importing videos: %v", err), GetResponseCode(err))
		return
	}

	metrics.RecordVideosImported(len(videos))
	slog.Info("imported video batch", "batch", batch, "count", len(videos))

	utils.WriteJsonResponse(w, videos)
}

func (s *VideoService) Metadata(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "missing path query parameter", http.StatusBadRequest)
		return
	}

	meta, err := s.prober.Probe(r.Context(), path)
	if err != nil {
		slog.Error("metadata probe failed", "path", path, "error", err)
		http.Error(w, fmt.Sprintf("error probing metadata: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, meta.Summary())
}

type assignVideoRequest struct {
	AssignedTo *int64 `json:"assigned_to"`
}

// Assign sets or clears the assignee; a null assigned_to returns the video to
// the unassigned pool.
func (s *VideoService) Assign(w http.ResponseWriter, r *http.Request) {
	videoId, err := utils.URLParamInt(r, "video_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params assignVideoRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	var video schema.Video
	err = s.db.Transaction(func(txn *gorm.DB) error {
		video, err = schema.GetVideo(videoId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrVideoNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if params.AssignedTo != nil {
			if err := checkUserExists(txn, *params.AssignedTo); err != nil {
				return err
			}
		}

		video.AssignedTo = params.AssignedTo

		if result := txn.Save(&video); result.Error != nil {
			slog.Error("sql error updating video assignment", "video_id", videoId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if video.ProjectId != nil {
			if err := schema.TouchProject(*video.ProjectId, txn); err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error assigning video %v: %v", videoId, err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, video)
}

// Complete marks the video done and recounts the owning project's counters so
// completed_videos stays derived from the videos relation.
func (s *VideoService) Complete(w http.ResponseWriter, r *http.Request) {
	videoId, err := utils.URLParamInt(r, "video_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var video schema.Video
	err = s.db.Transaction(func(txn *gorm.DB) error {
		video, err = schema.GetVideo(videoId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrVideoNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		video.IsCompleted = true
		video.Status = schema.VideoCompleted

		if result := txn.Save(&video); result.Error != nil {
			slog.Error("sql error completing video", "video_id", videoId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if video.ProjectId != nil {
			if err := schema.SyncProjectCounters(*video.ProjectId, txn); err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
			if err := schema.TouchProject(*video.ProjectId, txn); err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error completing video %v: %v", videoId, err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, video)
}
