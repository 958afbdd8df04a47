package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"falldetect/annotator/auth"
	"falldetect/annotator/metrics"
	"falldetect/annotator/schema"
	"falldetect/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type AnnotationService struct {
	db       *gorm.DB
	userAuth *auth.Provider
}

func (s *AnnotationService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/video/{video_id}", s.GetForVideo)
	r.Post("/temporal", s.SaveTemporal)
	r.Post("/bbox", s.SaveBbox)
	r.Delete("/{annotation_type}/{annotation_id}", s.Delete)

	return r
}

type annotationsResponse struct {
	Temporal []schema.TemporalAnnotation `json:"temporal"`
	Bboxes   []schema.BboxAnnotation     `json:"bboxes"`
}

func (s *AnnotationService) GetForVideo(w http.ResponseWriter, r *http.Request) {
	videoId, err := utils.URLParamInt(r, "video_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res := annotationsResponse{
		Temporal: make([]schema.TemporalAnnotation, 0),
		Bboxes:   make([]schema.BboxAnnotation, 0),
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkVideoExists(txn, videoId); err != nil {
			return err
		}

		result := txn.Order("start_time asc").Find(&res.Temporal, "video_id = ?", videoId)
		if result.Error != nil {
			slog.Error("sql error listing temporal annotations", "video_id", videoId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Order("frame_index asc").Find(&res.Bboxes, "video_id = ?", videoId)
		if result.Error != nil {
			slog.Error("sql error listing bbox annotations", "video_id", videoId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error getting annotations for video %v: %v", videoId, err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, res)
}

type saveTemporalAnnotationRequest struct {
	VideoId    int64   `json:"video_id"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	StartFrame int64   `json:"start_frame"`
	EndFrame   int64   `json:"end_frame"`
	Label      string  `json:"label"`
}

func (s *AnnotationService) SaveTemporal(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params saveTemporalAnnotationRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	// Validated before any write: a rejected range must leave no row behind.
	if params.EndTime <= params.StartTime {
		http.Error(w, fmt.Sprintf("invalid range: end time %v must be greater than start time %v", params.EndTime, params.StartTime), http.StatusUnprocessableEntity)
		return
	}
	if params.EndFrame < params.StartFrame {
		http.Error(w, fmt.Sprintf("invalid range: end frame %v must not precede start frame %v", params.EndFrame, params.StartFrame), http.StatusUnprocessableEntity)
		return
	}
	if params.Label == "" {
		http.Error(w, "annotation label must not be empty", http.StatusUnprocessableEntity)
		return
	}

	annotation := schema.TemporalAnnotation{
		VideoId:    params.VideoId,
		StartTime:  params.StartTime,
		EndTime:    params.EndTime,
		StartFrame: params.StartFrame,
		EndFrame:   params.EndFrame,
		Label:      params.Label,
		CreatedBy:  &user.Id,
		CreatedAt:  time.Now().UTC(),
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkVideoExists(txn, params.VideoId); err != nil {
			return err
		}

		if result := txn.Create(&annotation); result.Error != nil {
			slog.Error("sql error creating temporal annotation", "video_id", params.VideoId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error saving temporal annotation: %v", err), GetResponseCode(err))
		return
	}

	metrics.RecordAnnotationSaved(schema.TemporalAnnotationKind)

	utils.WriteJsonResponse(w, annotation)
}

type saveBboxAnnotationRequest struct {
	VideoId    int64   `json:"video_id"`
	FrameIndex int64   `json:"frame_index"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	PartLabel  string  `json:"part_label"`
}

func (s *AnnotationService) SaveBbox(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params saveBboxAnnotationRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Width <= 0 || params.Height <= 0 {
		http.Error(w, fmt.Sprintf("invalid geometry: width %v and height %v must be positive", params.Width, params.Height), http.StatusUnprocessableEntity)
		return
	}
	if params.FrameIndex < 0 {
		http.Error(w, fmt.Sprintf("invalid frame index %v", params.FrameIndex), http.StatusUnprocessableEntity)
		return
	}
	if params.PartLabel == "" {
		http.Error(w, "part label must not be empty", http.StatusUnprocessableEntity)
		return
	}

	annotation := schema.BboxAnnotation{
		VideoId:    params.VideoId,
		FrameIndex: params.FrameIndex,
		X:          params.X,
		Y:          params.Y,
		Width:      params.Width,
		Height:     params.Height,
		PartLabel:  params.PartLabel,
		CreatedBy:  &user.Id,
		CreatedAt:  time.Now().UTC(),
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkVideoExists(txn, params.VideoId); err != nil {
			return err
		}

		if result := txn.Create(&annotation); result.Error != nil {
			slog.Error("sql error creating bbox annotation", "video_id", params.VideoId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error saving bbox annotation: %v", err), GetResponseCode(err))
		return
	}

	metrics.RecordAnnotationSaved(schema.BboxAnnotationKind)

	utils.WriteJsonResponse(w, annotation)
}

// Delete is permanent. Annotations are the only entities that are hard-deleted;
// users, projects, and videos are retained and soft-archived instead.
func (s *AnnotationService) Delete(w http.ResponseWriter, r *http.Request) {
	kind, err := utils.URLParam(r, "annotation_type")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	annotationId, err := utils.URLParamInt(r, "annotation_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := schema.CheckValidAnnotationKind(kind); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	var result *gorm.DB
	if kind == schema.TemporalAnnotationKind {
		result = s.db.Delete(&schema.TemporalAnnotation{}, "annotation_id = ?", annotationId)
	} else {
		result = s.db.Delete(&schema.BboxAnnotation{}, "bbox_id = ?", annotationId)
	}

	if result.Error != nil {
		slog.Error("sql error deleting annotation", "kind", kind, "annotation_id", annotationId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error deleting annotation: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, schema.ErrAnnotationNotFound.Error(), http.StatusNotFound)
		return
	}

	utils.WriteSuccess(w)
}
