package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"falldetect/annotator/auth"
	"falldetect/annotator/schema"
	"falldetect/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type ProjectService struct {
	db       *gorm.DB
	userAuth *auth.Provider
}

func (s *ProjectService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/list", s.List)
	r.Post("/create", s.Create)
	r.Get("/{project_id}", s.Get)
	r.Post("/{project_id}/update", s.Update)

	return r
}

func (s *ProjectService) List(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.QueryParamInt(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := s.db.Order("last_activity desc")
	if userId != nil {
		query = query.Where("created_by = ?", *userId)
	}

	var projects []schema.Project
	result := query.Find(&projects)
	if result.Error != nil {
		slog.Error("sql error listing projects", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing projects: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, projects)
}

type createProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Deadline    *string `json:"deadline"`
}

func (s *ProjectService) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params createProjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" {
		http.Error(w, "project name must not be empty", http.StatusUnprocessableEntity)
		return
	}

	now := time.Now().UTC()
	project := schema.Project{
		Name:             params.Name,
		Description:      params.Description,
		CreatedBy:        user.Id,
		CreatedAt:        now,
		Deadline:         params.Deadline,
		Status:           schema.ProjectSetup,
		QualityThreshold: 0.8,
		TotalVideos:      0,
		CompletedVideos:  0,
		LastActivity:     now,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUserExists(txn, user.Id); err != nil {
			return err
		}

		if result := txn.Create(&project); result.Error != nil {
			slog.Error("sql error creating new project entry", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating project: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("created project", "project_id", project.Id, "name", project.Name, "created_by", user.Id)

	utils.WriteJsonResponse(w, project)
}

func (s *ProjectService) Get(w http.ResponseWriter, r *http.Request) {
	projectId, err := utils.URLParamInt(r, "project_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	project, err := schema.GetProject(projectId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrProjectNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error getting project: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, project)
}

type updateProjectRequest struct {
	Name                  *string  `json:"name"`
	Description           *string  `json:"description"`
	Deadline              *string  `json:"deadline"`
	Status                *string  `json:"status"`
	AnnotationSchema      *string  `json:"annotation_schema"`
	NormalizationSettings *string  `json:"normalization_settings"`
	QualityThreshold      *float64 `json:"quality_threshold"`
}

// Update applies only the supplied fields; anything omitted keeps its stored
// value. Any change bumps last_activity.
func (s *ProjectService) Update(w http.ResponseWriter, r *http.Request) {
	projectId, err := utils.URLParamInt(r, "project_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateProjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Status != nil {
		if err := schema.CheckValidProjectStatus(*params.Status); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
	}

	if params.QualityThreshold != nil && (*params.QualityThreshold < 0 || *params.QualityThreshold > 1) {
		http.Error(w, fmt.Sprintf("quality threshold %v must be in [0, 1]", *params.QualityThreshold), http.StatusUnprocessableEntity)
		return
	}

	var project schema.Project
	err = s.db.Transaction(func(txn *gorm.DB) error {
		project, err = schema.GetProject(projectId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrProjectNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if params.Name != nil {
			project.Name = *params.Name
		}
		if params.Description != nil {
			project.Description = params.Description
		}
		if params.Deadline != nil {
			project.Deadline = params.Deadline
		}
		if params.Status != nil {
			project.Status = *params.Status
		}
		if params.AnnotationSchema != nil {
			project.AnnotationSchema = params.AnnotationSchema
		}
		if params.NormalizationSettings != nil {
			project.NormalizationSettings = params.NormalizationSettings
		}
		if params.QualityThreshold != nil {
			project.QualityThreshold = *params.QualityThreshold
		}
		project.LastActivity = time.Now().UTC()

		if result := txn.Save(&project); result.Error != nil {
			slog.Error("sql error updating project", "project_id", projectId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating project %v: %v", projectId, err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, project)
}
