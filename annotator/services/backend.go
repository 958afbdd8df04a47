package services

import (
	"log"
	"net/http"
	"os"

	"falldetect/annotator/auth"
	"falldetect/annotator/metadata"
	"falldetect/annotator/metrics"
	"falldetect/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

// Backend bundles the command-surface services around the single shared db
// handle. Main owns the handle for the process lifetime; services only borrow
// it.
type Backend struct {
	user       UserService
	project    ProjectService
	video      VideoService
	annotation AnnotationService

	db *gorm.DB
}

func NewBackend(db *gorm.DB, userAuth *auth.Provider, prober metadata.Prober) Backend {
	return Backend{
		user:       UserService{db: db, userAuth: userAuth},
		project:    ProjectService{db: db, userAuth: userAuth},
		video:      VideoService{db: db, userAuth: userAuth, prober: prober},
		annotation: AnnotationService{db: db, userAuth: userAuth},
		db:         db,
	}
}

func (b *Backend) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))
	r.Use(metrics.Middleware)

	r.Mount("/user", b.user.Routes())
	r.Mount("/project", b.project.Routes())
	r.Mount("/video", b.video.Routes())
	r.Mount("/annotation", b.annotation.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
