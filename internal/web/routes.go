package web

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-queue/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	logger := s.logger.Named("http")
	queueHandler := handlers.NewQueueHandler(s.config, s.session, logger)
	peopleHandler := handlers.NewPeopleHandler(s.config, s.session, logger)
	photosHandler := handlers.NewPhotosHandler(s.config, s.session, logger)
	manualHandler := handlers.NewManualBoxesHandler(s.config, s.session, logger)
	clustersHandler := handlers.NewClustersHandler(s.config, s.session, logger)
	configHandler := handlers.NewConfigHandler(s.config)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/config", configHandler.Get)

		// Queue
		r.Get("/queue/next", queueHandler.Next)
		r.Get("/queue/batch", queueHandler.Batch)
		r.Post("/queue/batch", queueHandler.CommitBatch)
		r.Get("/queue/seed", queueHandler.Seed)
		r.Get("/queue/summary", queueHandler.Summary)
		r.Post("/queue/accept", queueHandler.Accept)
		r.Post("/queue/reject", queueHandler.Reject)
		r.Post("/queue/skip", queueHandler.Skip)
		r.Post("/queue/ignore", queueHandler.Ignore)
		r.Post("/queue/ignore-bucket", queueHandler.IgnoreBucket)
		r.Post("/queue/unignore", queueHandler.Unignore)
		r.Post("/queue/undo", queueHandler.Undo)

		// People and labels
		r.Get("/people", peopleHandler.List)
		r.Put("/people/{label}", peopleHandler.Update)
		r.Post("/labels/merge", peopleHandler.Merge)
		r.Post("/labels/remove", peopleHandler.Remove)
		r.Post("/labels/seed", peopleHandler.Seed)
		r.Get("/labels/faces", peopleHandler.Faces)
		r.Get("/labels/photos", peopleHandler.Photos)

		// Clusters
		r.Get("/clusters", clustersHandler.List)
		r.Get("/clusters/{clusterID}", clustersHandler.Get)
		r.Post("/clusters/{clusterID}/label", clustersHandler.Label)

		// Faces
		r.Get("/faces/unlabeled", photosHandler.Unlabeled)
		r.Get("/faces/{faceID}", photosHandler.FaceContext)

		// Photos
		r.Get("/photos", photosHandler.List)
		r.Get("/photos/{bucketID}/faces", photosHandler.Faces)
		r.Put("/photos/{bucketID}/priority", photosHandler.SetPriority)
		r.Put("/photos/{bucketID}/status", photosHandler.SetStatus)
		r.Post("/photos/{bucketID}/manual-boxes", manualHandler.Create)

		// Manual boxes
		r.Put("/manual-boxes/{boxID}/label", manualHandler.Label)
		r.Delete("/manual-boxes/{boxID}", manualHandler.Delete)
	})

	// Derived bucket images, read-only
	s.router.Handle("/buckets/*", http.StripPrefix("/buckets",
		http.FileServer(filesOnly{http.Dir(s.config.Archive.BucketsDir)})))
}

// filesOnly hides directories so the file server never renders listings.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if stat.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
