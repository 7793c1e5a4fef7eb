package jsonfile

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/facematch"
)

// File names inside the store directory.
const (
	PeopleFile      = "face_people.json"
	PrioritiesFile  = "photo_priority.json"
	ManualBoxesFile = "manual_boxes.json"
	PhotoStatusFile = "face_photos.json"
)

// OpenPeople opens the people metadata store.
func OpenPeople(path string, logger *zap.Logger) (*Map[database.PersonMeta], error) {
	return OpenMap[database.PersonMeta](path, "people", nil, logger)
}

// OpenPriorities opens the photo priority store. Unknown priority names are skipped on load.
func OpenPriorities(path string, logger *zap.Logger) (*Map[database.Priority], error) {
	return OpenMap(path, "priorities", func(_ string, p database.Priority) error {
		_, err := database.ParsePriority(string(p))
		return err
	}, logger)
}

// OpenPhotoStatus opens the photo status store.
func OpenPhotoStatus(path string, logger *zap.Logger) (*Map[database.PhotoStatus], error) {
	return OpenMap[database.PhotoStatus](path, "photos", nil, logger)
}

// OpenManualBoxes opens the manual box store.
func OpenManualBoxes(path string, logger *zap.Logger) (*List[database.ManualBox], error) {
	return OpenList(path, "boxes",
		func(b database.ManualBox) string { return b.ID },
		validateManualBox,
		logger)
}

func validateManualBox(b database.ManualBox) error {
	if !database.IsManualID(b.ID) {
		return fmt.Errorf("invalid manual box id %q", b.ID)
	}
	if b.BucketID == "" {
		return errors.New("manual box without bucket")
	}
	if _, ok := facematch.NormalizeBBox(b.BBox); !ok {
		return fmt.Errorf("manual box %s has an invalid bbox", b.ID)
	}
	return nil
}

// OpenSideStores opens every side store inside dir.
func OpenSideStores(dir string, logger *zap.Logger) (database.SideStores, error) {
	people, err := OpenPeople(filepath.Join(dir, PeopleFile), logger)
	if err != nil {
		return database.SideStores{}, err
	}
	priorities, err := OpenPriorities(filepath.Join(dir, PrioritiesFile), logger)
	if err != nil {
		return database.SideStores{}, err
	}
	boxes, err := OpenManualBoxes(filepath.Join(dir, ManualBoxesFile), logger)
	if err != nil {
		return database.SideStores{}, err
	}
	status, err := OpenPhotoStatus(filepath.Join(dir, PhotoStatusFile), logger)
	if err != nil {
		return database.SideStores{}, err
	}
	return database.SideStores{People: people, Priorities: priorities, ManualBoxes: boxes, PhotoStatus: status}, nil
}
