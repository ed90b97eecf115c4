package services

import (
	"context"

	"github.com/sarbazinfo/sarbaz-server/internal/filex"
	"github.com/sarbazinfo/sarbaz-server/internal/logging"
)

// AppInfoService serves the static app version document (minimum supported
// client version, store links, update messages). The document is optional:
// when it cannot be loaded the endpoint answers not-found while the rest of
// the server runs normally.
type AppInfoService struct {
	doc map[string]any
}

func NewAppInfoService(ctx context.Context, path string, logger logging.Logger) *AppInfoService {
	s := &AppInfoService{}
	if path == "" {
		return s
	}
	var doc map[string]any
	if err := filex.LoadJSON(path, &doc); err != nil {
		logger.Warn(ctx, "app info document not loaded", "path", path, "error", err)
		return s
	}
	s.doc = doc
	return s
}

// Current returns the loaded document; ok is false when none was loaded.
func (s *AppInfoService) Current() (map[string]any, bool) {
	if s.doc == nil {
		return nil, false
	}
	return s.doc, true
}
