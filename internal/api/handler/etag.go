package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
)

// GenerateETag generates an ETag for a resource based on its ID and a version timestamp.
// Format: "<resource_type>-<id>-<unix_nano>"
func GenerateETag(resourceType, id string, version time.Time) string {
	return fmt.Sprintf(`"%s-%s-%d"`, resourceType, id, version.UnixNano())
}

// CheckIfNoneMatch reports whether the If-None-Match header names etag.
// "*" matches any resource.
func CheckIfNoneMatch(r *http.Request, etag string) bool {
	header := r.Header.Get("If-None-Match")
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// respondCached sets the ETag header and answers 304 when the client already
// holds this version. It returns true when the response has been written.
func respondCached(w http.ResponseWriter, r *http.Request, etag string) bool {
	w.Header().Set("ETag", etag)
	if CheckIfNoneMatch(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

// BatchRunETag identifies a recorded batch run. Runs never change once recorded.
func BatchRunETag(run *domain.BatchRun) string {
	return GenerateETag("batch", run.ID, run.FinishedAt)
}
