package provision

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/validation"
)

// TagSet returns the tags for r in attach order: env, datazone, backup,
// offsite backup, baseline, then extras. Repeated names are kept once.
func TagSet(r *Record, baseline []string) []string {
	names := []string{r.Env.Name, r.Datazone.Name, r.Backup.Name}
	if r.BackupOffsite != nil {
		names = append(names, r.BackupOffsite.Name)
	}
	names = append(names, baseline...)
	names = append(names, r.ExtraTags...)

	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// TagStore is the catalog capability used to get-or-create tags.
type TagStore interface {
	GetTagByKey(ctx context.Context, key string) (*domain.Tag, error)
	CreateTag(ctx context.Context, tag *domain.Tag) error
}

// EnsureTags creates every tag in names that the catalog does not have yet.
func EnsureTags(ctx context.Context, tags TagStore, names []string) error {
	for _, name := range names {
		_, err := tags.GetTagByKey(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		tag := &domain.Tag{
			ID:        uuid.New().String(),
			Name:      name,
			Slug:      validation.Slugify(name),
			CreatedAt: time.Now(),
		}
		if err := tags.CreateTag(ctx, tag); err != nil {
			return domain.Persist("create", "tag "+name, err)
		}
	}
	return nil
}
