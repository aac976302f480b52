package approval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"montage/internal/assets"
	"montage/internal/generator"
	"montage/internal/logging"
	"montage/internal/services"
	"montage/internal/store"
	"montage/internal/textutil"
)

// PreviewRequest describes an image to generate.
type PreviewRequest struct {
	Prompt  string
	Service string
	Params  map[string]string
}

// Preview is a freshly generated image and its client-facing URL.
type Preview struct {
	Image *store.Image
	URL   string
}

// CleanupReport summarises a CleanupOrphans pass.
type CleanupReport struct {
	OrphanedRemoved int      `json:"orphaned_removed"`
	ValidRemaining  int      `json:"valid_remaining"`
	OrphanedDetails []string `json:"orphaned_details"`
}

// Registry coordinates generator, asset store and image records.
type Registry struct {
	store     *store.Store
	assets    assets.Store
	generator generator.Generator
	logger    *slog.Logger
	locks     *keyLocks
}

// New creates an approval registry.
func New(st *store.Store, assetStore assets.Store, gen generator.Generator, logger *slog.Logger) *Registry {
	return &Registry{
		store:     st,
		assets:    assetStore,
		generator: gen,
		logger:    logging.NewComponentLogger(logger, "approval"),
		locks:     newKeyLocks(),
	}
}

// URL returns the client-facing location of an image's file.
func (r *Registry) URL(image *store.Image) string {
	if image == nil || image.FileRef == "" {
		return ""
	}
	return r.assets.URL(image.FileRef)
}

// CreatePreview generates an image, stores it as a preview artifact and
// records it with status preview.
func (r *Registry) CreatePreview(ctx context.Context, projectID string, req PreviewRequest) (*Preview, error) {
	if !textutil.ValidID(projectID) {
		return nil, services.Wrap(services.ErrValidation, "approval", "create preview", fmt.Sprintf("invalid project id %q", projectID), nil)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, services.Wrap(services.ErrValidation, "approval", "create preview", "prompt is required", nil)
	}
	project, err := r.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "approval", "create preview", "load project", err)
	}
	if project == nil {
		return nil, services.Wrap(services.ErrNotFound, "approval", "create preview", fmt.Sprintf("project %s not found", projectID), nil)
	}
	service, err := generator.NormalizeService(req.Service)
	if err != nil {
		return nil, err
	}

	generated, err := r.generator.Generate(ctx, generator.Request{Prompt: prompt, Service: service, Params: req.Params})
	if err != nil {
		if errors.Is(err, services.ErrValidation) || errors.Is(err, services.ErrExternalService) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrExternalService, "approval", "generate", service, err)
	}

	id := uuid.NewString()
	contentType := generated.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	key := assets.PreviewKey(id, assets.ExtForContentType(contentType))
	if err := r.assets.Put(ctx, key, bytes.NewReader(generated.Data), contentType); err != nil {
		return nil, asResourceError("store preview", err)
	}

	image := &store.Image{
		ID:          id,
		ProjectID:   projectID,
		Prompt:      prompt,
		Service:     service,
		Params:      req.Params,
		Status:      store.ImagePreview,
		FileRef:     key,
		ContentType: contentType,
	}
	if err := r.store.InsertImage(ctx, image); err != nil {
		if delErr := r.assets.Delete(ctx, key); delErr != nil {
			r.logger.Warn("preview file left behind after insert failure",
				logging.String(logging.FieldImageID, id),
				logging.String("key", key),
				logging.Error(delErr),
			)
		}
		return nil, services.Wrap(services.ErrResource, "approval", "create preview", "record preview", err)
	}

	r.logger.Info("preview created",
		logging.String(logging.FieldProjectID, projectID),
		logging.String(logging.FieldImageID, id),
		logging.String("service", service),
		logging.Int("bytes", len(generated.Data)),
	)
	return &Preview{Image: image, URL: r.assets.URL(key)}, nil
}

// Approve commits a preview into permanent project storage.
func (r *Registry) Approve(ctx context.Context, id string) (*store.Image, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	image, err := r.load(ctx, id, "approve")
	if err != nil {
		return nil, err
	}
	if err := previewState(image); err != nil {
		return nil, err
	}

	src := image.FileRef
	dst := assets.ImageKey(image.ProjectID, image.ID, path.Ext(src))
	if err := r.assets.Move(ctx, src, dst); err != nil {
		return nil, asResourceError("commit image", err)
	}

	updated, err := r.store.ApproveImage(ctx, id, dst)
	if err == nil && !updated {
		err = errors.New("image left preview state during approval")
	}
	if err != nil {
		if moveErr := r.assets.Move(ctx, dst, src); moveErr != nil {
			logging.ErrorWithContext(r.logger, "failed to restore preview after approval failure", "approval_rollback_failed",
				logging.String(logging.FieldImageID, id),
				logging.String("key", dst),
				logging.Error(moveErr),
				logging.String(logging.FieldErrorHint, "run image cleanup for the project"),
			)
		}
		return nil, services.Wrap(services.ErrResource, "approval", "approve", "record approval", err)
	}

	image.Status = store.ImageApproved
	image.FileRef = dst
	now := time.Now().UTC()
	image.ResolvedAt = &now

	r.logger.Info("image approved",
		logging.String(logging.FieldProjectID, image.ProjectID),
		logging.String(logging.FieldImageID, id),
		logging.String("key", dst),
	)
	return image, nil
}

// Reject purges a preview's file and tombstones its record. Rejecting an
// already rejected image is a no-op.
func (r *Registry) Reject(ctx context.Context, id string) error {
	unlock := r.locks.lock(id)
	defer unlock()

	image, err := r.load(ctx, id, "reject")
	if err != nil {
		return err
	}
	switch image.Status {
	case store.ImageRejected:
		return nil
	case store.ImageApproved:
		return services.ErrAlreadyApproved
	}

	r.purgePreviewFile(ctx, image)
	if _, err := r.store.RejectImage(ctx, id); err != nil {
		return services.Wrap(services.ErrResource, "approval", "reject", "record rejection", err)
	}
	r.logger.Info("image rejected",
		logging.String(logging.FieldProjectID, image.ProjectID),
		logging.String(logging.FieldImageID, id),
	)
	return nil
}

// Remove deletes an approved image and its file.
func (r *Registry) Remove(ctx context.Context, id string) error {
	unlock := r.locks.lock(id)
	defer unlock()

	image, err := r.load(ctx, id, "remove")
	if err != nil {
		return err
	}
	if image.Status != store.ImageApproved {
		return services.Wrap(services.ErrValidation, "approval", "remove",
			fmt.Sprintf("image %s is %s; only approved images can be removed", id, image.Status), nil)
	}
	if image.FileRef != "" {
		if err := r.assets.Delete(ctx, image.FileRef); err != nil {
			return asResourceError("delete image file", err)
		}
	}
	if _, err := r.store.DeleteImage(ctx, id); err != nil {
		return services.Wrap(services.ErrResource, "approval", "remove", "delete record", err)
	}
	r.logger.Info("image removed",
		logging.String(logging.FieldProjectID, image.ProjectID),
		logging.String(logging.FieldImageID, id),
	)
	return nil
}

// CleanupOrphans deletes approved records of the project whose backing file
// is gone. Repeated calls converge: a second pass finds nothing new.
func (r *Registry) CleanupOrphans(ctx context.Context, projectID string) (CleanupReport, error) {
	report := CleanupReport{OrphanedDetails: []string{}}
	images, err := r.store.ListImages(ctx, projectID, store.ImageApproved)
	if err != nil {
		return report, services.Wrap(services.ErrResource, "approval", "cleanup", "list approved images", err)
	}

	for _, candidate := range images {
		removed, valid, detail, err := r.reconcile(ctx, candidate.ID)
		if err != nil {
			return report, err
		}
		if removed {
			report.OrphanedRemoved++
			report.OrphanedDetails = append(report.OrphanedDetails, detail)
		}
		if valid {
			report.ValidRemaining++
		}
	}

	if report.OrphanedRemoved > 0 {
		logging.WarnWithContext(r.logger, "orphaned image records removed", "orphans_removed",
			logging.String(logging.FieldProjectID, projectID),
			logging.Int("removed", report.OrphanedRemoved),
			logging.Int("remaining", report.ValidRemaining),
			logging.String(logging.FieldImpact, "removed images are no longer available for compositions"),
			logging.String(logging.FieldErrorHint, "regenerate and approve replacements if needed"),
		)
	}
	return report, nil
}

// reconcile checks one record under its lock. The status is re-read because
// the listing may be stale by the time the lock is acquired.
func (r *Registry) reconcile(ctx context.Context, id string) (removed, valid bool, detail string, err error) {
	unlock := r.locks.lock(id)
	defer unlock()

	image, err := r.store.GetImage(ctx, id)
	if err != nil {
		return false, false, "", services.Wrap(services.ErrResource, "approval", "cleanup", "reload image", err)
	}
	if image == nil || image.Status != store.ImageApproved {
		return false, false, "", nil
	}

	exists := false
	if image.FileRef != "" {
		exists, err = r.assets.Exists(ctx, image.FileRef)
		if err != nil {
			return false, false, "", asResourceError("check image file", err)
		}
	}
	if exists {
		return false, true, "", nil
	}

	if _, err := r.store.DeleteImage(ctx, id); err != nil {
		return false, false, "", services.Wrap(services.ErrResource, "approval", "cleanup", "delete orphan", err)
	}
	detail = fmt.Sprintf("%s: %q (missing %s)", image.ID, truncate(image.Prompt, 60), image.FileRef)
	return true, false, detail, nil
}

// ExpirePreviews rejects previews older than ttl and returns how many were
// expired.
func (r *Registry) ExpirePreviews(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	stale, err := r.store.ListPreviewsBefore(ctx, cutoff)
	if err != nil {
		return 0, services.Wrap(services.ErrResource, "approval", "expire previews", "list previews", err)
	}
	expired := 0
	for _, candidate := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		ok, err := r.expireOne(ctx, candidate.ID)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		r.logger.Info("expired stale previews", logging.Int("count", expired), logging.Duration("ttl", ttl))
	}
	return expired, nil
}

func (r *Registry) expireOne(ctx context.Context, id string) (bool, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	image, err := r.store.GetImage(ctx, id)
	if err != nil {
		return false, services.Wrap(services.ErrResource, "approval", "expire previews", "reload image", err)
	}
	if image == nil || image.Status != store.ImagePreview {
		return false, nil
	}
	r.purgePreviewFile(ctx, image)
	ok, err := r.store.RejectImage(ctx, id)
	if err != nil {
		return false, services.Wrap(services.ErrResource, "approval", "expire previews", "record rejection", err)
	}
	return ok, nil
}

// Get returns an image record or ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*store.Image, error) {
	return r.load(ctx, id, "get")
}

// List returns the project's images, optionally filtered by status.
func (r *Registry) List(ctx context.Context, projectID string, statuses ...store.ImageStatus) ([]*store.Image, error) {
	images, err := r.store.ListImages(ctx, projectID, statuses...)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "approval", "list", projectID, err)
	}
	return images, nil
}

func (r *Registry) load(ctx context.Context, id, op string) (*store.Image, error) {
	image, err := r.store.GetImage(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "approval", op, "load image", err)
	}
	if image == nil {
		return nil, services.Wrap(services.ErrNotFound, "approval", op, fmt.Sprintf("image %s", id), nil)
	}
	return image, nil
}

// purgePreviewFile deletes the preview artifact. Failures are logged only.
func (r *Registry) purgePreviewFile(ctx context.Context, image *store.Image) {
	if image.FileRef == "" {
		return
	}
	if err := r.assets.Delete(ctx, image.FileRef); err != nil {
		logging.WarnWithContext(r.logger, "failed to delete preview file", "preview_delete_failed",
			logging.String(logging.FieldImageID, image.ID),
			logging.String("key", image.FileRef),
			logging.Error(err),
			logging.String(logging.FieldImpact, "preview file remains in storage"),
			logging.String(logging.FieldErrorHint, "remove the file manually or wait for the next sweep"),
		)
	}
}

func previewState(image *store.Image) error {
	switch image.Status {
	case store.ImageApproved:
		return services.ErrAlreadyApproved
	case store.ImageRejected:
		return services.ErrAlreadyRejected
	}
	return nil
}

func asResourceError(op string, err error) error {
	if errors.Is(err, services.ErrNotFound) {
		return services.Wrap(services.ErrResource, "approval", op, "file missing from asset store", nil)
	}
	if errors.Is(err, services.ErrResource) || errors.Is(err, services.ErrValidation) {
		return err
	}
	return services.Wrap(services.ErrResource, "approval", op, "", err)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "…"
}
