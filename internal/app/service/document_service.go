package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kvasserman/fadelink/internal/app/model"
	"github.com/kvasserman/fadelink/internal/app/repository"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

var (
	// ErrNotPDF signals that the uploaded bytes do not parse as a PDF.
	ErrNotPDF = errors.New("only PDF files are accepted")
	// ErrStorageQuota signals that the upload would exceed the plan quota.
	ErrStorageQuota = errors.New("storage limit exceeded")
)

// ObjectStore is the byte-level storage collaborator. Keys are opaque;
// the metadata row owns the mapping.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// DocumentService covers upload, listing, streaming and deletion of PDFs.
// Deleting a document revokes every still-active link pointing at it.
type DocumentService interface {
	Upload(ctx context.Context, ownerID, filename string, data []byte) (*model.Document, error)
	Get(ctx context.Context, ownerID, id string) (*model.Document, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]model.Document, error)
	Delete(ctx context.Context, ownerID, id string) error
	// Open streams the raw bytes; callers are expected to hold a favorable
	// access verdict before asking for them.
	Open(ctx context.Context, id string) (io.ReadCloser, *model.Document, error)
}

type documentService struct {
	logger  *zap.Logger
	docs    repository.DocumentStore
	links   repository.LinkStore
	users   repository.UserStore
	objects ObjectStore
}

// DocumentDeps groups the dependencies of the document service.
type DocumentDeps struct {
	Logger  *zap.Logger
	Docs    repository.DocumentStore
	Links   repository.LinkStore
	Users   repository.UserStore
	Objects ObjectStore
}

// NewDocumentService returns a DocumentService.
func NewDocumentService(deps DocumentDeps) DocumentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &documentService{
		logger:  logger,
		docs:    deps.Docs,
		links:   deps.Links,
		users:   deps.Users,
		objects: deps.Objects,
	}
}

func (s *documentService) Upload(ctx context.Context, ownerID, filename string, data []byte) (*model.Document, error) {
	owner, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	if !owner.SubscriptionIsActive() {
		return nil, ErrSubscriptionRequired
	}

	size := int64(len(data))
	if owner.StorageUsed+size > owner.Plan.StorageLimitBytes() {
		return nil, ErrStorageQuota
	}

	pages, err := validatePDF(data)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		ID:        newID("doc"),
		OwnerID:   ownerID,
		Filename:  filename,
		ObjectKey: fmt.Sprintf("%s/%s.pdf", ownerID, newID("obj")),
		SizeBytes: size,
		PageCount: pages,
	}

	if err := s.objects.Put(ctx, doc.ObjectKey, bytes.NewReader(data), size); err != nil {
		return nil, fmt.Errorf("store object: %w", err)
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		// Best effort: do not leave orphaned bytes behind.
		if rmErr := s.objects.Remove(ctx, doc.ObjectKey); rmErr != nil {
			s.logger.Warn("failed to clean up object after create failure",
				zap.String("object_key", doc.ObjectKey), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("create document: %w", err)
	}
	if err := s.users.AddStorageUsed(ctx, ownerID, size); err != nil {
		s.logger.Warn("failed to bump storage counter",
			zap.String("owner_id", ownerID), zap.Error(err))
	}

	s.logger.Info("document uploaded",
		zap.String("document_id", doc.ID),
		zap.String("owner_id", ownerID),
		zap.Int64("size_bytes", size),
		zap.Int("pages", pages))
	return doc, nil
}

// validatePDF parses the upload and returns the page count. Anything that
// does not parse is rejected outright.
func validatePDF(data []byte) (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	pages := reader.NumPage()
	if pages < 1 {
		return 0, ErrNotPDF
	}
	return pages, nil
}

func (s *documentService) Get(ctx context.Context, ownerID, id string) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, repository.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *documentService) List(ctx context.Context, ownerID string, limit, offset int) ([]model.Document, error) {
	docs, err := s.docs.ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (s *documentService) Delete(ctx context.Context, ownerID, id string) error {
	doc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}

	// Links cannot outlive their document: cascade the revoke first, so a
	// viewer racing the delete sees revoked rather than a broken stream.
	revoked, err := s.links.RevokeByDocument(ctx, doc.ID, time.Now())
	if err != nil {
		return fmt.Errorf("revoke links of document: %w", err)
	}

	if err := s.docs.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := s.objects.Remove(ctx, doc.ObjectKey); err != nil {
		s.logger.Warn("failed to remove object",
			zap.String("object_key", doc.ObjectKey), zap.Error(err))
	}
	if err := s.users.AddStorageUsed(ctx, ownerID, -doc.SizeBytes); err != nil {
		s.logger.Warn("failed to release storage counter",
			zap.String("owner_id", ownerID), zap.Error(err))
	}

	s.logger.Info("document deleted",
		zap.String("document_id", doc.ID),
		zap.Int64("links_revoked", revoked))
	return nil
}

func (s *documentService) Open(ctx context.Context, id string) (io.ReadCloser, *model.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.objects.Get(ctx, doc.ObjectKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open object: %w", err)
	}
	return rc, doc, nil
}
