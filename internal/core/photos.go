package core

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	blobcore "silatcore/internal/blob/core"
	"silatcore/pkg/domain"
)

// WithBlobStore installs the blob backend used for member photos and export
// artifacts. Photo operations fail without one.
func WithBlobStore(store blobcore.Store) Option {
	return func(s *Service) {
		s.blobs = store
	}
}

// AttachPhoto stores the photo in the blob backend under a fresh key, points
// the member's PhotoKey at it, and removes the superseded blob. The member
// record and blob cannot be written atomically; the blob is written first so
// a failure leaves at worst an unreferenced object.
func (s *Service) AttachPhoto(ctx context.Context, memberID string, r io.Reader, contentType string) (Member, Result, error) {
	if s.blobs == nil {
		return Member{}, Result{}, fmt.Errorf("no blob store configured")
	}
	if _, ok := s.store.GetMember(memberID); !ok {
		return Member{}, Result{}, ErrNotFound{Entity: EntityMember, ID: memberID}
	}
	key := fmt.Sprintf("photos/%s/%s", memberID, uuid.NewString())
	if _, err := s.blobs.Put(ctx, key, r, blobcore.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"member": memberID},
	}); err != nil {
		return Member{}, Result{}, fmt.Errorf("store photo: %w", err)
	}

	var previous *string
	var updated Member
	res, err := s.run(ctx, "attach_photo", func() string { return memberID }, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateMember(memberID, func(m *domain.Member) error {
			previous = m.PhotoKey
			m.PhotoKey = &key
			return nil
		})
		return err
	})
	if err != nil {
		if _, delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.logger.Warn("orphaned photo blob", "key", key, "error", delErr)
		}
		return Member{}, res, err
	}
	if previous != nil && *previous != "" {
		if _, err := s.blobs.Delete(ctx, *previous); err != nil {
			s.logger.Warn("stale photo blob not removed", "key", *previous, "error", err)
		}
	}
	return updated, res, nil
}

// GetPhoto streams the member's photo. Callers own the returned ReadCloser.
func (s *Service) GetPhoto(ctx context.Context, memberID string) (blobcore.Info, io.ReadCloser, error) {
	if s.blobs == nil {
		return blobcore.Info{}, nil, fmt.Errorf("no blob store configured")
	}
	member, ok := s.store.GetMember(memberID)
	if !ok {
		return blobcore.Info{}, nil, ErrNotFound{Entity: EntityMember, ID: memberID}
	}
	if member.PhotoKey == nil || *member.PhotoKey == "" {
		return blobcore.Info{}, nil, fmt.Errorf("member %s has no photo", memberID)
	}
	return s.blobs.Get(ctx, *member.PhotoKey)
}

// RemovePhoto clears the member's photo reference and deletes the blob.
func (s *Service) RemovePhoto(ctx context.Context, memberID string) (Result, error) {
	if s.blobs == nil {
		return Result{}, fmt.Errorf("no blob store configured")
	}
	var previous *string
	res, err := s.run(ctx, "remove_photo", func() string { return memberID }, func(tx Transaction) error {
		_, err := tx.UpdateMember(memberID, func(m *domain.Member) error {
			previous = m.PhotoKey
			m.PhotoKey = nil
			return nil
		})
		return err
	})
	if err != nil {
		return res, err
	}
	if previous != nil && *previous != "" {
		if _, err := s.blobs.Delete(ctx, *previous); err != nil {
			s.logger.Warn("stale photo blob not removed", "key", *previous, "error", err)
		}
	}
	return res, nil
}
