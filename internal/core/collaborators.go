package core

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

// Summarizer produces a short natural-language description of a member set.
// Implementations live outside this module; callers must tolerate failure.
type Summarizer interface {
	Summarize(ctx context.Context, members []Member) (string, error)
}

// summaryUnavailable is returned verbatim whenever the summarizer fails; the
// directory never blocks on the collaborator.
const summaryUnavailable = "Ringkasan tidak tersedia."

// SummarizeMembers asks the summarizer to describe the current member set,
// substituting a fixed notice when the collaborator is absent or errors.
func (s *Service) SummarizeMembers(ctx context.Context, summarizer Summarizer) string {
	if summarizer == nil {
		return summaryUnavailable
	}
	summary, err := summarizer.Summarize(ctx, s.store.ListMembers())
	if err != nil {
		s.logger.Warn("summarizer failed", "error", err)
		return summaryUnavailable
	}
	return summary
}

// MappablePoint is one sub-branch placed on a map.
type MappablePoint struct {
	BranchName    string
	SubBranchName string
	Leader        string
	Latitude      float64
	Longitude     float64
}

// MappableSubBranches filters the directory down to sub-branches carrying
// both coordinates, the only ones a map feed can place.
func MappableSubBranches(branches []Branch) []MappablePoint {
	var points []MappablePoint
	for _, b := range branches {
		for _, sb := range b.SubBranches {
			if sb.Latitude == nil || sb.Longitude == nil {
				continue
			}
			points = append(points, MappablePoint{
				BranchName:    b.Name,
				SubBranchName: sb.Name,
				Leader:        sb.Leader,
				Latitude:      *sb.Latitude,
				Longitude:     *sb.Longitude,
			})
		}
	}
	return points
}

// HashPassword derives a bcrypt hash for storage in Member.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticate resolves the member by username and compares the bcrypt hash.
// The boolean result is false for unknown usernames and wrong passwords alike.
func (s *Service) Authenticate(username, password string) (Member, bool) {
	for _, m := range s.store.ListMembers() {
		if m.Username != username {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)) != nil {
			return Member{}, false
		}
		return m, true
	}
	return Member{}, false
}
