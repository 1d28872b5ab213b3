package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Baseline catalogs used when the store is empty and no remote seed is
// reachable. Ordering is meaningful and preserved by SavePositions /
// SaveRankLevels.
var (
	baselinePositions = []string{
		"Ketua",
		"Wakil Ketua",
		"Sekretaris",
		"Bendahara",
		"Pelatih",
		"Anggota",
	}

	baselineRankLevels = []RankLevel{
		{Name: "Polos", Color: "Hitam", Predicate: "Siswa Polos"},
		{Name: "Jambon", Color: "Merah Muda", Predicate: "Siswa Jambon"},
		{Name: "Hijau", Color: "Hijau", Predicate: "Siswa Hijau"},
		{Name: "Putih Kecil", Color: "Putih", Predicate: "Siswa Putih"},
		{Name: "Putih", Color: "Putih", Predicate: "Warga Tingkat I"},
	}
)

// seedPayload is the document shape served by a remote seed endpoint.
type seedPayload struct {
	Positions  []string    `json:"positions"`
	RankLevels []RankLevel `json:"rank_levels"`
}

var seedHTTPClient = &http.Client{Timeout: 10 * time.Second}

// EnsureSeeded initializes empty catalogs. Resolution is two-tier: an already
// populated catalog is left alone; otherwise the remote seed URL is consulted
// when configured, and the hardcoded baseline fills whatever remains. Remote
// failures are swallowed with a warning so startup never depends on the
// network.
func (s *Service) EnsureSeeded(ctx context.Context) (Result, error) {
	positions := s.store.ListPositions()
	levels := s.store.ListRankLevels()
	if len(positions) > 0 && len(levels) > 0 {
		return Result{}, nil
	}

	seedPositions := baselinePositions
	seedLevels := baselineRankLevels
	if s.seedURL != "" {
		if remote, err := fetchSeed(ctx, s.seedURL); err != nil {
			s.logger.Warn("remote seed unavailable, using baseline", "url", s.seedURL, "error", err)
		} else {
			if len(remote.Positions) > 0 {
				seedPositions = remote.Positions
			}
			if len(remote.RankLevels) > 0 {
				seedLevels = remote.RankLevels
			}
		}
	}

	return s.run(ctx, "ensure_seeded", nil, func(tx Transaction) error {
		if len(positions) == 0 {
			if err := tx.SavePositions(seedPositions); err != nil {
				return err
			}
		}
		if len(levels) == 0 {
			if err := tx.SaveRankLevels(seedLevels); err != nil {
				return err
			}
		}
		return nil
	})
}

func fetchSeed(ctx context.Context, url string) (seedPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return seedPayload{}, fmt.Errorf("build seed request: %w", err)
	}
	resp, err := seedHTTPClient.Do(req)
	if err != nil {
		return seedPayload{}, fmt.Errorf("fetch seed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return seedPayload{}, fmt.Errorf("fetch seed: unexpected status %d", resp.StatusCode)
	}
	var payload seedPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return seedPayload{}, fmt.Errorf("decode seed: %w", err)
	}
	return payload, nil
}
