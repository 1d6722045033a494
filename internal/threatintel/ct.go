package threatintel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/mikey/llm-phish-detector/internal/core"
)

// crtshEntry is one row of crt.sh's JSON output
type crtshEntry struct {
	ID         int64  `json:"id"`
	IssuerName string `json:"issuer_name"`
	NameValue  string `json:"name_value"`
	NotBefore  string `json:"not_before"`
	NotAfter   string `json:"not_after"`
}

const maxCTBody = 8 << 20

func (s *Service) fetchCT(ctx context.Context, domain string) ([]core.CTEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CTTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("q", domain)
	q.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.CTBaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var rows []crtshEntry
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCTBody)).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// Newest first. not_before is ISO 8601, so it orders lexically; the crt.sh id breaks ties.
	slices.SortStableFunc(rows, func(a, b crtshEntry) int {
		if c := strings.Compare(b.NotBefore, a.NotBefore); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})

	if len(rows) > s.cfg.CTLimit {
		rows = rows[:s.cfg.CTLimit]
	}
	entries := make([]core.CTEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, core.CTEntry{
			Issuer:    r.IssuerName,
			NameValue: r.NameValue,
			NotBefore: r.NotBefore,
			NotAfter:  r.NotAfter,
		})
	}
	return entries, nil
}
