// Package cache stores recent audit results. Audits are deterministic for a given snapshot,
// domain, reference date and ruleset version, so the key fingerprints exactly those inputs.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gdmt-audit-server/internal/domain"
)

const keyPrefix = "gdmt:audit:"

// Key returns the cache key for an audit request.
func Key(id domain.DomainID, p *domain.PatientSnapshot, asOf time.Time, rulesetVersion string) (string, error) {
	payload, err := json.Marshal(struct {
		Domain   domain.DomainID         `json:"domain"`
		Snapshot *domain.PatientSnapshot `json:"snapshot"`
		AsOf     string                  `json:"as_of"`
		Version  string                  `json:"version"`
	}{id, p, asOf.UTC().Format("2006-01-02"), rulesetVersion})
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint snapshot: %w", err)
	}
	sum := sha256.Sum256(payload)
	return keyPrefix + hex.EncodeToString(sum[:]), nil
}

// cachedAudit is the stored form of an audit with its expiry.
type cachedAudit struct {
	Data      *domain.AuditResult `json:"data"`
	CachedAt  time.Time           `json:"cached_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

func (c cachedAudit) expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
