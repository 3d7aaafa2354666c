package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/service"
)

// auditAllRequest is the body of POST /api/v1/audits.
type auditAllRequest struct {
	Snapshot *domain.PatientSnapshot `json:"snapshot"`
	Domains  []string                `json:"domains"`
	AsOf     string                  `json:"as_of,omitempty"`
}

// pathwaysRequest is the body of POST /api/v1/pathways.
type pathwaysRequest struct {
	Blocker      domain.BlockerCode      `json:"blocker"`
	TherapyClass domain.TherapyClass     `json:"therapy_class"`
	Snapshot     *domain.PatientSnapshot `json:"snapshot,omitempty"`
}

// transitionResponse is the body returned for a resolution event.
type transitionResponse struct {
	Accepted bool                     `json:"accepted"`
	From     domain.ResolutionStatus  `json:"from"`
	To       domain.ResolutionStatus  `json:"to"`
	Reason   string                   `json:"reason,omitempty"`
	Record   *domain.ResolutionRecord `json:"record"`
}

// parseAsOf accepts RFC3339 timestamps and plain dates. Empty means now.
func parseAsOf(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("as_of must be RFC3339 or YYYY-MM-DD: %q", value)
	}
	return t, nil
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	checks := make(map[string]string, len(s.checks))
	status := http.StatusOK
	for name, check := range s.checks {
		if err := check(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":          state,
		"timestamp":       time.Now().UTC(),
		"uptime_seconds":  int64(time.Since(s.startedAt).Seconds()),
		"ruleset_version": s.audits.Ruleset().Version(),
		"checks":          checks,
	})
}

// handleRuleset returns the ruleset version, domains and class table.
func (s *Server) handleRuleset(c *gin.Context) {
	rs := s.audits.Ruleset()
	doc := rs.Document()
	c.JSON(http.StatusOK, gin.H{
		"version":   rs.Version(),
		"domains":   s.audits.Domains(),
		"staleness": doc.Staleness,
		"classes":   doc.Classes,
	})
}

// handleAudit audits one domain.
func (s *Server) handleAudit(c *gin.Context) {
	id, err := domain.ParseDomainID(c.Param("domain"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	asOf, err := parseAsOf(c.Query("as_of"))
	if err != nil {
		badRequest(c, "Invalid as_of", err)
		return
	}

	var snapshot domain.PatientSnapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		badRequest(c, "Invalid patient snapshot", err)
		return
	}

	result, err := s.audits.Audit(c.Request.Context(), id, &snapshot, asOf)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleAuditAll audits several domains at once.
func (s *Server) handleAuditAll(c *gin.Context) {
	var req auditAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if req.Snapshot == nil {
		badRequest(c, "snapshot is required", nil)
		return
	}
	asOf, err := parseAsOf(req.AsOf)
	if err != nil {
		badRequest(c, "Invalid as_of", err)
		return
	}

	ids := make([]domain.DomainID, 0, len(req.Domains))
	for _, d := range req.Domains {
		id, err := domain.ParseDomainID(d)
		if err != nil {
			s.writeError(c, err)
			return
		}
		ids = append(ids, id)
	}

	results, err := s.audits.AuditAll(c.Request.Context(), ids, req.Snapshot, asOf)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// handleGetAudit returns an archived audit.
func (s *Server) handleGetAudit(c *gin.Context) {
	result, err := s.audits.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleAuditHistory lists a patient's archived audits.
func (s *Server) handleAuditHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	results, err := s.audits.History(c.Request.Context(), c.Param("patient_id"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// handleScoreSummary returns average archived scores per domain.
func (s *Server) handleScoreSummary(c *gin.Context) {
	if s.summarizer == nil {
		s.writeError(c, fmt.Errorf("audit archive: %w", domain.ErrNotFound))
		return
	}
	summary, err := s.summarizer.SummarizeScores(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleActionPlan derives action items from a posted audit result.
func (s *Server) handleActionPlan(c *gin.Context) {
	var result domain.AuditResult
	if err := c.ShouldBindJSON(&result); err != nil {
		badRequest(c, "Invalid audit result", err)
		return
	}
	c.JSON(http.StatusOK, s.audits.ActionPlan(&result))
}

// handlePathways lists the resolution pathways for a blocker.
func (s *Server) handlePathways(c *gin.Context) {
	var req pathwaysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if !req.Blocker.IsValid() || !req.TherapyClass.IsValid() {
		badRequest(c, "blocker and therapy_class must be known codes", nil)
		return
	}
	c.JSON(http.StatusOK, s.resolutions.Pathways(req.Blocker, req.TherapyClass, req.Snapshot))
}

// handleStartResolution starts a resolution record.
func (s *Server) handleStartResolution(c *gin.Context) {
	var req service.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	record, err := s.resolutions.Start(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// handleListResolutions lists records filtered by patient and status.
func (s *Server) handleListResolutions(c *gin.Context) {
	filter := domain.ResolutionFilter{
		PatientID: c.Query("patient_id"),
		Status:    domain.ResolutionStatus(c.Query("status")),
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	records, err := s.resolutions.List(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// handleGetResolution returns one record.
func (s *Server) handleGetResolution(c *gin.Context) {
	record, err := s.resolutions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleDeleteResolution removes one record.
func (s *Server) handleDeleteResolution(c *gin.Context) {
	if err := s.resolutions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleResolutionEvent applies one workflow event. Rejected events answer 200 with
// accepted=false and the unchanged record.
func (s *Server) handleResolutionEvent(c *gin.Context) {
	var ev domain.ResolutionEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		badRequest(c, "Invalid event", err)
		return
	}

	res, err := s.resolutions.Advance(c.Request.Context(), c.Param("id"), ev)
	if err != nil {
		s.writeError(c, err)
		return
	}
	record := res.Record
	c.JSON(http.StatusOK, transitionResponse{
		Accepted: res.Accepted,
		From:     res.From,
		To:       res.To,
		Reason:   res.Reason,
		Record:   &record,
	})
}
