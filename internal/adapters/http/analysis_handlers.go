package httpadapter

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/export/xlsx"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	exportPageSize  = 100
	exportMaxRows   = 5000
)

func (rt *Router) streamAnalysis(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stream, err := newSSEWriter(w)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rt.deps.Metrics.StreamStarted("analysis")()

	err = rt.deps.Analyzer.Run(r.Context(), domain.AnalysisInput{
		UserID:   principal(r).UserID,
		Model:    r.FormValue("model"),
		Document: doc,
	}, func(event domain.AnalysisEvent) error {
		return stream.Send(string(event.Type), event.Payload)
	})
	if err != nil && !stream.Started() {
		writeError(w, r, err)
	}
}

func (rt *Router) submitAnalysisJob(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, err := rt.deps.Jobs.Submit(r.Context(), principal(r).UserID, r.FormValue("model"), doc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) getAnalysisJob(w http.ResponseWriter, r *http.Request) {
	job, err := rt.deps.Jobs.Get(r.Context(), principal(r).UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) listAnalyses(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit == 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	records, err := rt.deps.History.ListByUser(r.Context(), principal(r).UserID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.AnalysisRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": records,
		"limit":    limit,
		"offset":   offset,
	})
}

func (rt *Router) getAnalysis(w http.ResponseWriter, r *http.Request) {
	record, err := rt.deps.History.Get(r.Context(), principal(r).UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) exportAnalyses(w http.ResponseWriter, r *http.Request) {
	userID := principal(r).UserID
	var records []domain.AnalysisRecord
	for offset := 0; offset < exportMaxRows; offset += exportPageSize {
		page, err := rt.deps.History.ListByUser(r.Context(), userID, exportPageSize, offset)
		if err != nil {
			writeError(w, r, err)
			return
		}
		records = append(records, page...)
		if len(page) < exportPageSize {
			break
		}
	}

	var buf bytes.Buffer
	if err := rt.deps.Exporter.Write(&buf, records); err != nil {
		writeError(w, r, err)
		return
	}

	filename := fmt.Sprintf("analyses-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (rt *Router) listCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": rt.deps.Catalog.All()})
}

func (rt *Router) categoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.deps.History.CategoryStats(r.Context(), principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for i := range stats {
		if strings.TrimSpace(stats[i].Name) == "" {
			stats[i].Name = rt.deps.Catalog.Descriptor(stats[i].Category).Name
		}
	}
	if stats == nil {
		stats = []domain.CategoryStat{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}
