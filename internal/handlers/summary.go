package handlers

import (
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/data-analyzer-ui/internal/models"
)

type summaryPageData struct {
	pageData
	Summary models.Summary
	Records string
}

const summaryDownloadName = "data_summary.json"

// HandleSummary renders the summary of the current file.
func (m Main) HandleSummary(w http.ResponseWriter, r *http.Request) {
	file, ok := m.currentFile(w, r)
	if !ok {
		return
	}

	s, err := m.backend.Summary(r.Context())
	if err != nil {
		m.logger.Error("Failed to generate summary",
			slog.String("file", file),
			slog.String(errLoggerKey, err.Error()))
		m.renderError(w, r, http.StatusBadGateway, "Summary", "Error generating summary. Please try again.", file)
		return
	}
	m.results.put(summaryResult, sessionIDFromContext(r.Context()), file, s.Raw)

	m.render(w, http.StatusOK, "summary.html", summaryPageData{
		pageData: newPageData(r, "Summary", file),
		Summary:  s,
		Records:  s.Records(),
	})
}

// HandleSummaryDownload sends the summary shown last as data_summary.json. Without a shown summary it is
// fetched from the backend first.
func (m Main) HandleSummaryDownload(w http.ResponseWriter, r *http.Request) {
	file, ok := m.currentFile(w, r)
	if !ok {
		return
	}

	sessionID := sessionIDFromContext(r.Context())
	raw, ok := m.results.get(summaryResult, sessionID, file)
	if !ok {
		s, err := m.backend.Summary(r.Context())
		if err != nil {
			m.logger.Error("Failed to generate summary",
				slog.String("file", file),
				slog.String(errLoggerKey, err.Error()))
			m.renderError(w, r, http.StatusBadGateway, "Summary", "Error generating summary. Please try again.", file)
			return
		}
		raw = s.Raw
		m.results.put(summaryResult, sessionID, file, raw)
	}

	m.writeJSONAttachment(w, summaryDownloadName, raw)
}
