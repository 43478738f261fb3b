package handlers

import (
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/data-analyzer-ui/internal/models"
)

type visualizationsPageData struct {
	pageData
	Tabs      []models.Tab
	ActiveTab models.Tab
	Charts    models.ChartGroups
}

const visualizationsDownloadName = "data_plots.json"

// HandleVisualizations renders the charts of the current file. The "tab" query parameter selects the
// distribution, correlation or time-series tab; unknown values fall back to distribution.
func (m Main) HandleVisualizations(w http.ResponseWriter, r *http.Request) {
	file, ok := m.currentFile(w, r)
	if !ok {
		return
	}

	v, err := m.backend.Visualizations(r.Context())
	if err != nil {
		m.logger.Error("Failed to generate visualizations",
			slog.String("file", file),
			slog.String(errLoggerKey, err.Error()))
		m.renderError(w, r, http.StatusBadGateway, "Visualizations",
			"Error generating visualizations. Please try again.", file)
		return
	}
	m.results.put(visualizationsResult, sessionIDFromContext(r.Context()), file, v.Raw)

	m.render(w, http.StatusOK, "visualizations.html", visualizationsPageData{
		pageData:  newPageData(r, "Visualizations", file),
		Tabs:      models.Tabs,
		ActiveTab: models.ParseTab(r.URL.Query().Get("tab")),
		Charts:    v.Group(),
	})
}

// HandleVisualizationsDownload sends the charts shown last as data_plots.json.
func (m Main) HandleVisualizationsDownload(w http.ResponseWriter, r *http.Request) {
	file, ok := m.currentFile(w, r)
	if !ok {
		return
	}

	sessionID := sessionIDFromContext(r.Context())
	raw, ok := m.results.get(visualizationsResult, sessionID, file)
	if !ok {
		v, err := m.backend.Visualizations(r.Context())
		if err != nil {
			m.logger.Error("Failed to generate visualizations",
				slog.String("file", file),
				slog.String(errLoggerKey, err.Error()))
			m.renderError(w, r, http.StatusBadGateway, "Visualizations",
				"Error generating visualizations. Please try again.", file)
			return
		}
		raw = v.Raw
		m.results.put(visualizationsResult, sessionID, file, raw)
	}

	m.writeJSONAttachment(w, visualizationsDownloadName, raw)
}
