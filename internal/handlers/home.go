package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/data-analyzer-ui/internal/models"
	"github.com/MegaGrindStone/data-analyzer-ui/internal/services"
)

type homePageData struct {
	pageData
	Accept      string
	UploadError string
}

// maxUploadMemory is how much of an upload is kept in memory; the rest is spooled to disk.
const maxUploadMemory = 32 << 20

// HandleHome renders the upload page.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	file, err := m.files.CurrentFile(r.Context(), sessionIDFromContext(r.Context()))
	if err != nil {
		m.logger.Warn("Failed to get current file", slog.String(errLoggerKey, err.Error()))
	}

	m.render(w, http.StatusOK, "home.html", homePageData{
		pageData: newPageData(r, "Home", file),
		Accept:   strings.Join(models.AcceptedExtensions, ","),
	})
}

// HandleUpload forwards the file of the "file" form field to the backend. On success the file becomes the
// session's current file and the visitor is sent to the summary view.
//
// Requests sent by the page script (HX-Request: true) get the redirect target in the HX-Redirect header,
// or the upload error partial with a 422 (rejected locally) or 502 (rejected by the backend). Plain form
// posts get a 303 redirect, or the home page with the error.
func (m Main) HandleUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		m.logger.Error("Failed to parse upload", slog.String(errLoggerKey, err.Error()))
		m.uploadError(w, r, http.StatusBadRequest, "Failed to upload file. Please try again.")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	f, header, err := r.FormFile("file")
	if err != nil {
		m.uploadError(w, r, http.StatusUnprocessableEntity, "Please select a file to upload.")
		return
	}
	defer f.Close()

	if err := models.ValidateUploadName(header.Filename); err != nil {
		msg := "Please select a file to upload."
		if errors.Is(err, models.ErrUnsupportedFileType) {
			msg = "Unsupported file type. Excel (.xlsx, .xls) or CSV files only."
		}
		m.logger.Warn("Upload rejected",
			slog.String("filename", header.Filename),
			slog.String(errLoggerKey, err.Error()))
		m.uploadError(w, r, http.StatusUnprocessableEntity, msg)
		return
	}

	if err := m.backend.Upload(r.Context(), header.Filename, f); err != nil {
		m.logger.Error("Upload failed",
			slog.String("filename", header.Filename),
			slog.String(errLoggerKey, err.Error()))
		m.uploadError(w, r, http.StatusBadGateway, services.ErrorMessage(err, "Upload failed"))
		return
	}

	if err := m.files.SetCurrentFile(r.Context(), sessionID, header.Filename); err != nil {
		m.logger.Error("Failed to set current file",
			slog.String("sessionID", sessionID),
			slog.String(errLoggerKey, err.Error()))
		m.uploadError(w, r, http.StatusInternalServerError, "Failed to upload file. Please try again.")
		return
	}

	if isHXRequest(r) {
		w.Header().Set("HX-Redirect", "/summary")
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/summary", http.StatusSeeOther)
}

func (m Main) uploadError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if isHXRequest(r) {
		m.render(w, status, "upload_error", msg)
		return
	}

	file, _ := m.files.CurrentFile(r.Context(), sessionIDFromContext(r.Context()))
	data := homePageData{
		pageData:    newPageData(r, "Home", file),
		Accept:      strings.Join(models.AcceptedExtensions, ","),
		UploadError: msg,
	}
	// The error is shown on the home page, so the navigation highlights Home.
	data.Nav = models.NavItems("/")
	m.render(w, status, "home.html", data)
}
