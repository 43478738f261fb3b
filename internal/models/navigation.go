package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// NavItem is an entry of the navigation bar.
type NavItem struct {
	Name   string
	Href   string
	Active bool
}

var navItems = []NavItem{
	{Name: "Home", Href: "/"},
	{Name: "Summary", Href: "/summary"},
	{Name: "Visualizations", Href: "/visualizations"},
	{Name: "Chat", Href: "/chat"},
}

// NavItems returns the navigation bar for a page served at path, with the matching entry marked active.
func NavItems(path string) []NavItem {
	items := slices.Clone(navItems)
	for i := range items {
		items[i].Active = items[i].Href == path
	}
	return items
}

// Navigation is the decision a view makes at entry: render, or send the visitor elsewhere.
type Navigation struct {
	Redirect string
}

// Proceed reports whether the view should render.
func (n Navigation) Proceed() bool {
	return n.Redirect == ""
}

// RequireCurrentFile is the entry guard of every view that works on the uploaded file. Without a current
// file the visitor is sent to the upload page.
func RequireCurrentFile(currentFile string) Navigation {
	if strings.TrimSpace(currentFile) == "" {
		return Navigation{Redirect: "/"}
	}
	return Navigation{}
}

// AcceptedExtensions lists the file extensions the upload gateway accepts.
var AcceptedExtensions = []string{".xlsx", ".xls", ".csv"}

// ErrUnsupportedFileType is returned for uploads whose extension is not accepted.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// ValidateUploadName checks the name of a file about to be uploaded.
func ValidateUploadName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("no file selected")
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !slices.Contains(AcceptedExtensions, ext) {
		return fmt.Errorf("%w: %q, expected Excel (.xlsx, .xls) or CSV", ErrUnsupportedFileType, ext)
	}
	return nil
}
