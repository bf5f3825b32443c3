package bootstrap

import (
	"path/filepath"
	"strings"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"report-desk/internal/domain"
)

var outputFormatCatalog = []domain.FormatOption{
	{
		ID:          domain.FormatDOCX,
		Name:        "Word document",
		Extension:   ".docx",
		Description: "Editable document for Microsoft Word or LibreOffice.",
	},
	{
		ID:          domain.FormatPDF,
		Name:        "PDF",
		Extension:   ".pdf",
		Description: "Fixed layout, ready to share or print.",
	},
}

// GetOutputFormats returns the document formats the server can render.
func (a *App) GetOutputFormats() []domain.FormatOption {
	return OutputFormats()
}

// OutputFormats returns a copy of the format catalog.
func OutputFormats() []domain.FormatOption {
	formats := make([]domain.FormatOption, len(outputFormatCatalog))
	copy(formats, outputFormatCatalog)
	return formats
}

// ParseFormat maps user input onto a catalog format. Unknown values pass
// through unchanged so request validation reports them.
func ParseFormat(value string) domain.OutputFormat {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	trimmed = strings.TrimPrefix(trimmed, ".")
	for _, format := range outputFormatCatalog {
		if string(format.ID) == trimmed {
			return format.ID
		}
	}
	return domain.OutputFormat(trimmed)
}

func formatByExtension(filename string) (domain.FormatOption, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, format := range outputFormatCatalog {
		if format.Extension == ext {
			return format, true
		}
	}
	return domain.FormatOption{}, false
}

// dialogFiltersFor puts the filename's own format first in the save dialog.
func dialogFiltersFor(filename string) []wailsruntime.FileFilter {
	filters := make([]wailsruntime.FileFilter, 0, len(outputFormatCatalog)+1)
	if format, ok := formatByExtension(filename); ok {
		filters = append(filters, wailsruntime.FileFilter{
			DisplayName: format.Name + " (*" + format.Extension + ")",
			Pattern:     "*" + format.Extension,
		})
	}
	for _, format := range outputFormatCatalog {
		if len(filters) > 0 && filters[0].Pattern == "*"+format.Extension {
			continue
		}
		filters = append(filters, wailsruntime.FileFilter{
			DisplayName: format.Name + " (*" + format.Extension + ")",
			Pattern:     "*" + format.Extension,
		})
	}
	return append(filters, wailsruntime.FileFilter{DisplayName: "All files", Pattern: "*.*"})
}
