// Package document defines the stored PDF asset and its analysis record.
package document

import (
	"fmt"
	"time"

	"github.com/matsen/firstrecord/internal/apperr"
)

// ErrAlreadyAnalyzing rejects a trigger for a document whose analysis is in
// flight.
var ErrAlreadyAnalyzing = fmt.Errorf("%w: analysis already in progress", apperr.ErrValidation)

// Asset is a validated PDF persisted under the storage root.
type Asset struct {
	ID                string    `json:"id"`
	OriginalFileName  string    `json:"originalFileName"`
	SanitizedFileName string    `json:"sanitizedFileName"`
	StoragePath       string    `json:"storagePath"`
	SizeBytes         int64     `json:"sizeBytes"`
	UploadedAt        time.Time `json:"uploadedAt"`
	SourceURL         string    `json:"sourceUrl,omitempty"`
}

// Status is an analysis lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAnalyzing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Extraction is the text pulled out of a PDF.
type Extraction struct {
	Text        string `json:"text"`
	TextLength  int    `json:"textLength"`
	TableCount  int    `json:"tableCount"`
	FigureCount int    `json:"figureCount"`
	OCRUsed     bool   `json:"ocrUsed"`
	Method      string `json:"method,omitempty"`
}

// Judgment is the LLM's verdict on whether a document reports the species
// from Korea.
type Judgment struct {
	HasKoreaRecord *bool    `json:"hasKoreaRecord"`
	Confidence     float64  `json:"confidence"`
	Locality       string   `json:"locality,omitempty"`
	CollectionDate string   `json:"collectionDate,omitempty"`
	RelevantQuotes []string `json:"relevantQuotes"`
	Reasoning      string   `json:"reasoning,omitempty"`
	Provider       string   `json:"provider,omitempty"`
	Model          string   `json:"model,omitempty"`
}

// Record tracks the analysis of one asset.
type Record struct {
	PDFID        string      `json:"pdfId"`
	Status       Status      `json:"status"`
	Extraction   *Extraction `json:"extraction,omitempty"`
	Judgment     *Judgment   `json:"judgment,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// AssetWithStatus pairs an asset with its current analysis status.
type AssetWithStatus struct {
	Asset
	Status Status `json:"status"`
}
