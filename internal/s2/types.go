package s2

// Paper represents a paper from the Semantic Scholar Graph API.
type Paper struct {
	PaperID       string         `json:"paperId"`
	ExternalIDs   ExternalIDs    `json:"externalIds,omitempty"`
	Title         string         `json:"title"`
	Abstract      string         `json:"abstract,omitempty"`
	Authors       []Author       `json:"authors,omitempty"`
	Year          int            `json:"year,omitempty"`
	Venue         string         `json:"venue,omitempty"`
	URL           string         `json:"url,omitempty"`
	IsOpenAccess  bool           `json:"isOpenAccess,omitempty"`
	OpenAccessPDF *OpenAccessPDF `json:"openAccessPdf,omitempty"`
}

// ExternalIDs contains various external identifiers for a paper.
type ExternalIDs struct {
	DOI      string `json:"DOI,omitempty"`
	CorpusID int    `json:"CorpusId,omitempty"`
}

// Author represents an author from the Semantic Scholar API.
type Author struct {
	AuthorID string `json:"authorId,omitempty"`
	Name     string `json:"name"`
}

// OpenAccessPDF points at a freely downloadable copy.
type OpenAccessPDF struct {
	URL    string `json:"url"`
	Status string `json:"status,omitempty"`
}

// SearchResponse is the response from the paper search endpoint.
type SearchResponse struct {
	Total  int     `json:"total"`
	Offset int     `json:"offset"`
	Next   int     `json:"next,omitempty"`
	Data   []Paper `json:"data"`
}
