package search

// Result is a single search hit over the committed version history.
type Result struct {
	VersionID   string `json:"versionId"`
	DocumentID  string `json:"documentId"`
	Branch      string `json:"branch"`
	Sequence    int    `json:"sequence"`
	Author      string `json:"author"`
	Message     string `json:"message"`
	Snippet     string `json:"snippet"`
	ContentHash string `json:"contentHash"`
}

// Query describes a search request against indexed versions.
type Query struct {
	Text             string
	FilterDocumentID string
	FilterBranch     string
	FilterAuthor     string
	Limit            int
	Offset           int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over version records.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push version records into a search index.
type Indexer interface {
	IndexVersion(record VersionRecord) error
	DeleteDocumentVersions(documentID string) error
}

// VersionRecord is the data we index for one committed version.
type VersionRecord struct {
	ID          string `json:"id"`
	DocumentID  string `json:"documentId"`
	Branch      string `json:"branch"`
	Sequence    int    `json:"sequence"`
	Author      string `json:"author"`
	Message     string `json:"message"`
	Content     string `json:"content"`
	ContentHash string `json:"contentHash"`
}
