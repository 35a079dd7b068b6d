// Package domain contains core models shared by the pipeline, storage and query layers.
package domain

// Article is the canonical persisted unit, unique by URL.
type Article struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
	Date    string `json:"date"`
}

// ExtractedContent is the intermediate, pre-clean result of a page fetch.
type ExtractedContent struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
	Date    string `json:"date"`
}

// Envelope is the decoded shape of an inbound stream payload.
// Only value.url is read; everything else is ignored.
type Envelope struct {
	Value struct {
		URL string `json:"url"`
	} `json:"value"`
}

// Origin identifies the stream delivery an article was ingested from.
type Origin struct {
	Source    string `json:"source,omitempty"`
	Partition string `json:"partition,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// ArticleSource is the citation shape returned by the query endpoint.
type ArticleSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Date  string `json:"date"`
}

// Answer is the query endpoint response.
type Answer struct {
	Answer  string          `json:"answer"`
	Sources []ArticleSource `json:"sources"`
}

// Source returns the citation view of the article.
func (a Article) Source() ArticleSource {
	return ArticleSource{Title: a.Title, URL: a.URL, Date: a.Date}
}
