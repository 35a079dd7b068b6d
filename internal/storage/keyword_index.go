package storage

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
)

const titleBoost = 3.0

// keywordIndex wraps a bleve index over article title and content, keyed by URL.
type keywordIndex struct {
	index bleve.Index
}

type indexedArticle struct {
	Title   string
	Content string
}

// openKeywordIndex opens or creates the index at path. An empty path keeps it in memory.
func openKeywordIndex(path string) (*keywordIndex, error) {
	if strings.TrimSpace(path) == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
		return &keywordIndex{index: idx}, nil
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &keywordIndex{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = "en"
	contentFieldMapping := bleve.NewTextFieldMapping()
	contentFieldMapping.Analyzer = "en"

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("Title", titleFieldMapping)
	docMapping.AddFieldMappingsAt("Content", contentFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

func (i *keywordIndex) add(article domain.Article) error {
	return i.index.Index(article.URL, indexedArticle{Title: article.Title, Content: article.Content})
}

func (i *keywordIndex) addBatch(articles []domain.Article) error {
	batch := i.index.NewBatch()
	for _, a := range articles {
		if err := batch.Index(a.URL, indexedArticle{Title: a.Title, Content: a.Content}); err != nil {
			return fmt.Errorf("batch index %s: %w", a.URL, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// search returns matching URLs, best first. Title matches weigh more than content matches.
func (i *keywordIndex) search(keywords string, limit int) ([]string, error) {
	title := bleve.NewMatchQuery(keywords)
	title.SetField("Title")
	title.SetBoost(titleBoost)
	content := bleve.NewMatchQuery(keywords)
	content.SetField("Content")

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(title, content), limit, 0, false)
	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	urls := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		urls = append(urls, hit.ID)
	}
	return urls, nil
}

func (i *keywordIndex) count() (uint64, error) {
	return i.index.DocCount()
}

func (i *keywordIndex) close() error {
	return i.index.Close()
}
