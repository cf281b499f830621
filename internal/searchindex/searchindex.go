// Package searchindex implements the optional, best-effort Elasticsearch
// sink for processed term snapshots (spec.md §2 "Search index sink"),
// grounded on the teacher's internal/downloader.Storage.IndexToElasticsearch
// for the esClient.Index(...) call shape, reimplemented against this
// module's TermSnapshot/ClassRecord documents instead of repository
// metadata.
package searchindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/rs/zerolog"

	"github.com/Project-CARPI/sis-scraper/internal/model"
)

const indexName = "sis-harvester-sections"

// Indexer pushes one document per section into Elasticsearch. Every method
// is best-effort: errors are logged, never propagated to the scrape's
// success/failure decision (spec.md §9 "optional sinks never gate
// correctness").
type Indexer struct {
	client *elasticsearch.Client
	log    zerolog.Logger
}

// New connects to the Elasticsearch cluster at url.
func New(url string, log zerolog.Logger) (*Indexer, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Indexer{client: client, log: log}, nil
}

// sectionDocument is the flattened, per-section document indexed for each
// ClassRecord: a search index over sections reads more naturally than one
// over nested course trees.
type sectionDocument struct {
	Term          string             `json:"term"`
	SubjectCode   string             `json:"subject_code"`
	SubjectName   string             `json:"subject_name"`
	CourseNumber  string             `json:"course_number"`
	model.ClassRecord
}

// IndexSnapshot indexes every section of every course in snapshot under
// term. Failures for individual documents are logged and skipped; the
// overall call never returns an error for a partial failure.
func (idx *Indexer) IndexSnapshot(ctx context.Context, term string, snapshot model.TermSnapshot) {
	for subjectCode, subject := range snapshot {
		for courseNumber, records := range subject.Courses {
			for _, record := range records {
				doc := sectionDocument{
					Term:         term,
					SubjectCode:  subjectCode,
					SubjectName:  subject.SubjectName,
					CourseNumber: courseNumber,
					ClassRecord:  record,
				}
				if err := idx.indexOne(ctx, doc); err != nil {
					idx.log.Warn().Err(err).Str("term", term).Str("crn", record.CRN).
						Msg("failed to index section")
				}
			}
		}
	}
}

func (idx *Indexer) indexOne(ctx context.Context, doc sectionDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	docID := fmt.Sprintf("%s-%s", doc.Term, doc.CRN)
	resp, err := idx.client.Index(
		indexName,
		strings.NewReader(string(data)),
		idx.client.Index.WithDocumentID(docID),
		idx.client.Index.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return fmt.Errorf("elasticsearch index error: %s", resp.String())
	}
	return nil
}
