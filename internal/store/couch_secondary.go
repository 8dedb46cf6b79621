package store

import (
	"context"
	"fmt"
	"net/http"

	"reconciler-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type couchSecondary struct {
	client *kivik.Client
	dbName string
}

// NewCouchSecondary wraps a CouchDB client as the secondary store. Documents
// are addressed as "<table>:<id>"; the record fields live directly on the
// document next to CouchDB's own metadata.
func NewCouchSecondary(client *kivik.Client, dbName string) SecondaryStore {
	return &couchSecondary{
		client: client,
		dbName: dbName,
	}
}

func docID(table, id string) string {
	return fmt.Sprintf("%s:%s", table, id)
}

func (s *couchSecondary) Get(ctx context.Context, table, id string) (domain.Record, bool, error) {
	db := s.client.DB(s.dbName)

	row := db.Get(ctx, docID(table, id))

	var doc map[string]any
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, newError("secondary", "get", table, id, err)
	}

	record := make(domain.Record, len(doc))
	for k, v := range doc {
		if k == "_id" || k == "_rev" {
			continue
		}
		record[k] = v
	}

	return record, true, nil
}

func (s *couchSecondary) Put(ctx context.Context, table, id string, record domain.Record) error {
	db := s.client.DB(s.dbName)

	doc := map[string]any{"id": id}

	var existing map[string]any
	row := db.Get(ctx, docID(table, id))
	if err := row.ScanDoc(&existing); err == nil {
		for k, v := range existing {
			if k == "_id" {
				continue
			}
			doc[k] = v
		}
	} else if kivik.HTTPStatus(err) != http.StatusNotFound {
		return newError("secondary", "put", table, id, err)
	}

	for k, v := range record {
		if k == "_id" || k == "_rev" {
			continue
		}
		// A nil value removes the field; null and absent are the same
		// logical state and keeping a literal null would leave the document
		// diverged from a store that cannot represent the field at all.
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}

	if _, err := db.Put(ctx, docID(table, id), doc); err != nil {
		return newError("secondary", "put", table, id, err)
	}

	return nil
}

func (s *couchSecondary) Delete(ctx context.Context, table, id string) error {
	db := s.client.DB(s.dbName)

	var existing map[string]any
	row := db.Get(ctx, docID(table, id))
	if err := row.ScanDoc(&existing); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil
		}
		return newError("secondary", "delete", table, id, err)
	}

	rev, _ := existing["_rev"].(string)
	if _, err := db.Delete(ctx, docID(table, id), rev); err != nil {
		return newError("secondary", "delete", table, id, err)
	}

	return nil
}
