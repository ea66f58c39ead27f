// Package bitable stores the registration collections in Feishu Bitable
// tables through the lark SDK.
package bitable

import (
	"context"
	"strings"
	"time"

	"github.com/fieldops/regsync/internal/env"
	"github.com/fieldops/regsync/internal/feishusdk"
	"github.com/fieldops/regsync/pkg/datastore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type recordClient interface {
	CreateRecord(ctx context.Context, ref feishusdk.BitableRef, fields map[string]any) (feishusdk.BitableRow, error)
	UpdateRecord(ctx context.Context, ref feishusdk.BitableRef, recordID string, fields map[string]any) error
	SearchRecords(ctx context.Context, ref feishusdk.BitableRef, opts feishusdk.SearchOptions) ([]feishusdk.BitableRow, error)
	BatchGetRows(ctx context.Context, ref feishusdk.BitableRef, recordIDs []string) ([]feishusdk.BitableRow, error)
}

// Store maps each collection to one bitable table.
type Store struct {
	client recordClient
	tables map[datastore.Collection]feishusdk.BitableRef
}

// Tables lists the table links per collection. Notifications is optional.
type Tables struct {
	Registrations string
	Agents        string
	Notifications string
}

// TablesFromEnv reads the *_BITABLE_URL variables.
func TablesFromEnv() Tables {
	return Tables{
		Registrations: env.String(env.RegistrationBitableURL, ""),
		Agents:        env.String(env.AgentBitableURL, ""),
		Notifications: env.String(env.NotificationBitableURL, ""),
	}
}

// NewFromEnv builds a store with a client configured from FEISHU_* variables.
func NewFromEnv() (*Store, error) {
	client, err := feishusdk.NewClientFromEnv()
	if err != nil {
		return nil, err
	}
	return New(client, TablesFromEnv())
}

// New parses the table links and binds them to client.
func New(client recordClient, tables Tables) (*Store, error) {
	if client == nil {
		return nil, errors.New("bitable: client is nil")
	}
	s := &Store{client: client, tables: make(map[datastore.Collection]feishusdk.BitableRef)}
	links := map[datastore.Collection]string{
		datastore.Registrations: tables.Registrations,
		datastore.Agents:        tables.Agents,
		datastore.Notifications: tables.Notifications,
	}
	for collection, raw := range links {
		if strings.TrimSpace(raw) == "" {
			if collection == datastore.Notifications {
				continue
			}
			return nil, errors.Errorf("bitable: table url for %s is not configured", collection)
		}
		ref, err := feishusdk.ParseBitableURL(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "bitable: %s table", collection)
		}
		s.tables[collection] = ref
	}
	return s, nil
}

func (s *Store) ref(collection datastore.Collection) (feishusdk.BitableRef, error) {
	ref, ok := s.tables[collection]
	if !ok {
		return ref, errors.Wrapf(datastore.ErrUnknownCollection, "bitable: %s", collection)
	}
	return ref, nil
}

// Ping issues a one-row search against the registrations table.
func (s *Store) Ping(ctx context.Context) error {
	ref, err := s.ref(datastore.Registrations)
	if err != nil {
		return err
	}
	_, err = s.client.SearchRecords(ctx, ref, feishusdk.SearchOptions{Limit: 1})
	return err
}

// Insert creates one record.
func (s *Store) Insert(ctx context.Context, collection datastore.Collection, fields map[string]any) (datastore.Record, error) {
	ref, err := s.ref(collection)
	if err != nil {
		return datastore.Record{}, err
	}
	row, err := s.client.CreateRecord(ctx, ref, encodeFields(fields))
	if err != nil {
		return datastore.Record{}, err
	}
	return datastore.Record{ID: row.RecordID, Fields: decodeFields(row.Fields)}, nil
}

// Update patches one record. A vanished record or denied write reports zero
// affected rows instead of an error.
func (s *Store) Update(ctx context.Context, collection datastore.Collection, id string, patch map[string]any) (int64, error) {
	ref, err := s.ref(collection)
	if err != nil {
		return 0, err
	}
	err = s.client.UpdateRecord(ctx, ref, id, encodeFields(patch))
	if feishusdk.HasCode(err, feishusdk.CodeRecordIDNotFound, feishusdk.CodePermissionDenied) {
		log.Warn().Err(err).Str("table_id", ref.TableID).Str("record_id", id).
			Msg("bitable update affected no rows")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return 1, nil
}

// Select fetches by id through batch get, otherwise by filtered search.
func (s *Store) Select(ctx context.Context, collection datastore.Collection, filter datastore.Filter) ([]datastore.Record, error) {
	ref, err := s.ref(collection)
	if err != nil {
		return nil, err
	}
	var rows []feishusdk.BitableRow
	if len(filter.IDs) > 0 {
		rows, err = s.client.BatchGetRows(ctx, ref, filter.IDs)
		if err != nil {
			return nil, err
		}
		rows = filterRows(rows, filter)
	} else {
		rows, err = s.client.SearchRecords(ctx, ref, feishusdk.SearchOptions{
			Filter: buildFilter(filter),
			Limit:  filter.Limit,
		})
		if err != nil {
			return nil, err
		}
	}
	out := make([]datastore.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, datastore.Record{ID: row.RecordID, Fields: decodeFields(row.Fields)})
	}
	return out, nil
}

// Count counts matching records by paging through the search results.
func (s *Store) Count(ctx context.Context, collection datastore.Collection, filter datastore.Filter) (int, error) {
	filter.Limit = 0
	recs, err := s.Select(ctx, collection, filter)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func buildFilter(filter datastore.Filter) *feishusdk.FilterInfo {
	conds := make([]*feishusdk.Condition, 0, len(filter.Equals)+len(filter.Empty))
	for field, want := range filter.Equals {
		conds = append(conds, feishusdk.NewCondition(field, "is", want))
	}
	for _, field := range filter.Empty {
		conds = append(conds, feishusdk.NewCondition(field, "isEmpty"))
	}
	if len(conds) == 0 {
		return nil
	}
	return feishusdk.NewFilterInfo("and", conds...)
}

// filterRows applies Equals/Empty/Limit locally for batch-get results.
func filterRows(rows []feishusdk.BitableRow, filter datastore.Filter) []feishusdk.BitableRow {
	out := make([]feishusdk.BitableRow, 0, len(rows))
	for _, row := range rows {
		keep := true
		for field, want := range filter.Equals {
			if feishusdk.BitableFieldString(row.Fields, field) != strings.TrimSpace(want) {
				keep = false
				break
			}
		}
		for _, field := range filter.Empty {
			if feishusdk.BitableFieldString(row.Fields, field) != "" {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// encodeFields converts values to the shapes bitable accepts: datetime
// columns take millisecond epochs.
func encodeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case time.Time:
			out[k] = val.UnixMilli()
		case *time.Time:
			if val != nil {
				out[k] = val.UnixMilli()
			}
		default:
			out[k] = v
		}
	}
	return out
}

// decodeFields flattens rich text and object cells to plain strings; numbers
// and booleans pass through.
func decodeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch v.(type) {
		case []any, map[string]any:
			out[k] = feishusdk.BitableValueToString(v)
		default:
			out[k] = v
		}
	}
	return out
}
