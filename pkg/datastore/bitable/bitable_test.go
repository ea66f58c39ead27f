package bitable

import (
	"context"
	"testing"
	"time"

	"github.com/fieldops/regsync/internal/feishusdk"
	"github.com/fieldops/regsync/pkg/datastore"
	"github.com/stretchr/testify/require"
)

type fakeRecordClient struct {
	created   []map[string]any
	updated   map[string]map[string]any
	updateErr error
	searches  []feishusdk.SearchOptions
	rows      []feishusdk.BitableRow
	gets      [][]string
}

func (f *fakeRecordClient) CreateRecord(_ context.Context, _ feishusdk.BitableRef, fields map[string]any) (feishusdk.BitableRow, error) {
	f.created = append(f.created, fields)
	return feishusdk.BitableRow{RecordID: "recNew", Fields: fields}, nil
}

func (f *fakeRecordClient) UpdateRecord(_ context.Context, _ feishusdk.BitableRef, recordID string, fields map[string]any) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updated == nil {
		f.updated = make(map[string]map[string]any)
	}
	f.updated[recordID] = fields
	return nil
}

func (f *fakeRecordClient) SearchRecords(_ context.Context, _ feishusdk.BitableRef, opts feishusdk.SearchOptions) ([]feishusdk.BitableRow, error) {
	f.searches = append(f.searches, opts)
	return f.rows, nil
}

func (f *fakeRecordClient) BatchGetRows(_ context.Context, _ feishusdk.BitableRef, ids []string) ([]feishusdk.BitableRow, error) {
	f.gets = append(f.gets, ids)
	return f.rows, nil
}

func newTestStore(t *testing.T, client *fakeRecordClient) *Store {
	t.Helper()
	store, err := New(client, Tables{
		Registrations: "https://acme.feishu.cn/base/bascnApp?table=tblReg",
		Agents:        "https://acme.feishu.cn/base/bascnApp?table=tblAgent",
	})
	require.NoError(t, err)
	return store
}

func TestNewRequiresCoreTables(t *testing.T) {
	_, err := New(&fakeRecordClient{}, Tables{Registrations: "https://acme.feishu.cn/base/x?table=t"})
	require.Error(t, err)

	store := newTestStore(t, &fakeRecordClient{})
	_, err = store.Insert(context.Background(), datastore.Notifications, map[string]any{"kind": "x"})
	require.ErrorIs(t, err, datastore.ErrUnknownCollection)
}

func TestInsertEncodesTimesAsMillis(t *testing.T) {
	client := &fakeRecordClient{}
	store := newTestStore(t, client)
	at := time.Date(2025, 3, 7, 14, 30, 0, 0, time.UTC)
	rec, err := store.Insert(context.Background(), datastore.Registrations, map[string]any{
		"first_name": "Amina",
		"created_at": at,
	})
	require.NoError(t, err)
	require.Equal(t, "recNew", rec.ID)
	require.Equal(t, at.UnixMilli(), client.created[0]["created_at"])
}

func TestUpdateMapsMissingRecordToZeroRows(t *testing.T) {
	client := &fakeRecordClient{}
	store := newTestStore(t, client)
	ctx := context.Background()

	n, err := store.Update(ctx, datastore.Registrations, "rec1", map[string]any{"forms_response_id": "r"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	client.updateErr = &feishusdk.APIError{Action: "update record", Code: feishusdk.CodeRecordIDNotFound}
	n, err = store.Update(ctx, datastore.Registrations, "rec1", map[string]any{"forms_response_id": "r"})
	require.NoError(t, err)
	require.Zero(t, n)

	client.updateErr = &feishusdk.APIError{Action: "update record", Code: 99991663, Msg: "token invalid"}
	_, err = store.Update(ctx, datastore.Registrations, "rec1", map[string]any{"forms_response_id": "r"})
	require.Error(t, err)
}

func TestSelectBuildsSearchFilterAndFlattensText(t *testing.T) {
	client := &fakeRecordClient{rows: []feishusdk.BitableRow{{
		RecordID: "rec1",
		Fields: map[string]any{
			"first_name":         []any{map[string]any{"type": "text", "text": "Amina"}},
			"forms_submitted_at": float64(1741357800000),
		},
	}}}
	store := newTestStore(t, client)

	recs, err := store.Select(context.Background(), datastore.Registrations, datastore.Filter{
		Equals: map[string]string{"agent_id": "a1"},
		Empty:  []string{"forms_response_id"},
		Limit:  5,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "Amina", recs[0].Fields["first_name"])
	require.Equal(t, float64(1741357800000), recs[0].Fields["forms_submitted_at"])

	require.Len(t, client.searches, 1)
	opts := client.searches[0]
	require.Equal(t, 5, opts.Limit)
	require.NotNil(t, opts.Filter)
	require.Len(t, opts.Filter.Conditions, 2)
}

func TestSelectByIDUsesBatchGet(t *testing.T) {
	client := &fakeRecordClient{rows: []feishusdk.BitableRow{
		{RecordID: "rec1", Fields: map[string]any{"forms_response_id": "done"}},
	}}
	store := newTestStore(t, client)
	ctx := context.Background()

	recs, err := store.Select(ctx, datastore.Registrations, datastore.Filter{IDs: []string{"rec1"}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, [][]string{{"rec1"}}, client.gets)

	recs, err = store.Select(ctx, datastore.Registrations, datastore.Filter{
		IDs:   []string{"rec1"},
		Empty: []string{"forms_response_id"},
	})
	require.NoError(t, err)
	require.Empty(t, recs)
}
