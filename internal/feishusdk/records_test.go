package feishusdk

import (
	"context"
	"net/http"
	"testing"
	"time"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
)

type fakeSearchCall struct {
	AppToken  string
	TableID   string
	PageSize  int
	PageToken string
	Body      *larkbitable.SearchAppTableRecordReqBody
}

type fakeUpdateCall struct {
	RecordID string
	Record   *larkbitable.AppTableRecord
}

type fakeBitableAPI struct {
	searchCalls []fakeSearchCall
	createCalls []*larkbitable.AppTableRecord
	updateCalls []fakeUpdateCall
	getCalls    [][]string

	searchFn   func(call fakeSearchCall) (*larkbitable.SearchAppTableRecordResp, error)
	updateFn   func(call fakeUpdateCall) (*larkbitable.UpdateAppTableRecordResp, error)
	batchGetFn func(ids []string) (*larkbitable.BatchGetAppTableRecordResp, error)
}

func (f *fakeBitableAPI) Search(_ context.Context, appToken, tableID string, pageSize int, pageToken string, body *larkbitable.SearchAppTableRecordReqBody, _ ...larkcore.RequestOptionFunc) (*larkbitable.SearchAppTableRecordResp, error) {
	call := fakeSearchCall{AppToken: appToken, TableID: tableID, PageSize: pageSize, PageToken: pageToken, Body: body}
	f.searchCalls = append(f.searchCalls, call)
	if f.searchFn != nil {
		return f.searchFn(call)
	}
	return okSearchResp(nil, false, ""), nil
}

func (f *fakeBitableAPI) Create(_ context.Context, _, _ string, record *larkbitable.AppTableRecord, _ ...larkcore.RequestOptionFunc) (*larkbitable.CreateAppTableRecordResp, error) {
	f.createCalls = append(f.createCalls, record)
	return &larkbitable.CreateAppTableRecordResp{
		ApiResp:   okAPIResp(),
		CodeError: larkcore.CodeError{Code: 0, Msg: "success"},
		Data: &larkbitable.CreateAppTableRecordRespData{
			Record: &larkbitable.AppTableRecord{RecordId: larkcore.StringPtr("recNew"), Fields: record.Fields},
		},
	}, nil
}

func (f *fakeBitableAPI) Update(_ context.Context, _, _, recordID string, record *larkbitable.AppTableRecord, _ ...larkcore.RequestOptionFunc) (*larkbitable.UpdateAppTableRecordResp, error) {
	call := fakeUpdateCall{RecordID: recordID, Record: record}
	f.updateCalls = append(f.updateCalls, call)
	if f.updateFn != nil {
		return f.updateFn(call)
	}
	return &larkbitable.UpdateAppTableRecordResp{
		ApiResp:   okAPIResp(),
		CodeError: larkcore.CodeError{Code: 0, Msg: "success"},
		Data:      &larkbitable.UpdateAppTableRecordRespData{Record: record},
	}, nil
}

func (f *fakeBitableAPI) BatchGet(_ context.Context, _, _ string, body *larkbitable.BatchGetAppTableRecordReqBody, _ ...larkcore.RequestOptionFunc) (*larkbitable.BatchGetAppTableRecordResp, error) {
	f.getCalls = append(f.getCalls, body.RecordIds)
	if f.batchGetFn != nil {
		return f.batchGetFn(body.RecordIds)
	}
	return &larkbitable.BatchGetAppTableRecordResp{
		ApiResp:   okAPIResp(),
		CodeError: larkcore.CodeError{Code: 0, Msg: "success"},
		Data:      &larkbitable.BatchGetAppTableRecordRespData{},
	}, nil
}

func okAPIResp() *larkcore.ApiResp {
	return &larkcore.ApiResp{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		RawBody:    []byte(`{"code":0,"msg":"success"}`),
	}
}

func okSearchResp(items []*larkbitable.AppTableRecord, hasMore bool, pageToken string) *larkbitable.SearchAppTableRecordResp {
	resp := &larkbitable.SearchAppTableRecordResp{
		ApiResp:   okAPIResp(),
		CodeError: larkcore.CodeError{Code: 0, Msg: "success"},
		Data: &larkbitable.SearchAppTableRecordRespData{
			Items:   items,
			HasMore: larkcore.BoolPtr(hasMore),
		},
	}
	if pageToken != "" {
		resp.Data.PageToken = larkcore.StringPtr(pageToken)
	}
	return resp
}

func newSDKTestClient(fake *fakeBitableAPI) *Client {
	return &Client{
		appID:         "test-app",
		appSecret:     "test-secret",
		bitableAPI:    fake,
		tenantToken:   "test-tenant-token",
		tokenExpireAt: time.Now().Add(1 * time.Hour),
	}
}

var testRef = BitableRef{AppToken: "bascnApp", TableID: "tblReg", ViewID: "vewAll"}

func TestSearchRecordsPagesUntilDone(t *testing.T) {
	fake := &fakeBitableAPI{}
	fake.searchFn = func(call fakeSearchCall) (*larkbitable.SearchAppTableRecordResp, error) {
		if call.PageToken == "" {
			return okSearchResp([]*larkbitable.AppTableRecord{
				{RecordId: larkcore.StringPtr("rec1"), Fields: map[string]any{"agent_id": "a1"}},
			}, true, "p2"), nil
		}
		return okSearchResp([]*larkbitable.AppTableRecord{
			{RecordId: larkcore.StringPtr("rec2"), Fields: map[string]any{"agent_id": "a1"}},
		}, false, ""), nil
	}
	client := newSDKTestClient(fake)

	filter := NewFilterInfo("and", NewCondition("agent_id", "is", "a1"))
	rows, err := client.SearchRecords(context.Background(), testRef, SearchOptions{Filter: filter})
	if err != nil {
		t.Fatalf("SearchRecords returned error: %v", err)
	}
	if len(rows) != 2 || rows[0].RecordID != "rec1" || rows[1].RecordID != "rec2" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if len(fake.searchCalls) != 2 {
		t.Fatalf("expected 2 search calls, got %d", len(fake.searchCalls))
	}
	body := fake.searchCalls[0].Body
	if body == nil || larkcore.StringValue(body.ViewId) != "vewAll" || body.Filter == nil {
		t.Fatalf("expected view and filter in search body, got %+v", body)
	}
}

func TestSearchRecordsHonorsLimit(t *testing.T) {
	fake := &fakeBitableAPI{}
	fake.searchFn = func(call fakeSearchCall) (*larkbitable.SearchAppTableRecordResp, error) {
		return okSearchResp([]*larkbitable.AppTableRecord{
			{RecordId: larkcore.StringPtr("rec1")},
			{RecordId: larkcore.StringPtr("rec2")},
		}, true, "more"), nil
	}
	client := newSDKTestClient(fake)
	rows, err := client.SearchRecords(context.Background(), testRef, SearchOptions{Limit: 1})
	if err != nil {
		t.Fatalf("SearchRecords returned error: %v", err)
	}
	if len(rows) != 1 || len(fake.searchCalls) != 1 || fake.searchCalls[0].PageSize != 1 {
		t.Fatalf("expected a single page of size 1, got rows=%d calls=%+v", len(rows), fake.searchCalls)
	}
}

func TestUpdateRecordSurfacesAPICode(t *testing.T) {
	fake := &fakeBitableAPI{}
	fake.updateFn = func(call fakeUpdateCall) (*larkbitable.UpdateAppTableRecordResp, error) {
		return &larkbitable.UpdateAppTableRecordResp{
			ApiResp:   okAPIResp(),
			CodeError: larkcore.CodeError{Code: CodeRecordIDNotFound, Msg: "RecordIdNotFound"},
		}, nil
	}
	client := newSDKTestClient(fake)
	err := client.UpdateRecord(context.Background(), testRef, "recGone", map[string]any{"status": "x"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !HasCode(err, CodeRecordIDNotFound) {
		t.Fatalf("expected RecordIdNotFound code, got %v", err)
	}
	if HasCode(err, CodePermissionDenied) {
		t.Fatalf("unexpected permission code match")
	}
}

func TestCreateRecordReturnsRow(t *testing.T) {
	fake := &fakeBitableAPI{}
	client := newSDKTestClient(fake)
	row, err := client.CreateRecord(context.Background(), testRef, map[string]any{"first_name": "Amina"})
	if err != nil {
		t.Fatalf("CreateRecord returned error: %v", err)
	}
	if row.RecordID != "recNew" || row.Fields["first_name"] != "Amina" {
		t.Fatalf("unexpected row: %+v", row)
	}
	if _, err := client.CreateRecord(context.Background(), testRef, nil); err == nil {
		t.Fatalf("expected error for empty fields")
	}
}
