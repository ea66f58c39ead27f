package feishusdk

import (
	"context"
	"fmt"
	"strings"
	"time"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultBitablePageSize = 200
	maxBitablePageSize     = 500
)

// BitableRow wraps a raw bitable record so callers can read arbitrary columns.
type BitableRow struct {
	RecordID string
	Fields   map[string]any
}

func toRow(rec *larkbitable.AppTableRecord) BitableRow {
	return BitableRow{
		RecordID: strings.TrimSpace(larkcore.StringValue(rec.RecordId)),
		Fields:   rec.Fields,
	}
}

// CreateRecord inserts one record and returns its record id.
func (c *Client) CreateRecord(ctx context.Context, ref BitableRef, fields map[string]any) (row BitableRow, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "create bitable record failed")
		}
	}()

	if len(fields) == 0 {
		return row, errors.New("feishu: no fields provided for creation")
	}
	if err := requireBitableAppTable(ref); err != nil {
		return row, err
	}
	api, opts, err := c.bitableSDK(ctx)
	if err != nil {
		return row, err
	}

	record := larkbitable.NewAppTableRecordBuilder().
		Fields(fields).
		Build()
	resp, err := api.Create(ctx, ref.AppToken, ref.TableID, record, opts...)
	if err != nil {
		return row, fmt.Errorf("feishu: create record request failed: %w", err)
	}
	if resp == nil || resp.ApiResp == nil {
		return row, errors.New("feishu: empty response when creating record")
	}
	if err := ensureSDKSuccess("create record", resp.Success(), resp.Code, resp.Msg, resp.RequestId()); err != nil {
		return row, err
	}
	if resp.Data == nil || resp.Data.Record == nil {
		return row, errors.New("feishu: create record response missing record")
	}
	row = toRow(resp.Data.Record)
	if row.RecordID == "" {
		return row, errors.New("feishu: create record response missing record id")
	}
	if row.Fields == nil {
		row.Fields = fields
	}
	return row, nil
}

// UpdateRecord patches the given fields of one record in a single call.
func (c *Client) UpdateRecord(ctx context.Context, ref BitableRef, recordID string, fields map[string]any) error {
	if strings.TrimSpace(recordID) == "" {
		return errors.New("feishu: record id is empty")
	}
	if len(fields) == 0 {
		return errors.New("feishu: no fields provided for update")
	}
	if err := requireBitableAppTable(ref); err != nil {
		return err
	}
	api, opts, err := c.bitableSDK(ctx)
	if err != nil {
		return err
	}

	record := larkbitable.NewAppTableRecordBuilder().
		Fields(fields).
		Build()
	resp, err := api.Update(ctx, ref.AppToken, ref.TableID, recordID, record, opts...)
	if err != nil {
		return fmt.Errorf("feishu: update record request failed: %w", err)
	}
	if resp == nil || resp.ApiResp == nil {
		return errors.New("feishu: empty response when updating record")
	}
	return ensureSDKSuccess("update record", resp.Success(), resp.Code, resp.Msg, resp.RequestId())
}

// SearchOptions narrows SearchRecords.
type SearchOptions struct {
	Filter   *FilterInfo
	Limit    int
	PageSize int
}

// SearchRecords pages through the table (or its view) applying the filter.
func (c *Client) SearchRecords(ctx context.Context, ref BitableRef, opts SearchOptions) ([]BitableRow, error) {
	if err := requireBitableAppTable(ref); err != nil {
		return nil, err
	}
	api, reqOpts, err := c.bitableSDK(ctx)
	if err != nil {
		return nil, err
	}
	pageSize := clampBitablePageSize(opts.PageSize)
	if opts.Limit > 0 && opts.Limit < pageSize {
		pageSize = opts.Limit
	}

	var body *larkbitable.SearchAppTableRecordReqBody
	viewID := strings.TrimSpace(ref.ViewID)
	if viewID != "" || opts.Filter != nil {
		body = &larkbitable.SearchAppTableRecordReqBody{}
		if viewID != "" {
			body.ViewId = larkcore.StringPtr(viewID)
		}
		if opts.Filter != nil {
			body.Filter = opts.Filter
		}
	}

	start := time.Now()
	filterJSON := FilterJSON(opts.Filter)
	rows := make([]BitableRow, 0, pageSize)
	pageToken := ""
	page := 0
	for {
		resp, err := api.Search(ctx, ref.AppToken, ref.TableID, pageSize, pageToken, body, reqOpts...)
		if err != nil {
			return nil, fmt.Errorf("feishu: search bitable records request failed: %w", err)
		}
		if resp == nil || resp.ApiResp == nil {
			return nil, errors.New("feishu: empty response when searching bitable records")
		}
		if err := ensureSDKSuccess("search records", resp.Success(), resp.Code, resp.Msg, resp.RequestId()); err != nil {
			return nil, err
		}
		page++
		hasMore, nextToken := false, ""
		if resp.Data != nil {
			for _, item := range resp.Data.Items {
				if item != nil {
					rows = append(rows, toRow(item))
				}
			}
			hasMore = larkcore.BoolValue(resp.Data.HasMore)
			nextToken = strings.TrimSpace(larkcore.StringValue(resp.Data.PageToken))
		}
		if opts.Limit > 0 && len(rows) >= opts.Limit {
			rows = rows[:opts.Limit]
			break
		}
		if !hasMore || nextToken == "" {
			break
		}
		pageToken = nextToken
	}

	log.Debug().
		Str("table_id", ref.TableID).
		Str("view_id", viewID).
		Str("filter", filterJSON).
		Int("pages", page).
		Int("count", len(rows)).
		Dur("elapsed", time.Since(start)).
		Msg("bitable records fetched")
	return rows, nil
}

// BatchGetRows fetches records by id. Absent ids are skipped.
func (c *Client) BatchGetRows(ctx context.Context, ref BitableRef, recordIDs []string) (rows []BitableRow, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "batch get bitable records failed")
		}
	}()

	if len(recordIDs) == 0 {
		return nil, errors.New("feishu: no record ids provided")
	}
	if err := requireBitableAppTable(ref); err != nil {
		return nil, err
	}
	api, opts, err := c.bitableSDK(ctx)
	if err != nil {
		return nil, err
	}

	body := larkbitable.NewBatchGetAppTableRecordReqBodyBuilder().
		RecordIds(recordIDs).
		Build()
	resp, err := api.BatchGet(ctx, ref.AppToken, ref.TableID, body, opts...)
	if err != nil {
		return nil, fmt.Errorf("feishu: batch get request failed: %w", err)
	}
	if resp == nil || resp.ApiResp == nil {
		return nil, errors.New("feishu: empty response when batch getting records")
	}
	if err := ensureSDKSuccess("batch get records", resp.Success(), resp.Code, resp.Msg, resp.RequestId()); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, nil
	}
	if len(resp.Data.AbsentRecordIds) > 0 {
		log.Debug().Strs("absent_ids", resp.Data.AbsentRecordIds).Msg("feishu: some records were absent")
	}
	if len(resp.Data.ForbiddenRecordIds) > 0 {
		log.Warn().Strs("forbidden_ids", resp.Data.ForbiddenRecordIds).Msg("feishu: some records were forbidden")
	}
	rows = make([]BitableRow, 0, len(resp.Data.Records))
	for _, rec := range resp.Data.Records {
		if rec != nil {
			rows = append(rows, toRow(rec))
		}
	}
	return rows, nil
}

func clampBitablePageSize(pageSize int) int {
	if pageSize <= 0 {
		return defaultBitablePageSize
	}
	if pageSize > maxBitablePageSize {
		return maxBitablePageSize
	}
	return pageSize
}
