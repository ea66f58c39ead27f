package feishusdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fieldops/regsync/internal/env"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkauth "github.com/larksuite/oapi-sdk-go/v3/service/auth/v3"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
	"github.com/pkg/errors"
)

const (
	defaultBaseURL      = "https://open.feishu.cn"
	defaultHTTPTimeout  = 60 * time.Second
	tokenExpiryFallback = 60 * time.Minute
)

// Error codes returned by the bitable record API that callers branch on.
const (
	CodeRecordIDNotFound = 1254043
	CodePermissionDenied = 1254302
)

type bitableAppTableRecordAPI interface {
	Search(ctx context.Context, appToken, tableID string, pageSize int, pageToken string, body *larkbitable.SearchAppTableRecordReqBody, options ...larkcore.RequestOptionFunc) (*larkbitable.SearchAppTableRecordResp, error)
	Create(ctx context.Context, appToken, tableID string, record *larkbitable.AppTableRecord, options ...larkcore.RequestOptionFunc) (*larkbitable.CreateAppTableRecordResp, error)
	Update(ctx context.Context, appToken, tableID, recordID string, record *larkbitable.AppTableRecord, options ...larkcore.RequestOptionFunc) (*larkbitable.UpdateAppTableRecordResp, error)
	BatchGet(ctx context.Context, appToken, tableID string, body *larkbitable.BatchGetAppTableRecordReqBody, options ...larkcore.RequestOptionFunc) (*larkbitable.BatchGetAppTableRecordResp, error)
}

type larkAppTableRecordService interface {
	Search(ctx context.Context, req *larkbitable.SearchAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.SearchAppTableRecordResp, error)
	Create(ctx context.Context, req *larkbitable.CreateAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.CreateAppTableRecordResp, error)
	Update(ctx context.Context, req *larkbitable.UpdateAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.UpdateAppTableRecordResp, error)
	BatchGet(ctx context.Context, req *larkbitable.BatchGetAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.BatchGetAppTableRecordResp, error)
}

type sdkBitableAppTableRecordAPI struct {
	svc larkAppTableRecordService
}

func (a sdkBitableAppTableRecordAPI) Search(ctx context.Context, appToken, tableID string, pageSize int, pageToken string, body *larkbitable.SearchAppTableRecordReqBody, options ...larkcore.RequestOptionFunc) (*larkbitable.SearchAppTableRecordResp, error) {
	builder := larkbitable.NewSearchAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		PageSize(pageSize)
	if strings.TrimSpace(pageToken) != "" {
		builder.PageToken(strings.TrimSpace(pageToken))
	}
	if body != nil {
		builder.Body(body)
	}
	return a.svc.Search(ctx, builder.Build(), options...)
}

func (a sdkBitableAppTableRecordAPI) Create(ctx context.Context, appToken, tableID string, record *larkbitable.AppTableRecord, options ...larkcore.RequestOptionFunc) (*larkbitable.CreateAppTableRecordResp, error) {
	req := larkbitable.NewCreateAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		AppTableRecord(record).
		Build()
	return a.svc.Create(ctx, req, options...)
}

func (a sdkBitableAppTableRecordAPI) Update(ctx context.Context, appToken, tableID, recordID string, record *larkbitable.AppTableRecord, options ...larkcore.RequestOptionFunc) (*larkbitable.UpdateAppTableRecordResp, error) {
	req := larkbitable.NewUpdateAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		RecordId(recordID).
		AppTableRecord(record).
		Build()
	return a.svc.Update(ctx, req, options...)
}

func (a sdkBitableAppTableRecordAPI) BatchGet(ctx context.Context, appToken, tableID string, body *larkbitable.BatchGetAppTableRecordReqBody, options ...larkcore.RequestOptionFunc) (*larkbitable.BatchGetAppTableRecordResp, error) {
	req := larkbitable.NewBatchGetAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		Body(body).
		Build()
	return a.svc.BatchGet(ctx, req, options...)
}

// Client talks to the Feishu bitable record API through the lark SDK.
type Client struct {
	appID     string
	appSecret string
	tenantKey string

	larkClient *lark.Client
	bitableAPI bitableAppTableRecordAPI

	tokenMu       sync.Mutex
	tenantToken   string
	tokenExpireAt time.Time
}

// NewClientFromEnv constructs a Client using environment variables.
//
// Required variables:
//   - FEISHU_APP_ID
//   - FEISHU_APP_SECRET
//
// Optional variables:
//   - FEISHU_TENANT_KEY
//   - FEISHU_BASE_URL (defaults to https://open.feishu.cn)
func NewClientFromEnv() (*Client, error) {
	appID := env.String("FEISHU_APP_ID", "")
	appSecret := env.String("FEISHU_APP_SECRET", "")
	if appID == "" || appSecret == "" {
		return nil, errors.New("feishu: FEISHU_APP_ID and FEISHU_APP_SECRET must be set in environment")
	}
	baseURL := strings.TrimRight(env.String("FEISHU_BASE_URL", defaultBaseURL), "/")

	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelError),
		lark.WithHttpClient(&http.Client{Timeout: defaultHTTPTimeout}),
	}
	if baseURL != lark.FeishuBaseUrl {
		opts = append(opts, lark.WithOpenBaseUrl(baseURL))
	}
	client := lark.NewClient(appID, appSecret, opts...)

	return &Client{
		appID:      appID,
		appSecret:  appSecret,
		tenantKey:  env.String("FEISHU_TENANT_KEY", ""),
		larkClient: client,
		bitableAPI: sdkBitableAppTableRecordAPI{svc: client.Bitable.V1.AppTableRecord},
	}, nil
}

// getTenantAccessToken retrieves (and caches) a tenant_access_token.
func (c *Client) getTenantAccessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.tenantToken != "" && time.Now().Before(c.tokenExpireAt.Add(-30*time.Second)) {
		return c.tenantToken, nil
	}
	if c.larkClient == nil {
		return "", errors.New("feishu: lark client is nil")
	}

	body := larkauth.NewInternalTenantAccessTokenReqBodyBuilder().
		AppId(c.appID).
		AppSecret(c.appSecret).
		Build()
	req := larkauth.NewInternalTenantAccessTokenReqBuilder().
		Body(body).
		Build()

	resp, err := c.larkClient.Auth.V3.TenantAccessToken.Internal(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, "feishu: request tenant access token failed")
	}
	if resp == nil || resp.ApiResp == nil {
		return "", errors.New("feishu: empty response when fetching tenant access token")
	}

	var parsed struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int    `json:"expire"`
	}
	if err := json.Unmarshal(resp.ApiResp.RawBody, &parsed); err != nil {
		return "", errors.Wrap(err, "feishu: decode tenant access token response")
	}
	if parsed.Code != 0 {
		return "", fmt.Errorf("feishu: tenant access token error code=%d msg=%s", parsed.Code, parsed.Msg)
	}
	if parsed.TenantAccessToken == "" {
		return "", errors.New("feishu: tenant access token missing in response")
	}

	ttl := time.Duration(parsed.Expire) * time.Second
	if ttl <= 0 {
		ttl = tokenExpiryFallback
	}
	c.tenantToken = parsed.TenantAccessToken
	c.tokenExpireAt = time.Now().Add(ttl)
	return c.tenantToken, nil
}

func (c *Client) bitableSDK(ctx context.Context) (bitableAppTableRecordAPI, []larkcore.RequestOptionFunc, error) {
	if c == nil {
		return nil, nil, errors.New("feishu: client is nil")
	}
	if c.bitableAPI == nil {
		return nil, nil, errors.New("feishu: bitable sdk client is nil")
	}
	token, err := c.getTenantAccessToken(ctx)
	if err != nil {
		return nil, nil, err
	}
	opts := []larkcore.RequestOptionFunc{larkcore.WithTenantAccessToken(token)}
	if key := strings.TrimSpace(c.tenantKey); key != "" {
		opts = append(opts, larkcore.WithTenantKey(key))
	}
	return c.bitableAPI, opts, nil
}

// APIError is a non-zero code returned by the open platform.
type APIError struct {
	Action string
	Code   int
	Msg    string
	LogID  string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.LogID) == "" {
		return fmt.Sprintf("feishu: %s failed code=%d msg=%s", e.Action, e.Code, e.Msg)
	}
	return fmt.Sprintf("feishu: %s failed code=%d msg=%s log_id=%s", e.Action, e.Code, e.Msg, e.LogID)
}

// HasCode reports whether err is an APIError carrying one of codes.
func HasCode(err error, codes ...int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.Code == code {
			return true
		}
	}
	return false
}

func ensureSDKSuccess(action string, ok bool, code int, msg, logID string) error {
	if ok {
		return nil
	}
	return &APIError{Action: action, Code: code, Msg: msg, LogID: logID}
}
