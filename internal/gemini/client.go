package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"filesearch-gateway/pkg/metrics"
	"filesearch-gateway/pkg/utils"
)

const (
	defaultBaseURL       = "https://generativelanguage.googleapis.com/v1beta"
	defaultUploadBaseURL = "https://generativelanguage.googleapis.com/upload/v1beta"
	defaultModel         = "gemini-2.5-flash"
	documentsPageSize    = 100
)

// Options 客户端可选配置；零值使用默认
type Options struct {
	BaseURL       string
	UploadBaseURL string
	Model         string
	Timeout       time.Duration
	RetryCount    int
}

// Client File Search API 客户端；每个请求方 API Key 一个实例
type Client struct {
	apiKey        string
	baseURL       string
	uploadBaseURL string
	model         string
	client        *resty.Client
}

// NewClient 创建 File Search 客户端；apiKey 必填
func NewClient(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key 不能为空")
	}

	baseURL := strings.TrimSuffix(utils.CoalesceString(opts.BaseURL, defaultBaseURL), "/")
	uploadBaseURL := strings.TrimSuffix(utils.CoalesceString(opts.UploadBaseURL, defaultUploadBaseURL), "/")
	model := utils.CoalesceString(opts.Model, defaultModel)
	timeout := 30 * time.Second
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	if opts.RetryCount > 0 {
		client.SetRetryCount(opts.RetryCount)
		client.SetRetryWaitTime(1 * time.Second)
		client.SetRetryMaxWaitTime(5 * time.Second)
	}

	return &Client{
		apiKey:        apiKey,
		baseURL:       baseURL,
		uploadBaseURL: uploadBaseURL,
		model:         model,
		client:        client,
	}, nil
}

// CreateStore 创建 File Search store，返回 vendor 资源名（fileSearchStores/...）
func (c *Client) CreateStore(ctx context.Context, displayName string) (string, error) {
	defer observe("create_store", time.Now())

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", c.apiKey).
		SetBody(map[string]interface{}{"displayName": displayName}).
		Post(c.baseURL + "/fileSearchStores")
	if err != nil {
		return "", countErr("create_store", fmt.Errorf("调用 File Search API 失败: %w", err))
	}
	if response.StatusCode() != http.StatusOK {
		return "", countErr("create_store", &StatusError{Code: response.StatusCode(), Body: response.String()})
	}

	var result struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return "", countErr("create_store", fmt.Errorf("解析 File Search 响应失败: %w", err))
	}
	if result.Name == "" {
		return "", countErr("create_store", fmt.Errorf("File Search API 未返回 store 资源名"))
	}
	countOK("create_store")
	return result.Name, nil
}

// DeleteStore 删除 store；force 模式连带删除其中文档
func (c *Client) DeleteStore(ctx context.Context, resourceName string) error {
	defer observe("delete_store", time.Now())

	response, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetQueryParam("force", "true").
		Delete(c.baseURL + "/" + resourceName)
	if err != nil {
		return countErr("delete_store", fmt.Errorf("调用 File Search API 失败: %w", err))
	}
	if response.StatusCode() != http.StatusOK && response.StatusCode() != http.StatusNoContent {
		return countErr("delete_store", &StatusError{Code: response.StatusCode(), Body: response.String()})
	}
	countOK("delete_store")
	return nil
}

// UploadFile 将文件字节上传进 store，返回 LRO 操作名；索引在 vendor 侧异步进行
func (c *Client) UploadFile(ctx context.Context, storeResource, displayName, mimeType string, data []byte) (string, error) {
	defer observe("upload", time.Now())

	meta, _ := json.Marshal(map[string]interface{}{"displayName": displayName})
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-Goog-Upload-Protocol", "multipart").
		SetQueryParam("key", c.apiKey).
		SetMultipartField("metadata", "", "application/json", bytes.NewReader(meta)).
		SetMultipartField("file", displayName, mimeType, bytes.NewReader(data)).
		Post(c.uploadBaseURL + "/" + storeResource + ":uploadToFileSearchStore")
	if err != nil {
		return "", countErr("upload", fmt.Errorf("调用 File Search 上传失败: %w", err))
	}
	if response.StatusCode() != http.StatusOK {
		return "", countErr("upload", &StatusError{Code: response.StatusCode(), Body: response.String()})
	}

	var op Operation
	if err := json.Unmarshal(response.Body(), &op); err != nil {
		return "", countErr("upload", fmt.Errorf("解析上传响应失败: %w", err))
	}
	if op.Name == "" {
		return "", countErr("upload", fmt.Errorf("File Search API 未返回操作名"))
	}
	countOK("upload")
	return op.Name, nil
}

// GetOperation 查询 LRO 状态
func (c *Client) GetOperation(ctx context.Context, operationName string) (*Operation, error) {
	defer observe("get_operation", time.Now())

	response, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		Get(c.baseURL + "/" + operationName)
	if err != nil {
		return nil, countErr("get_operation", fmt.Errorf("查询操作状态失败: %w", err))
	}
	if response.StatusCode() != http.StatusOK {
		return nil, countErr("get_operation", &StatusError{Code: response.StatusCode(), Body: response.String()})
	}

	var op Operation
	if err := json.Unmarshal(response.Body(), &op); err != nil {
		return nil, countErr("get_operation", fmt.Errorf("解析操作状态失败: %w", err))
	}
	countOK("get_operation")
	return &op, nil
}

// ListDocuments 列出 store 内全部已索引文档（翻页拉全）
func (c *Client) ListDocuments(ctx context.Context, storeResource string) ([]Document, error) {
	defer observe("list_documents", time.Now())

	var docs []Document
	pageToken := ""
	for {
		req := c.client.R().
			SetContext(ctx).
			SetQueryParam("key", c.apiKey).
			SetQueryParam("pageSize", fmt.Sprintf("%d", documentsPageSize))
		if pageToken != "" {
			req.SetQueryParam("pageToken", pageToken)
		}
		response, err := req.Get(c.baseURL + "/" + storeResource + "/documents")
		if err != nil {
			return nil, countErr("list_documents", fmt.Errorf("拉取文档列表失败: %w", err))
		}
		if response.StatusCode() != http.StatusOK {
			return nil, countErr("list_documents", &StatusError{Code: response.StatusCode(), Body: response.String()})
		}

		var page struct {
			Documents     []Document `json:"documents"`
			NextPageToken string     `json:"nextPageToken"`
		}
		if err := json.Unmarshal(response.Body(), &page); err != nil {
			return nil, countErr("list_documents", fmt.Errorf("解析文档列表失败: %w", err))
		}
		docs = append(docs, page.Documents...)
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	countOK("list_documents")
	return docs, nil
}

// DeleteDocument 删除单个文档；非 200/204 返回 *StatusError，状态与 body 原样保留
func (c *Client) DeleteDocument(ctx context.Context, documentResource string) error {
	defer observe("delete_document", time.Now())

	response, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetQueryParam("force", "true").
		Delete(c.baseURL + "/" + documentResource)
	if err != nil {
		return countErr("delete_document", fmt.Errorf("调用文档删除失败: %w", err))
	}
	if response.StatusCode() != http.StatusOK && response.StatusCode() != http.StatusNoContent {
		return countErr("delete_document", &StatusError{Code: response.StatusCode(), Body: response.String()})
	}
	countOK("delete_document")
	return nil
}

// Generate 以 File Search 工具为 grounding 生成回答
func (c *Client) Generate(ctx context.Context, question, systemPrompt string, storeResources []string) (*GenerateResult, error) {
	defer observe("generate", time.Now())

	request := map[string]interface{}{
		"contents": []map[string]interface{}{{
			"role": "user",
			"parts": []map[string]interface{}{{
				"text": question,
			}},
		}},
		"tools": []map[string]interface{}{{
			"fileSearch": map[string]interface{}{
				"fileSearchStoreNames": storeResources,
			},
		}},
	}
	if systemPrompt != "" {
		request["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]interface{}{{"text": systemPrompt}},
		}
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", c.apiKey).
		SetBody(request).
		Post(c.baseURL + "/models/" + c.model + ":generateContent")
	if err != nil {
		return nil, countErr("generate", fmt.Errorf("调用生成接口失败: %w", err))
	}
	if response.StatusCode() != http.StatusOK {
		return nil, countErr("generate", &StatusError{Code: response.StatusCode(), Body: response.String()})
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			GroundingMetadata json.RawMessage `json:"groundingMetadata"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return nil, countErr("generate", fmt.Errorf("解析生成响应失败: %w", err))
	}
	if len(result.Candidates) == 0 {
		return nil, countErr("generate", fmt.Errorf("生成接口没有返回候选结果"))
	}

	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	countOK("generate")
	return &GenerateResult{
		Text:              b.String(),
		GroundingMetadata: result.Candidates[0].GroundingMetadata,
	}, nil
}

func observe(op string, start time.Time) {
	metrics.VendorRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func countOK(op string) {
	metrics.VendorRequestTotal.WithLabelValues(op, "ok").Inc()
}

func countErr(op string, err error) error {
	metrics.VendorRequestTotal.WithLabelValues(op, "error").Inc()
	return err
}
