// Package gemini はGemini APIのクライアントを提供する。
// 自然言語からのSQL生成と回答文生成の両方で使用される。
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// defaultEndpoint はGemini APIのベースエンドポイント。
const defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// Part はコンテンツの1パート（テキストのみ使用）。
type Part struct {
	Text string `json:"text"`
}

// Content は1発話分のコンテンツ。Roleは "user" または "model"。
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Request はgenerateContentリクエストのボディ。
type Request struct {
	Contents []Content `json:"contents"`
}

// Response は生成結果を表す明示的なタグ付き変種。
// Success=falseの場合、Textは空でErrがその理由を保持する。
// 生成失敗を擬似的な成功応答に変換することは決してしない。
type Response struct {
	Success      bool
	Text         string
	FinishReason string
	Err          error
}

// generateContentのレスポンス構造（使用するフィールドのみ）
type apiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Client はGemini APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	model      string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// endpointが空の場合はデフォルトエンドポイントを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, apiKey, model, endpoint string) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		model:      model,
		endpoint:   endpoint,
	}
}

// GenerateContent はマルチターンのコンテンツを送信して生成結果を返す。
// トランスポートエラー・非2xxステータス・空の候補はすべて失敗のResponseに
// 変換される（エラーは戻り値のerrではなくResponse.Errに入る）。
// 呼び出し側はSuccessを見て劣化応答に切り替える。
func (c *Client) GenerateContent(ctx context.Context, contents []Content) *Response {
	reqBody, err := json.Marshal(Request{Contents: contents})
	if err != nil {
		return c.failure(fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return c.failure(fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.failure(fmt.Errorf("Gemini APIの呼び出しに失敗しました: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.failure(fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		var apiResp apiResponse
		// エラーボディの解析失敗は無視する（ステータスだけで失敗と分かる）
		_ = json.Unmarshal(body, &apiResp)
		msg := ""
		if apiResp.Error != nil {
			msg = apiResp.Error.Message
		}
		return c.failure(fmt.Errorf("Gemini APIがステータス %d を返しました: %s", resp.StatusCode, msg))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return c.failure(fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err))
	}

	if len(apiResp.Candidates) == 0 {
		return c.failure(fmt.Errorf("Gemini APIが候補を返しませんでした"))
	}

	candidate := apiResp.Candidates[0]
	var text string
	for _, part := range candidate.Content.Parts {
		text += part.Text
	}
	if text == "" {
		return c.failure(fmt.Errorf("Gemini APIが空のテキストを返しました（finish_reason=%s）", candidate.FinishReason))
	}

	return &Response{
		Success:      true,
		Text:         text,
		FinishReason: candidate.FinishReason,
	}
}

// failure はエラーログを記録して失敗のResponseを返す。
func (c *Client) failure(err error) *Response {
	c.logger.Error("コンテンツ生成に失敗しました",
		slog.String("model", c.model),
		slog.String("error", err.Error()),
	)
	return &Response{Success: false, Err: err}
}
