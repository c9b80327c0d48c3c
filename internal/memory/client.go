// internal/memory/client.go
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/IronMeerkat/dionysus/internal/models"
)

// Client 通过HTTP访问知识图谱记忆服务
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient 创建记忆服务客户端
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type searchRequest struct {
	Query    string   `json:"query"`
	GroupIDs []string `json:"group_ids,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

type searchResponse struct {
	Facts []string `json:"facts"`
}

// Search 混合检索，返回按相关性排序的事实文本
// 没有命中不是错误，返回空切片
func (c *Client) Search(ctx context.Context, query string, groupIDs []string, limit int) ([]string, error) {
	body, err := json.Marshal(searchRequest{
		Query:    query,
		GroupIDs: groupIDs,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/search", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("记忆服务检索失败(%d): %s", resp.StatusCode, string(raw))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	if parsed.Facts == nil {
		return []string{}, nil
	}
	return parsed.Facts, nil
}

type episodeMessage struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

type insertRequest struct {
	Name              string           `json:"name"`
	Messages          []episodeMessage `json:"messages"`
	GroupID           string           `json:"group_id"`
	SourceDescription string           `json:"source_description,omitempty"`
	Perspective       string           `json:"perspective,omitempty"`
	ReferenceTime     time.Time        `json:"reference_time"`
}

// Insert 将一段对话作为情景片段写入知识库
// 调用方视角是即发即弃：失败只记录，不在核心侧重试
func (c *Client) Insert(ctx context.Context, messages []models.Message, groupID, sourceDescription, perspective string) error {
	if len(messages) == 0 {
		return nil
	}

	episode := make([]episodeMessage, 0, len(messages))
	for _, m := range messages {
		episode = append(episode, episodeMessage{Speaker: m.Speaker, Content: m.Content})
	}

	now := time.Now().UTC()
	body, err := json.Marshal(insertRequest{
		Name:              fmt.Sprintf("conversation_%s", now.Format(time.RFC3339)),
		Messages:          episode,
		GroupID:           groupID,
		SourceDescription: sourceDescription,
		Perspective:       perspective,
		ReferenceTime:     now,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/episodes", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("记忆服务写入失败(%d): %s", resp.StatusCode, string(raw))
	}

	return nil
}
