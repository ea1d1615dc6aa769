package meeting

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client calls the external meeting-room reservation API with the signed
// headers it requires.
type Client struct {
	baseURL   string
	appID     string
	appSecret string
	http      *http.Client
	now       func() time.Time
}

// NewClient creates a meeting-room API client.
func NewClient(baseURL, appID, appSecret string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		appID:     appID,
		appSecret: appSecret,
		http:      &http.Client{Timeout: 15 * time.Second},
		now:       time.Now,
	}
}

// signedHeaders builds the authentication headers. The token is the uppercase
// hex SHA-256 of appID + appSecret + millisecond timestamp.
func (c *Client) signedHeaders() map[string]string {
	millis := strconv.FormatInt(c.now().UnixMilli(), 10)
	sum := sha256.Sum256([]byte(c.appID + c.appSecret + millis))
	return map[string]string{
		"appID":    c.appID,
		"appTimes": millis,
		"appToken": strings.ToUpper(hex.EncodeToString(sum[:])),
	}
}

type freeRoomsResponse struct {
	ResultCode string `json:"ResultCode"`
	Message    string `json:"Message"`
	Data       []struct {
		RoomLocation     string `json:"RoomLocation"`
		FreeTimeslotList []struct {
			MeetingDate string `json:"MeetingDate"`
			StartTime   string `json:"StartTime"`
			EndTime     string `json:"EndTime"`
		} `json:"FreeTimeslotList"`
	} `json:"Data"`
}

// FreeRooms queries free meeting-room time slots and renders them as a text
// table suitable for a chat answer.
func (c *Client) FreeRooms(ctx context.Context, params map[string]string) (string, error) {
	body, err := c.get(ctx, "/api/GcrData/GetFreeRoomList", params)
	if err != nil {
		return "", err
	}

	var resp freeRoomsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode free room list: %w", err)
	}
	if resp.ResultCode != "200" {
		return "", fmt.Errorf("meeting API rejected request: %s %s", resp.ResultCode, resp.Message)
	}

	var b strings.Builder
	b.WriteString("会议室位置 | 日期 | 开始时间 | 结束时间\n")
	for _, room := range resp.Data {
		for _, slot := range room.FreeTimeslotList {
			fmt.Fprintf(&b, "%s | %s | %s | %s\n",
				room.RoomLocation, slot.MeetingDate, slot.StartTime, slot.EndTime)
		}
	}
	return b.String(), nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build meeting API request: %w", err)
	}
	for k, v := range c.signedHeaders() {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call meeting API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read meeting API response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("meeting API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
