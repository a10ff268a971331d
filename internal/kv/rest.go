package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// shared HTTP client for REST KV calls
var restHTTPClient = &http.Client{
	Timeout: 10 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// implements Store over a Redis-compatible REST endpoint (Vercel KV / Upstash).
// Each call posts one command as a JSON array and reads {"result": ...} or {"error": ...}.
type RESTStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type restReply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// creates a new REST KV store
func NewRESTStore(baseURL, token string) *RESTStore {
	return &RESTStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: restHTTPClient,
	}
}

// overrides the HTTP client, for tests
func (s *RESTStore) WithHTTPClient(client *http.Client) *RESTStore {
	s.httpClient = client
	return s
}

func (s *RESTStore) Get(ctx context.Context, key string) (string, error) {
	raw, err := s.do(ctx, "GET", key)
	if err != nil {
		return "", err
	}

	return decodeString(raw)
}

func (s *RESTStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	args := []string{"SET", key, value}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}

	_, err := s.do(ctx, args...)
	return err
}

func (s *RESTStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := s.do(ctx, append([]string{"DEL"}, keys...)...)
	return err
}

func (s *RESTStore) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	raw, err := s.do(ctx, "INCRBY", key, strconv.FormatInt(n, 10))
	if err != nil {
		return 0, err
	}

	return decodeInt(raw)
}

func (s *RESTStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Del(ctx, key)
	}

	_, err := s.do(ctx, "PEXPIRE", key, strconv.FormatInt(ttl.Milliseconds(), 10))
	return err
}

func (s *RESTStore) HSet(ctx context.Context, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	args := []string{"HSET", key}
	for field, value := range values {
		args = append(args, field, value)
	}

	_, err := s.do(ctx, args...)
	return err
}

func (s *RESTStore) HGet(ctx context.Context, key, field string) (string, error) {
	raw, err := s.do(ctx, "HGET", key, field)
	if err != nil {
		return "", err
	}

	return decodeString(raw)
}

func (s *RESTStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	raw, err := s.do(ctx, "HGETALL", key)
	if err != nil {
		return nil, err
	}

	var flat []string
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, fmt.Errorf("kv rest: failed to decode HGETALL reply: %w", err)
		}
	}

	out := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		out[flat[i]] = flat[i+1]
	}

	return out, nil
}

func (s *RESTStore) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	raw, err := s.do(ctx, "HINCRBY", key, field, strconv.FormatInt(n, 10))
	if err != nil {
		return 0, err
	}

	return decodeInt(raw)
}

// nothing to release, the HTTP client is shared
func (s *RESTStore) Close() error {
	return nil
}

func (s *RESTStore) do(ctx context.Context, args ...string) (json.RawMessage, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("kv rest: failed to marshal command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("kv rest: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kv rest: failed to send %s: %w", args[0], err)
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kv rest: failed to read response: %w", err)
	}

	var reply restReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("kv rest: %s failed with status %d: %s", args[0], resp.StatusCode, string(data))
	}

	if reply.Error != "" {
		switch {
		case strings.HasPrefix(reply.Error, "WRONGTYPE"):
			return nil, ErrWrongType
		case strings.Contains(reply.Error, "not an integer"):
			return nil, ErrNotInteger
		}

		return nil, fmt.Errorf("kv rest: %s: %s", args[0], reply.Error)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kv rest: %s failed with status %d", args[0], resp.StatusCode)
	}

	return reply.Result, nil
}

func decodeString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", ErrNotFound
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("kv rest: unexpected reply %s: %w", string(raw), err)
	}

	return s, nil
}

func decodeInt(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("kv rest: unexpected reply %s: %w", string(raw), err)
	}

	return n, nil
}
