package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"docchat/internal/platform/logger"
)

const (
	payloadNamespaceKey = "_namespace"
	payloadPointKey     = "_point_key"
	maxErrorBodyBytes   = 1024
)

var pointIDNamespace = uuid.MustParse("6b1f0c1e-5d8a-4f3e-9a57-2f1c7e0d9b44")

type Config struct {
	URL        string
	APIKey     string
	Collection string
	VectorDim  int
}

// Point is one vector to upsert. Key must be unique inside a namespace; the
// stored point id is derived from namespace and key.
type Point struct {
	Key     string
	Vector  []float32
	Payload map[string]any
}

type Match struct {
	Key     string
	Score   float64
	Payload map[string]any
}

type VectorStore struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

func New(log *logger.Logger, cfg Config) (*VectorStore, error) {
	if strings.TrimSpace(cfg.URL) == "" || strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant url and collection are required")
	}
	return &VectorStore{
		log:     log.With("service", "QdrantVectorStore"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// EnsureCollection creates the collection with cosine distance when it does
// not exist yet.
func (s *VectorStore) EnsureCollection(ctx context.Context) error {
	const op = "ensure_collection"
	status, err := s.do(ctx, op, http.MethodGet, s.collectionPath(""), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	req := map[string]any{
		"vectors": map[string]any{"size": s.cfg.VectorDim, "distance": "Cosine"},
	}
	if _, err := s.do(ctx, op, http.MethodPut, s.collectionPath(""), req, nil); err != nil {
		return err
	}
	s.log.Info("qdrant collection created", "collection", s.cfg.Collection, "vector_dim", s.cfg.VectorDim)
	return nil
}

func (s *VectorStore) Upsert(ctx context.Context, namespace string, points []Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	body := make([]map[string]any, 0, len(points))
	for _, p := range points {
		if strings.TrimSpace(p.Key) == "" {
			return opErr(op, OperationErrorValidation, "point key is required", nil)
		}
		if s.cfg.VectorDim > 0 && len(p.Vector) != s.cfg.VectorDim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("point %q dimension mismatch: expected=%d got=%d", p.Key, s.cfg.VectorDim, len(p.Vector)), nil)
		}
		payload := make(map[string]any, len(p.Payload)+2)
		for k, v := range p.Payload {
			payload[k] = v
		}
		payload[payloadNamespaceKey] = namespace
		payload[payloadPointKey] = p.Key
		body = append(body, map[string]any{
			"id":      s.pointID(namespace, p.Key),
			"vector":  p.Vector,
			"payload": payload,
		})
	}
	_, err := s.do(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": body}, nil)
	return err
}

// Search returns the topK nearest points inside namespace whose payload
// matches every key of filter.
func (s *VectorStore) Search(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]string) ([]Match, error) {
	const op = "search"
	if len(vector) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if topK <= 0 {
		topK = 4
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
		"filter":       buildFilter(namespace, filter),
	}
	var raw []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	if _, err := s.do(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &raw); err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(raw))
	for _, item := range raw {
		key, _ := item.Payload[payloadPointKey].(string)
		delete(item.Payload, payloadPointKey)
		delete(item.Payload, payloadNamespaceKey)
		out = append(out, Match{Key: key, Score: item.Score, Payload: item.Payload})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// DeleteByFilter removes every point of namespace matching filter.
func (s *VectorStore) DeleteByFilter(ctx context.Context, namespace string, filter map[string]string) error {
	req := map[string]any{"filter": buildFilter(namespace, filter)}
	_, err := s.do(ctx, "delete", http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil)
	return err
}

func (s *VectorStore) do(ctx context.Context, op, method, path string, in any, out any) (int, error) {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return 0, opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return 0, opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, opErr(op, OperationErrorTransportFailed, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > maxErrorBodyBytes {
			raw = raw[:maxErrorBodyBytes]
		}
		return resp.StatusCode, &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    string(raw),
		}
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp.StatusCode, opErr(op, OperationErrorDecodeFailed, "decode envelope failed", err)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return resp.StatusCode, opErr(op, OperationErrorDecodeFailed, "decode result failed", err)
	}
	return resp.StatusCode, nil
}

func (s *VectorStore) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

func (s *VectorStore) pointID(namespace, key string) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(namespace+"|"+key)).String()
}

func buildFilter(namespace string, filter map[string]string) map[string]any {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	must := []any{matchCondition(payloadNamespaceKey, namespace)}
	for _, k := range keys {
		must = append(must, matchCondition(k, filter[k]))
	}
	return map[string]any{"must": must}
}

func matchCondition(key, value string) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}
