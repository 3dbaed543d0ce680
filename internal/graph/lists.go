package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// CreateItem creates one list item from a flat field map and returns its
// identifier. Failures are returned as-is; nothing here retries.
func (c *Client) CreateItem(ctx context.Context, fields domain.RemoteFields) (string, error) {
	payload, err := primitiveFields(fields)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(map[string]any{"fields": payload})
	if err != nil {
		return "", fmt.Errorf("encode list item: %w", err)
	}

	resp, err := c.do(ctx, request{
		op:          "create list item",
		method:      http.MethodPost,
		url:         c.itemsURL(),
		contentType: "application/json",
		body:        body,
	})
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", apperrors.NewUpstreamError(apperrors.CodeUpstream, "create list item", resp.status, resp.body)
	}

	var created struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(resp.body, &created); err != nil {
		return "", fmt.Errorf("decode list item: %w", err)
	}
	id := strings.Trim(string(bytes.TrimSpace(created.ID)), `"`)
	if id == "" || id == "null" {
		return "", apperrors.NewUpstreamError(apperrors.CodeUpstream, "create list item: missing id", resp.status, resp.body)
	}
	return id, nil
}

// primitiveFields rejects nested values and renders times as RFC 3339.
func primitiveFields(fields domain.RemoteFields) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for name, value := range fields {
		switch v := value.(type) {
		case nil, string, bool, json.Number,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			out[name] = v
		case time.Time:
			if v.IsZero() {
				out[name] = nil
				continue
			}
			out[name] = v.UTC().Format(time.RFC3339)
		default:
			if prim, ok := namedPrimitive(value); ok {
				out[name] = prim
				continue
			}
			return nil, apperrors.NewValidationError("list fields must be primitive values", map[string]any{
				"field": name,
				"type":  fmt.Sprintf("%T", value),
			})
		}
	}
	return out, nil
}

// namedPrimitive unwraps named scalar types such as domain.TicketStatus.
func namedPrimitive(value any) (any, bool) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return nil, false
}
