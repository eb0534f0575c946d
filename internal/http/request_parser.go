// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for reading form or JSON request bodies
// into the key/value pairs dashboard events carry.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
)

const maxBodyBytes = 64 << 10

// parseFields reads the named fields from a form-encoded or JSON body and
// returns them as alternating key/value pairs.
func parseFields(r *http.Request, names ...string) ([]string, error) {
	get, err := bodyReader(r)
	if err != nil {
		return nil, err
	}
	kv := make([]string, 0, len(names)*2)
	for _, name := range names {
		v := get(name)
		if name != "password" {
			v = sanitizeInput(v)
		}
		kv = append(kv, name, v)
	}
	return kv, nil
}

// bodyReader returns a lookup over the request body. Form bodies may already
// have been parsed by the CSRF middleware, so r.PostForm is used for them.
func bodyReader(r *http.Request) (func(string) string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		return r.PostForm.Get, nil
	}

	raw := map[string]any{}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse json body: %w", err)
	}
	return func(key string) string { return stringValue(raw[key]) }, nil
}

// valueOf looks a key up in alternating key/value pairs.
func valueOf(kv []string, key string) string {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == key {
			return kv[i+1]
		}
	}
	return ""
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
