package transport

import (
	"encoding/base64"
	"net/http"
	"strings"

	"apiorch/pkg/models"
)

const defaultAPIKeyHeader = "X-API-Key"

// ApplyAuth sets the credentials described by the endpoint's auth type.
// Unknown or empty auth types leave the headers untouched.
func ApplyAuth(h http.Header, ep models.Endpoint) {
	switch strings.ToLower(ep.AuthType) {
	case models.AuthBearer:
		token := ep.ConfigString(models.ConfigToken)
		if token == "" {
			token = ep.ConfigString(models.ConfigAPIKey)
		}
		if token != "" {
			h.Set("Authorization", "Bearer "+token)
		}
	case models.AuthAPIKey:
		key := ep.ConfigString(models.ConfigAPIKey)
		if key == "" {
			return
		}
		header := ep.ConfigString(models.ConfigAPIKeyHeader)
		if header == "" {
			header = defaultAPIKeyHeader
		}
		h.Set(header, key)
	case models.AuthBasic:
		creds := ep.ConfigString(models.ConfigUsername) + ":" + ep.ConfigString(models.ConfigPassword)
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
	}
}

// JoinURL appends path to base without doubling the slash between them.
func JoinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
