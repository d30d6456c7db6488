package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	agentgate "github.com/agentgate/agentgate"
)

// DefaultIPFSGateway resolves ipfs:// registration URIs when no gateway is
// configured.
const DefaultIPFSGateway = "https://ipfs.io/ipfs/"

// DefaultFetchTimeout bounds one registration record fetch.
const DefaultFetchTimeout = 6 * time.Second

const maxRecordBytes = 1 << 20

// recordSchema is the minimal shape a fetched document must satisfy before it
// is trusted as a registration record. Validation failures are soft: they
// surface as registration_unreachable, never abort the whole resolution.
const recordSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"type": {"type": "string"},
		"description": {"type": "string"},
		"supportsPayment": {"type": "boolean"},
		"active": {"type": "boolean"},
		"services": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "endpoint"],
				"properties": {
					"name": {"type": "string"},
					"endpoint": {"type": "string"},
					"version": {"type": "string"},
					"skills": {"type": "array", "items": {"type": "string"}},
					"domains": {"type": "array", "items": {"type": "string"}}
				}
			}
		},
		"crossReferences": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["localId", "registryRef"],
				"properties": {
					"localId": {"type": "integer", "minimum": 0},
					"registryRef": {"type": "string"}
				}
			}
		}
	}
}`

var recordSchemaLoader = gojsonschema.NewStringLoader(recordSchema)

// fetcher retrieves and validates registration records from the URI forms a
// registry may store: inline base64 JSON, inline percent-encoded JSON,
// ipfs:// via a gateway, and plain http(s)://.
type fetcher struct {
	client      *http.Client
	ipfsGateway string
	timeout     time.Duration
}

func newFetcher(client *http.Client, ipfsGateway string, timeout time.Duration) *fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if ipfsGateway == "" {
		ipfsGateway = DefaultIPFSGateway
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &fetcher{client: client, ipfsGateway: ipfsGateway, timeout: timeout}
}

// Fetch resolves uri to a validated Record. All failures come back as
// registration_unreachable so the caller can fold them into a partial result.
func (f *fetcher) Fetch(ctx context.Context, uri string) (*Record, error) {
	raw, err := f.fetchBytes(ctx, uri)
	if err != nil {
		return nil, err
	}
	return parseRecord(raw)
}

func (f *fetcher) fetchBytes(ctx context.Context, uri string) ([]byte, error) {
	switch {
	case strings.HasPrefix(uri, "data:"):
		return decodeDataURI(uri)

	case strings.HasPrefix(uri, "ipfs://"):
		return f.fetchHTTP(ctx, f.ipfsGateway+strings.TrimPrefix(uri, "ipfs://"))

	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return f.fetchHTTP(ctx, uri)

	default:
		return nil, agentgate.Errorf(agentgate.ErrCodeRegistrationUnreachable,
			"unsupported registration URI scheme in %q", uri)
	}
}

func (f *fetcher) fetchHTTP(ctx context.Context, uri string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, agentgate.Errorf(agentgate.ErrCodeRegistrationUnreachable,
			"invalid registration URI %q: %v", uri, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, agentgate.Errorf(agentgate.ErrCodeRegistrationUnreachable,
			"registration fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, agentgate.Errorf(agentgate.ErrCodeRegistrationUnreachable,
			"registration fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordBytes))
	if err != nil {
		return nil, agentgate.Errorf(agentgate.ErrCodeRegistrationUnreachable,
			"registration read failed: %v", err)
	}
	return data, nil
}

// decodeDataURI handles the two inline forms: "data:...;base64,<b64>" and
// "data:...,<percent-encoded>".
func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.Index(uri, ",")
	if comma < 0 {
		return nil, agentgate.Errorf(agentgate.ErrCodeRegistrationUnreachable,
			"malformed data URI")
	}
	meta, payload := uri[len("data:"):comma], uri[comma+1:]

	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, agentgate.Errorf(agentgate.ErrCodeRegistrationUnreachable,
				"invalid base64 data URI: %v", err)
		}
		return data, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, agentgate.Errorf(agentgate.ErrCodeRegistrationUnreachable,
			"invalid percent-encoded data URI: %v", err)
	}
	return []byte(decoded), nil
}

func parseRecord(raw []byte) (*Record, error) {
	result, err := gojsonschema.Validate(recordSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, agentgate.Errorf(agentgate.ErrCodeRegistrationUnreachable,
			"registration record is not valid JSON: %v", err)
	}
	if !result.Valid() {
		return nil, agentgate.Errorf(agentgate.ErrCodeRegistrationUnreachable,
			"registration record failed schema validation: %s", schemaErrors(result))
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, agentgate.Errorf(agentgate.ErrCodeRegistrationUnreachable,
			"registration record decode failed: %v", err)
	}
	return &record, nil
}

func schemaErrors(result *gojsonschema.Result) string {
	errs := result.Errors()
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s", e))
	}
	return strings.Join(parts, "; ")
}
