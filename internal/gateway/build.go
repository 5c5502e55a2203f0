package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/enterprise-universe/universe-gateway/internal/credential"
	"github.com/enterprise-universe/universe-gateway/internal/registry"
	"github.com/enterprise-universe/universe-gateway/internal/types"
)

// auth is what one scheme contributes to a request.
type auth struct {
	header      string // header name, empty when none
	headerValue string
	query       []queryParam
	pathSegment string
}

type queryParam struct {
	name, value string
}

// authHandler resolves the credential for one scheme.
type authHandler func(d types.ProviderDescriptor, creds *credential.Store) (auth, error)

// authHandlers has exactly one entry per types.AuthScheme.
var authHandlers = map[types.AuthScheme]authHandler{
	types.AuthNone:         noAuth,
	types.AuthBearer:       bearerAuth,
	types.AuthBasic:        basicAuth,
	types.AuthAPIKeyHeader: apiKeyHeaderAuth,
	types.AuthAPIKeyQuery:  apiKeyQueryAuth,
	types.AuthPathInjected: pathInjectedAuth,
}

func noAuth(types.ProviderDescriptor, *credential.Store) (auth, error) {
	return auth{}, nil
}

func bearerAuth(d types.ProviderDescriptor, creds *credential.Store) (auth, error) {
	token, err := lookupSecret(d, creds, credential.SlotAccessToken, credential.SlotAPIKey)
	if err != nil {
		return auth{}, err
	}
	return auth{header: "Authorization", headerValue: d.BearerPrefix() + " " + token}, nil
}

func basicAuth(d types.ProviderDescriptor, creds *credential.Store) (auth, error) {
	userKeys := slotKeys(d, false, credential.SlotUsername)
	passKeys := slotKeys(d, false, credential.SlotPassword)
	_, user, okUser := creds.First(userKeys...)
	_, pass, okPass := creds.First(passKeys...)
	if !okUser || !okPass {
		return auth{}, &MissingCredentialError{
			Provider: d.Key(),
			Scheme:   d.AuthScheme,
			Tried:    append(userKeys, passKeys...),
		}
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	return auth{header: "Authorization", headerValue: "Basic " + encoded}, nil
}

func apiKeyHeaderAuth(d types.ProviderDescriptor, creds *credential.Store) (auth, error) {
	name := d.AuthParamName()
	key, err := lookupSecret(d, creds, name, credential.SlotAPIKey)
	if err != nil {
		return auth{}, err
	}
	return auth{header: name, headerValue: key}, nil
}

func apiKeyQueryAuth(d types.ProviderDescriptor, creds *credential.Store) (auth, error) {
	var a auth
	for i, name := range d.AuthParams {
		var keys []string
		if i == 0 {
			keys = slotKeys(d, true, name, credential.SlotAPIKey)
		} else {
			// Secondary secrets only come from their own slot.
			keys = slotKeys(d, false, name)
		}
		value, err := lookupKeys(d, creds, keys)
		if err != nil {
			return auth{}, err
		}
		a.query = append(a.query, queryParam{name: name, value: value})
	}
	return a, nil
}

func pathInjectedAuth(d types.ProviderDescriptor, creds *credential.Store) (auth, error) {
	key, err := lookupSecret(d, creds, credential.SlotAPIKey)
	if err != nil {
		return auth{}, err
	}
	return auth{pathSegment: key}, nil
}

// slotKeys lists the store keys for slots in lookup order: provider-specific
// slots, then the bare provider name (single-secret schemes only), then the
// generic slots.
func slotKeys(d types.ProviderDescriptor, single bool, slots ...string) []string {
	keys := make([]string, 0, 2*len(slots)+1)
	for _, s := range slots {
		keys = append(keys, credential.Key(d.Name, s))
	}
	if single {
		keys = append(keys, d.Name)
	}
	return append(keys, slots...)
}

func lookupSecret(d types.ProviderDescriptor, creds *credential.Store, slots ...string) (string, error) {
	return lookupKeys(d, creds, slotKeys(d, true, slots...))
}

func lookupKeys(d types.ProviderDescriptor, creds *credential.Store, keys []string) (string, error) {
	_, v, ok := creds.First(keys...)
	if !ok {
		return "", &MissingCredentialError{Provider: d.Key(), Scheme: d.AuthScheme, Tried: keys}
	}
	return v, nil
}

// prepared is a fully built request that has not been sent.
type prepared struct {
	desc   types.ProviderDescriptor
	method string
	url    string
	// safeURL is url without credentials, for logs and errors.
	safeURL string
	header  http.Header
	body    []byte
}

func (c *Client) prepare(providerKey, path string, opts CallOptions) (*prepared, error) {
	d, err := c.providers.Lookup(providerKey)
	if err != nil {
		var amb *registry.AmbiguousNameError
		if errors.As(err, &amb) {
			return nil, &UnknownProviderError{Provider: providerKey, Candidates: amb.Candidates}
		}
		return nil, &UnknownProviderError{Provider: providerKey}
	}

	method, err := resolveMethod(opts.Method, opts.Body != nil)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", d.Key(), err)
	}

	base, err := c.resolveBase(d, opts.PathVars)
	if err != nil {
		return nil, err
	}

	handler, ok := authHandlers[d.AuthScheme]
	if !ok {
		return nil, fmt.Errorf("provider %s: unsupported auth scheme %q", d.Key(), d.AuthScheme)
	}
	a, err := handler(d, c.creds)
	if err != nil {
		return nil, err
	}

	if err := c.checkConflicts(d, a, path, opts); err != nil {
		return nil, err
	}

	var body []byte
	if opts.Body != nil {
		body, err = json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w: %w", d.Key(), ErrInvalidBody, err)
		}
	}

	u, safe := buildURL(base, path, a, opts.Params)
	return &prepared{
		desc:    d,
		method:  method,
		url:     u,
		safeURL: safe,
		header:  c.buildHeader(d, a, opts.Headers),
		body:    body,
	}, nil
}

func resolveMethod(method string, hasBody bool) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		if hasBody {
			return http.MethodPost, nil
		}
		return http.MethodGet, nil
	}
	switch m {
	case http.MethodGet:
		if hasBody {
			return "", ErrBodyWithGet
		}
		return m, nil
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
}

// resolveBase substitutes {name} placeholders from path vars, then from the
// "<provider>.<name>" credential.
func (c *Client) resolveBase(d types.ProviderDescriptor, vars map[string]string) (string, error) {
	base := d.BaseURL
	for {
		start := strings.IndexByte(base, '{')
		if start < 0 {
			return base, nil
		}
		end := strings.IndexByte(base[start:], '}')
		if end < 0 {
			return "", &PlaceholderError{Provider: d.Key(), Name: base[start+1:]}
		}
		name := base[start+1 : start+end]
		value, ok := vars[name]
		if !ok || value == "" {
			value, ok = c.creds.Get(credential.Key(d.Name, name))
		}
		if !ok || value == "" {
			return "", &PlaceholderError{Provider: d.Key(), Name: name}
		}
		base = base[:start] + url.PathEscape(value) + base[start+end+1:]
	}
}

func (c *Client) checkConflicts(d types.ProviderDescriptor, a auth, path string, opts CallOptions) error {
	if a.header != "" {
		for name := range opts.Headers {
			if strings.EqualFold(name, a.header) {
				c.logger.Warn("caller header collides with provider auth header",
					"provider", d.Key(), "header", a.header)
				return &HeaderConflictError{Provider: d.Key(), Name: a.header}
			}
		}
	}
	if len(a.query) == 0 {
		return nil
	}
	// The path may carry its own query string; its keys count as caller params.
	var inPath url.Values
	if _, raw, ok := strings.Cut(path, "?"); ok {
		// ParseQuery keeps every well-formed pair even when it reports an error.
		inPath, _ = url.ParseQuery(raw)
	}
	for _, q := range a.query {
		_, inParams := opts.Params[q.name]
		if inParams || inPath.Has(q.name) {
			c.logger.Warn("caller query parameter collides with provider auth parameter",
				"provider", d.Key(), "param", q.name)
			return &HeaderConflictError{Provider: d.Key(), Name: q.name, Query: true}
		}
	}
	return nil
}

// buildURL assembles base, path-injected credential, path, caller params in
// key order, then auth params in descriptor order. The second result omits
// every credential.
func buildURL(base, path string, a auth, params map[string]any) (full, safe string) {
	full = base
	if a.pathSegment != "" {
		full += "/" + url.PathEscape(a.pathSegment)
	}
	full += path
	safe = base + stripQuery(path)

	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var q strings.Builder
	for _, k := range keys {
		appendQuery(&q, k, stringify(params[k]))
	}
	for _, p := range a.query {
		appendQuery(&q, p.name, p.value)
	}
	if q.Len() == 0 {
		return full, safe
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return full + sep + q.String(), safe
}

func appendQuery(b *strings.Builder, k, v string) {
	if b.Len() > 0 {
		b.WriteByte('&')
	}
	b.WriteString(url.QueryEscape(k))
	b.WriteByte('=')
	b.WriteString(url.QueryEscape(v))
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

// stringify coerces a query value to its string form. Slices and arrays of
// any element type are joined with commas.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case []string:
		return strings.Join(val, ",")
	case []byte:
		return string(val)
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			parts := make([]string, rv.Len())
			for i := range parts {
				parts[i] = stringify(rv.Index(i).Interface())
			}
			return strings.Join(parts, ",")
		}
		return fmt.Sprint(val)
	}
}

func (c *Client) buildHeader(d types.ProviderDescriptor, a auth, extra map[string]string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	if c.userAgent != "" {
		h.Set("User-Agent", c.userAgent)
	}
	for k, v := range d.Headers {
		h.Set(k, v)
	}
	if a.header != "" {
		h.Set(a.header, a.headerValue)
	}
	// Callers may change Content-Type but not Accept; only the catalog can.
	accept := h.Get("Accept")
	for k, v := range extra {
		h.Set(k, v)
	}
	h.Set("Accept", accept)
	return h
}

// newRequest turns a prepared call into an *http.Request bound to ctx.
func (p *prepared) newRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}
	req, err := http.NewRequestWithContext(ctx, p.method, p.url, body)
	if err != nil {
		return nil, fmt.Errorf("provider %s: create http request for %s: %w", p.desc.Key(), p.safeURL, redactURLError(err))
	}
	req.Header = p.header.Clone()
	return req, nil
}
