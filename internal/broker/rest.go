package broker

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

const defaultAppID = "defaultApplication"

// reservedParams are transport-control parameters that never merge into an
// operation's data.
var reservedParams = map[string]bool{
	"_transaction":       true,
	"isc_rpc":            true,
	"is_isc_rpc":         true,
	"isc_xhr":            true,
	"xmlHttp":            true,
	"isc_v":              true,
	"isc_clientVersion":  true,
	"isc_tnum":           true,
	"isc_resubmit":       true,
	"isc_dataFormat":     true,
	"isc_metaDataPrefix": true,
	"isc_dd":             true,
	"docDomain":          true,
	"locale":             true,
}

// ParseREST parses the REST route. The transaction comes from a _transaction
// parameter, from the request body as a bare JSON/XML document, or is
// synthesised from the URL and parameters alone. URL path segments beyond the
// base path overlay data source, operation type and primary key onto every
// operation.
func (p *EnvelopeParser) ParseREST(r *http.Request) (*Transaction, error) {
	params, body, err := splitParamsAndBody(r)
	if err != nil {
		return nil, err
	}

	envelope, err := p.restEnvelope(params, body)
	if err != nil {
		return nil, err
	}

	elements, err := operationElements(envelope)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		elements = []interface{}{map[string]interface{}{}}
	}

	dsName, opType, rawPK := p.restPathOverlay(r.URL.Path)

	tx := &Transaction{
		TransactionNum: params.Get("isc_tnum"),
		JSCallback:     stringField(envelope, "jscallback"),
		DataFormat:     p.restDataFormat(params),
	}
	if num := stringField(envelope, "transactionNum"); num != "" {
		tx.TransactionNum = num
	}

	for i, element := range elements {
		m, ok := element.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: REST operation %d is not an object", ErrEnvelopeParse, i+1)
		}

		p.overlayRESTOperation(m, r.Method, dsName, opType, rawPK)
		p.mergeParams(m, params)

		op, err := p.classifyOperation(m)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i+1, err)
		}
		tx.Operations = append(tx.Operations, op)
	}
	return tx, nil
}

// splitParamsAndBody separates transport parameters from a document body.
// Form-encoded bodies contribute parameters; any other body is returned raw.
func splitParamsAndBody(r *http.Request) (url.Values, []byte, error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "application/x-www-form-urlencoded" || contentType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return nil, nil, fmt.Errorf("parsing form body: %w", err)
		}
		return r.Form, nil, nil
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("reading request body: %w", err)
		}
	}
	return r.URL.Query(), body, nil
}

// restEnvelope resolves the transaction document: explicit _transaction
// parameter first, then the body, then an empty envelope built from scratch.
func (p *EnvelopeParser) restEnvelope(params url.Values, body []byte) (map[string]interface{}, error) {
	if raw := params.Get("_transaction"); raw != "" {
		return parseEnvelopeValue([]byte(raw))
	}

	if len(body) > 0 {
		envelope, err := parseEnvelopeValue(body)
		if err != nil {
			return nil, err
		}
		// A bare operation document is accepted as a one-operation
		// transaction.
		if _, hasOps := envelope["operations"]; !hasOps {
			return map[string]interface{}{
				"operations": []interface{}{envelope},
			}, nil
		}
		return envelope, nil
	}

	return map[string]interface{}{
		"operations": []interface{}{map[string]interface{}{}},
	}, nil
}

// restPathOverlay decodes `/<basePath>/<dsName>[/<opType>][/<pk>]`.
func (p *EnvelopeParser) restPathOverlay(path string) (dsName, opType, rawPK string) {
	basePath := p.Config.Router().RESTCallPath
	trimmed := strings.TrimPrefix(path, basePath)

	var parts []string
	for _, part := range strings.Split(trimmed, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}

	if len(parts) > 0 {
		dsName = parts[0]
	}
	if len(parts) > 1 {
		opType = parts[1]
	}
	if len(parts) > 2 {
		rawPK = parts[2]
	}
	return dsName, opType, rawPK
}

// overlayRESTOperation applies the URL overlay and the defaults that make a
// bare REST call a well-formed DS operation.
func (p *EnvelopeParser) overlayRESTOperation(element map[string]interface{}, method, dsName, opType, rawPK string) {
	if _, ok := element["appID"]; !ok {
		element["appID"] = defaultAppID
	}
	if _, ok := element["operation"]; !ok {
		element["operation"] = ""
	}
	if dsName != "" {
		element["dataSource"] = dsName
	}
	if opType != "" {
		element["operationType"] = opType
	} else if stringField(element, "operationType") == "" {
		element["operationType"] = operationTypeForMethod(method)
	}
	if rawPK != "" {
		element["_rawPk"] = rawPK
	}
}

func operationTypeForMethod(method string) string {
	switch method {
	case http.MethodPost:
		return "add"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "remove"
	}
	return "fetch"
}

// mergeParams folds the remaining request parameters into the operation.
// Prefixed parameters decode onto the operation itself; the rest become data.
func (p *EnvelopeParser) mergeParams(element map[string]interface{}, params url.Values) {
	prefix := params.Get("isc_metaDataPrefix")
	if prefix == "" {
		prefix = p.Config.MetaDataPrefix()
	}
	dataFormatParam := p.Config.REST().DynamicDataFormatParamName

	for name, values := range params {
		if reservedParams[name] || name == dataFormatParam || len(values) == 0 {
			continue
		}

		if prefix != "" && strings.HasPrefix(name, prefix) {
			key := strings.TrimPrefix(name, prefix)
			if key == "" {
				continue
			}
			if _, present := element[key]; !present {
				element[key] = decodeParamValue(values[0])
			}
			continue
		}

		data, ok := element["data"].(map[string]interface{})
		if !ok {
			data = map[string]interface{}{}
			element["data"] = data
		}
		if _, present := data[name]; present {
			continue
		}
		if len(values) == 1 {
			data[name] = values[0]
		} else {
			list := make([]interface{}, 0, len(values))
			for _, v := range values {
				list = append(list, v)
			}
			data[name] = list
		}
	}
}

// decodeParamValue tries to decode a parameter as JSON, falling back to the
// raw string. This lets `_startRow=20` arrive as a number and
// `_sortBy=["name"]` as a list.
func decodeParamValue(raw string) interface{} {
	var decoded interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		return decoded
	}
	return raw
}

func (p *EnvelopeParser) restDataFormat(params url.Values) string {
	param := p.Config.REST().DynamicDataFormatParamName
	if param == "" {
		param = "isc_dataFormat"
	}
	if v := params.Get(param); v != "" {
		return v
	}
	return "json"
}
