package broker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gridbroker/gridbroker/internal/config"
	"github.com/gridbroker/gridbroker/internal/datasource"
	"github.com/gridbroker/gridbroker/internal/datasource/sqlbuild"
)

// Sentinel operation values standing in for payloads the envelope serialiser
// cannot express directly.
const (
	SentinelNull        = "__ISC_NULL__"
	SentinelEmptyString = "__ISC_EMPTY_STRING__"
)

// Transaction is one parsed envelope: the operations to run plus the framing
// attributes the formatter needs to answer in kind.
type Transaction struct {
	TransactionNum string
	JSCallback     string
	DataFormat     string
	Operations     []Operation
}

// EnvelopeParser turns HTTP requests into transactions. ParseIDA handles the
// framework's native transport; ParseREST handles the REST route with its URL
// overlay and parameter merging.
type EnvelopeParser struct {
	Pool   *datasource.Pool
	Config *config.Config
}

// ParseIDA parses the native transport: the request must carry the RPC marker
// and a _transaction parameter holding the envelope as JSON or XML.
func (p *EnvelopeParser) ParseIDA(r *http.Request) (*Transaction, error) {
	if r.FormValue("isc_rpc") != "1" && r.FormValue("is_isc_rpc") != "true" {
		return nil, ErrNotRPC
	}

	raw := r.FormValue("_transaction")
	if raw == "" {
		return nil, ErrResubmit
	}

	envelope, err := parseEnvelopeValue([]byte(raw))
	if err != nil {
		return nil, err
	}
	return p.buildTransaction(r, envelope)
}

// parseEnvelopeValue decodes the envelope as JSON first and falls back to
// XML, matching what the client libraries emit.
func parseEnvelopeValue(data []byte) (map[string]interface{}, error) {
	var jsonValue interface{}
	if err := json.Unmarshal(data, &jsonValue); err == nil {
		if m, ok := jsonValue.(map[string]interface{}); ok {
			return m, nil
		}
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrEnvelopeParse)
	}

	xmlValue, err := decodeXMLValue(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEnvelopeParse, err)
	}
	if m, ok := xmlValue.(map[string]interface{}); ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: top-level value is not an object", ErrEnvelopeParse)
}

func (p *EnvelopeParser) buildTransaction(r *http.Request, envelope map[string]interface{}) (*Transaction, error) {
	tx := &Transaction{
		TransactionNum: r.FormValue("isc_tnum"),
		JSCallback:     stringField(envelope, "jscallback"),
		DataFormat:     p.dataFormat(r),
	}
	// The envelope's own transactionNum wins over the query parameter.
	if num := stringField(envelope, "transactionNum"); num != "" {
		tx.TransactionNum = num
	}

	elements, err := operationElements(envelope)
	if err != nil {
		return nil, err
	}

	for i, element := range elements {
		op, err := p.classifyOperation(element)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i+1, err)
		}
		tx.Operations = append(tx.Operations, op)
	}
	return tx, nil
}

// operationElements extracts the operations list, tolerating the XML list
// convention and a single bare object.
func operationElements(envelope map[string]interface{}) ([]interface{}, error) {
	elements, ok := xmlListValue(envelope["operations"])
	if ok {
		return elements, nil
	}
	if single, isMap := envelope["operations"].(map[string]interface{}); isMap {
		return []interface{}{single}, nil
	}
	if envelope["operations"] == nil {
		return []interface{}{}, nil
	}
	return nil, fmt.Errorf("%w: operations is not a list", ErrEnvelopeParse)
}

// classifyOperation decides what one operations[] element is: a data source
// operation, a sentinel RPC, or a free-form RPC.
func (p *EnvelopeParser) classifyOperation(element interface{}) (Operation, error) {
	switch v := element.(type) {
	case string:
		switch v {
		case SentinelNull:
			return p.rpcOperation(&RPCRequest{Data: nil}), nil
		case SentinelEmptyString:
			return p.rpcOperation(&RPCRequest{Data: ""}), nil
		}
		return p.rpcOperation(&RPCRequest{Data: v}), nil
	case map[string]interface{}:
		if _, hasAppID := v["appID"]; hasAppID {
			if _, hasOperation := v["operation"]; hasOperation {
				req, err := p.buildDSRequest(v)
				if err != nil {
					return nil, err
				}
				return p.dsOperation(req), nil
			}
		}
		return p.rpcOperation(&RPCRequest{
			AppID:      stringField(v, "appID"),
			ClassName:  stringField(v, "className"),
			MethodName: stringField(v, "methodName"),
			Data:       v["data"],
		}), nil
	}
	return p.rpcOperation(&RPCRequest{Data: element}), nil
}

func (p *EnvelopeParser) dsOperation(req *datasource.DSRequest) *DSOperation {
	return &DSOperation{Pool: p.Pool, Request: req, WithStacktrace: p.Config.RPCStacktrace()}
}

func (p *EnvelopeParser) rpcOperation(req *RPCRequest) *RPCOperation {
	return &RPCOperation{Request: req, WithStacktrace: p.Config.RPCStacktrace()}
}

// buildDSRequest maps one envelope element onto a data source request. The
// data source and operation type come from operationConfig when present, and
// from splitting `operation` at its last underscore otherwise.
func (p *EnvelopeParser) buildDSRequest(element map[string]interface{}) (*datasource.DSRequest, error) {
	operationID := stringField(element, "operation")

	dsName, opTypeName := splitOperationID(operationID)
	textMatchStyle := ""
	// Element-level attributes (set by the REST parameter overlay) take
	// precedence over the operation id, operationConfig over both.
	if v := stringField(element, "dataSource"); v != "" {
		dsName = v
	}
	if v := stringField(element, "operationType"); v != "" {
		opTypeName = v
	}
	if cfg, ok := element["operationConfig"].(map[string]interface{}); ok {
		if v := stringField(cfg, "dataSource"); v != "" {
			dsName = v
		}
		if v := stringField(cfg, "operationType"); v != "" {
			opTypeName = v
		}
		textMatchStyle = stringField(cfg, "textMatchStyle")
	}
	if v := stringField(element, "textMatchStyle"); v != "" {
		textMatchStyle = v
	}
	if dsName == "" {
		return nil, fmt.Errorf("%w: operation %q names no data source", ErrEnvelopeParse, operationID)
	}

	opType, err := datasource.ParseOperationType(opTypeName)
	if err != nil {
		return nil, fmt.Errorf("operation %q: %w", operationID, err)
	}

	req := &datasource.DSRequest{
		AppID:          stringField(element, "appID"),
		DataSource:     dsName,
		OperationType:  opType,
		OperationID:    operationID,
		ComponentID:    stringField(element, "componentId"),
		TextMatchStyle: sqlbuild.TextMatchStyle(textMatchStyle),
		Values:         mapField(element, "values"),
		OldValues:      mapField(element, "oldValues"),
		SortBy:         stringListField(element["sortBy"]),
		StartRow:       int64Field(element, "startRow"),
		EndRow:         int64Field(element, "endRow"),
		RawPK:          stringField(element, "_rawPk"),
	}

	// Fetch criteria travel in `data` when no explicit criteria object is
	// present; the same slot carries the values of mutating operations.
	req.Criteria = mapField(element, "criteria")
	data := mapField(element, "data")
	if req.Criteria == nil && opType != datasource.OpAdd {
		req.Criteria = data
	}
	if req.Values == nil {
		switch opType {
		case datasource.OpAdd, datasource.OpUpdate:
			req.Values = data
		}
	}

	if sqlbuild.IsAdvancedCriteria(req.Criteria) {
		advanced, err := sqlbuild.ParseCriterion(req.Criteria)
		if err != nil {
			return nil, fmt.Errorf("operation %q: %w", operationID, err)
		}
		req.Advanced = advanced
	}
	return req, nil
}

// dataFormat resolves the response serialisation requested by the client.
func (p *EnvelopeParser) dataFormat(r *http.Request) string {
	param := p.Config.REST().DynamicDataFormatParamName
	if param == "" {
		param = "isc_dataFormat"
	}
	if v := r.FormValue(param); v != "" {
		return v
	}
	return "json"
}

// splitOperationID breaks "<dsName>_<opType>" at the last underscore.
func splitOperationID(operationID string) (dsName, opType string) {
	for i := len(operationID) - 1; i >= 0; i-- {
		if operationID[i] == '_' {
			return operationID[:i], operationID[i+1:]
		}
	}
	return operationID, ""
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func mapField(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

// stringListField accepts a single string, a JSON list, or an XML list.
func stringListField(v interface{}) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []interface{}:
		var out []string
		for _, el := range t {
			if s, ok := el.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case map[string]interface{}:
		if list, ok := xmlListValue(t); ok {
			return stringListField(list)
		}
	}
	return nil
}

// int64Field coerces JSON numbers and XML text into a row index.
func int64Field(m map[string]interface{}, key string) *int64 {
	switch v := m[key].(type) {
	case float64:
		n := int64(v)
		return &n
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return &n
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return &n
		}
	}
	return nil
}
