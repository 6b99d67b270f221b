package broker

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/gridbroker/gridbroker/internal/config"
	"github.com/gridbroker/gridbroker/internal/datasource"
)

const (
	rpcResponseStart = "//isc_RPCResponseStart-->"
	rpcResponseEnd   = "//isc_RPCResponseEnd"

	// Expired long ago; browsers must not cache RPC bodies.
	expiresHeader = "Thu, 01 Jan 1970 00:00:00 GMT"
)

// Formatter serialises a response batch into the body shape the client
// transport expects: framed JSON/XML for XHR, an HTML trampoline for the
// hidden-frame transport, and plain wrapped documents for REST.
type Formatter struct {
	Config *config.Config
}

// WriteIDA answers a native-transport request.
func (f *Formatter) WriteIDA(w http.ResponseWriter, r *http.Request, tx *Transaction, responses []*Response) {
	body, err := f.serialize(tx.DataFormat, responses, false)
	if err != nil {
		f.WriteTopLevelError(w, r, err)
		return
	}

	framed := rpcResponseStart + body + rpcResponseEnd
	setNoCacheHeaders(w)

	if isXHR(r) {
		w.Header().Set("Content-Type", contentTypeFor(tx.DataFormat))
		fmt.Fprint(w, framed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	fmt.Fprint(w, hiddenFrameBody(r, tx, framed))
}

// WriteREST answers a REST-route request.
func (f *Formatter) WriteREST(w http.ResponseWriter, r *http.Request, tx *Transaction, responses []*Response) {
	body, err := f.serialize(tx.DataFormat, responses, f.Config.REST().WrapJSONResponses)
	if err != nil {
		f.WriteTopLevelError(w, r, err)
		return
	}

	setNoCacheHeaders(w)

	restCfg := f.Config.REST()
	if tx.DataFormat == "json" && (restCfg.JSONPrefix != "" || restCfg.JSONSuffix != "") {
		// Hijacking protection makes the body unparsable as bare JSON, so it
		// ships as plain text.
		w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
		fmt.Fprint(w, restCfg.JSONPrefix+body+restCfg.JSONSuffix)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(tx.DataFormat))
	fmt.Fprint(w, body)
}

// WriteResubmit answers an IDA call that arrived without its transaction: an
// HTML body telling the client library to retry or give up.
func (f *Formatter) WriteResubmit(w http.ResponseWriter, r *http.Request) {
	var call string
	switch {
	case r.FormValue("isc_resubmit") != "":
		call = "parent.isc.RPCManager.retryOperation(window.name);"
	case isXHR(r):
		call = "parent.isc.RPCManager.handleRequestAborted(window.name);"
	default:
		call = "parent.isc.RPCManager.handleMaxPostSizeExceeded(window.name);"
	}

	setNoCacheHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	fmt.Fprintf(w, "<HTML><BODY ONLOAD='if (window.name && parent.isc) %s'></BODY></HTML>", call)
}

// WriteTopLevelError reports a failure above the operation boundary: envelope
// parse errors and init-phase failures produce one failure slot instead of a
// per-operation list.
func (f *Formatter) WriteTopLevelError(w http.ResponseWriter, r *http.Request, err error) {
	log.Ctx(r.Context()).Errorf("request failed: %s", err)

	resp := NewErrorResponse(datasource.StatusFailure, err, false, f.Config.RPCStacktrace())
	body, serErr := f.serialize("json", []*Response{resp}, false)
	if serErr != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	setNoCacheHeaders(w)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	fmt.Fprint(w, rpcResponseStart+body+rpcResponseEnd)
}

// serialize renders the batch in the requested data format. With wrap set,
// JSON responses get the `{response: ...}` / `{responses: [...]}` wrappers of
// the REST contract.
func (f *Formatter) serialize(dataFormat string, responses []*Response, wrap bool) (string, error) {
	switch dataFormat {
	case "", "json":
		return serializeJSON(responses, wrap)
	case "xml":
		return serializeXML(responses), nil
	case "custom":
		var b strings.Builder
		for _, resp := range responses {
			fmt.Fprintf(&b, "%v", resp.Data)
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("unknown data format %q", dataFormat)
}

func serializeJSON(responses []*Response, wrap bool) (string, error) {
	var doc interface{}
	if wrap {
		wrapped := make([]interface{}, 0, len(responses))
		for _, resp := range responses {
			wrapped = append(wrapped, map[string]interface{}{"response": resp.wireMap()})
		}
		if len(wrapped) == 1 {
			doc = wrapped[0]
		} else {
			doc = map[string]interface{}{"responses": wrapped}
		}
	} else {
		maps := make([]interface{}, 0, len(responses))
		for _, resp := range responses {
			maps = append(maps, resp.wireMap())
		}
		doc = maps
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding response batch: %w", err)
	}
	return string(data), nil
}

func serializeXML(responses []*Response) string {
	var b strings.Builder
	if len(responses) > 1 {
		b.WriteString("<responses>")
	}
	for _, resp := range responses {
		encodeXMLValue(&b, "response", resp.wireMap())
	}
	if len(responses) > 1 {
		b.WriteString("</responses>")
	}
	return b.String()
}

// encodeXMLValue renders a generic value under the given element name. Lists
// repeat the element name; maps emit one child per key in sorted order.
func encodeXMLValue(b *strings.Builder, name string, v interface{}) {
	switch t := v.(type) {
	case nil:
		fmt.Fprintf(b, "<%s/>", name)
	case map[string]interface{}:
		fmt.Fprintf(b, "<%s>", name)
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			encodeXMLValue(b, k, t[k])
		}
		fmt.Fprintf(b, "</%s>", name)
	case map[string][]string:
		fmt.Fprintf(b, "<%s>", name)
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, msg := range t[k] {
				encodeXMLValue(b, k, msg)
			}
		}
		fmt.Fprintf(b, "</%s>", name)
	case []map[string]interface{}:
		for _, el := range t {
			encodeXMLValue(b, name, el)
		}
	case []interface{}:
		for _, el := range t {
			encodeXMLValue(b, name, el)
		}
	default:
		fmt.Fprintf(b, "<%s>", name)
		_ = xml.EscapeText(&xmlBuilderWriter{b}, []byte(fmt.Sprintf("%v", t)))
		fmt.Fprintf(b, "</%s>", name)
	}
}

type xmlBuilderWriter struct{ b *strings.Builder }

func (w *xmlBuilderWriter) Write(p []byte) (int, error) { return w.b.Write(p) }

// hiddenFrameBody embeds the framed payload in the HTML scaffold the
// hidden-iframe transport expects: the payload lands in a textarea and the
// onload script hands it up to the client library.
func hiddenFrameBody(r *http.Request, tx *Transaction, framed string) string {
	var b strings.Builder
	b.WriteString("<HTML><HEAD><SCRIPT>")
	if domain := docDomain(r); domain != "" {
		fmt.Fprintf(&b, "document.domain = %q;", domain)
	}
	b.WriteString("</SCRIPT></HEAD>")
	fmt.Fprintf(&b,
		"<BODY ONLOAD='var results = document.formResults.results.value;%s'>",
		hiddenFrameCallback(tx))
	b.WriteString("<FORM name='formResults'><TEXTAREA readonly name='results' style='display:none'>\n")
	b.WriteString(escapeTextarea(framed))
	b.WriteString("\n</TEXTAREA></FORM></BODY></HTML>")
	return b.String()
}

func hiddenFrameCallback(tx *Transaction) string {
	tnum := tx.TransactionNum
	if tnum == "" {
		tnum = "null"
	}
	switch tx.JSCallback {
	case "", "iframe":
		return fmt.Sprintf("parent.isc.Comm.hiddenFrameReply(%s,results);", tnum)
	case "iframeNewWindow":
		return fmt.Sprintf("window.opener.isc.Comm.hiddenFrameReply(%s,results);window.close();", tnum)
	}
	// A literal callback expression receives the raw results.
	return tx.JSCallback + "(results);"
}

func escapeTextarea(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	return strings.ReplaceAll(s, "<", "&lt;")
}

func docDomain(r *http.Request) string {
	if v := r.FormValue("isc_dd"); v != "" {
		return v
	}
	return r.FormValue("docDomain")
}

func isXHR(r *http.Request) bool {
	return r.FormValue("isc_xhr") == "1" || r.FormValue("xmlHttp") == "true"
}

func contentTypeFor(dataFormat string) string {
	switch dataFormat {
	case "xml":
		return "text/xml; charset=UTF-8"
	case "custom":
		return "text/plain; charset=UTF-8"
	}
	return "application/json; charset=UTF-8"
}

func setNoCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", expiresHeader)
}
