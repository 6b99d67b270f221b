package httphandler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/gridbroker/gridbroker/internal/datasource"
	"github.com/gridbroker/gridbroker/internal/serve/httperror"
)

// systemSchemaID is reserved by the client library and never served.
const systemSchemaID = "$systemSchema"

// DataSourceLoaderHandler serves client-side descriptor definitions: a GET
// with `?dataSource=a,b,c` returns one `isc.DataSource.create({...});`
// statement per resolvable id.
type DataSourceLoaderHandler struct {
	Pool *datasource.Pool
}

func (h DataSourceLoaderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requested := r.URL.Query().Get("dataSource")
	if requested == "" {
		httperror.BadRequest("Missing dataSource query parameter.", nil, nil).Render(w)
		return
	}

	var body strings.Builder
	seen := map[string]bool{}
	for _, id := range strings.Split(requested, ",") {
		id = strings.TrimSpace(id)
		if id == "" || id == systemSchemaID || seen[id] {
			continue
		}
		seen[id] = true

		desc, err := h.Pool.Descriptor(ctx, id)
		if err != nil {
			log.Ctx(ctx).Warnf("skipping data source %q in loader response: %s", id, err)
			continue
		}

		definition, err := clientDescriptor(desc)
		if err != nil {
			httperror.InternalError(ctx, "", fmt.Errorf("encoding descriptor %q: %w", id, err), nil).Render(w)
			return
		}
		fmt.Fprintf(&body, "isc.DataSource.create(%s);\n", definition)
	}

	w.Header().Set("Content-Type", "application/javascript; charset=UTF-8")
	fmt.Fprint(w, body.String())
}

// clientDescriptor renders the subset of the descriptor the client library
// needs to build its local DataSource object.
func clientDescriptor(desc *datasource.Descriptor) (string, error) {
	fields := make([]map[string]interface{}, 0, len(desc.Fields))
	for _, f := range desc.Fields {
		field := map[string]interface{}{
			"name": f.Name,
			"type": string(f.Type),
		}
		if f.PrimaryKey {
			field["primaryKey"] = true
		}
		fields = append(fields, field)
	}

	data, err := json.Marshal(map[string]interface{}{
		"ID":     desc.ID,
		"fields": fields,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
