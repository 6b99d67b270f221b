package datasource

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
)

// FieldType is the scalar kind of one descriptor field. The sequence type
// marks an auto-generated primary key.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeFloat    FieldType = "float"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDate     FieldType = "date"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeSequence FieldType = "sequence"
)

// FieldDescriptor is the immutable metadata of one data source field.
type FieldDescriptor struct {
	Name       string
	NativeName string
	Type       FieldType
	PrimaryKey bool
}

// IsSequence reports whether the field's value is generated by the back end.
func (f FieldDescriptor) IsSequence() bool { return f.Type == FieldTypeSequence }

// Column is the back-end column of the field: nativeName when set, the field
// name otherwise.
func (f FieldDescriptor) Column() string {
	if f.NativeName != "" {
		return f.NativeName
	}
	return f.Name
}

// Record is one row keyed by field name.
type Record = map[string]interface{}

// Descriptor is the immutable metadata of one logical record set, loaded from
// a `.ds.xml` or `.ds.js` file.
type Descriptor struct {
	ID                string
	ServerType        string
	ServerConstructor string
	TableName         string
	DBName            string
	FileName          string
	JSONPrefix        string
	JSONSuffix        string
	Fields            []FieldDescriptor
}

// Field returns the descriptor field with the given name, or nil.
func (d *Descriptor) Field(name string) *FieldDescriptor {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}

// PKFields returns the primary-key fields in declaration order.
func (d *Descriptor) PKFields() []FieldDescriptor {
	var pks []FieldDescriptor
	for _, f := range d.Fields {
		if f.PrimaryKey {
			pks = append(pks, f)
		}
	}
	return pks
}

// NonPKFields returns the fields that are not part of the primary key.
func (d *Descriptor) NonPKFields() []FieldDescriptor {
	var fields []FieldDescriptor
	for _, f := range d.Fields {
		if !f.PrimaryKey {
			fields = append(fields, f)
		}
	}
	return fields
}

// PKValues projects the primary-key fields out of obj. Every PK field must be
// present with a non-nil value.
func (d *Descriptor) PKValues(obj Record) (Record, error) {
	pks := d.PKFields()
	if len(pks) == 0 {
		return nil, fmt.Errorf("%w: data source %q declares no primary key", ErrMissingPrimaryKey, d.ID)
	}
	values := Record{}
	for _, f := range pks {
		v, ok := obj[f.Name]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: field %q of data source %q", ErrMissingPrimaryKey, f.Name, d.ID)
		}
		values[f.Name] = v
	}
	return values, nil
}

// NonPKValues projects the non-PK fields present in obj.
func (d *Descriptor) NonPKValues(obj Record) Record {
	values := Record{}
	for _, f := range d.NonPKFields() {
		if v, ok := obj[f.Name]; ok {
			values[f.Name] = v
		}
	}
	return values
}

// ToRecord projects obj down to exactly the descriptor's fields; fields absent
// from obj are set to nil.
func (d *Descriptor) ToRecord(obj Record) Record {
	record := Record{}
	for _, f := range d.Fields {
		if v, ok := obj[f.Name]; ok {
			record[f.Name] = v
		} else {
			record[f.Name] = nil
		}
	}
	return record
}

// ToRecords projects a single object or a list of objects into records. The
// projection is idempotent.
func (d *Descriptor) ToRecords(objOrList interface{}) []Record {
	switch v := objOrList.(type) {
	case nil:
		return []Record{}
	case Record:
		return []Record{d.ToRecord(v)}
	case []Record:
		records := make([]Record, 0, len(v))
		for _, obj := range v {
			records = append(records, d.ToRecord(obj))
		}
		return records
	case []interface{}:
		records := make([]Record, 0, len(v))
		for _, el := range v {
			if obj, ok := el.(map[string]interface{}); ok {
				records = append(records, d.ToRecord(obj))
			}
		}
		return records
	}
	return []Record{}
}

// SQLColumn resolves a field name to its SQL column, satisfying the criteria
// compiler's resolver contract.
func (d *Descriptor) SQLColumn(fieldName string) (string, bool) {
	f := d.Field(fieldName)
	if f == nil {
		return "", false
	}
	return f.Column(), true
}

// SQLTable is the back-end table: tableName when set, the descriptor id
// otherwise.
func (d *Descriptor) SQLTable() string {
	if d.TableName != "" {
		return d.TableName
	}
	return d.ID
}

// SQLColumns emits `column AS fieldName` projections so result sets decode by
// field name.
func (d *Descriptor) SQLColumns() []string {
	cols := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.Column() == f.Name {
			cols = append(cols, f.Column())
		} else {
			cols = append(cols, f.Column()+" AS "+f.Name)
		}
	}
	return cols
}

type xmlField struct {
	Name       string `xml:"name,attr"`
	NativeName string `xml:"nativeName,attr"`
	Type       string `xml:"type,attr"`
	PrimaryKey bool   `xml:"primaryKey,attr"`
}

type xmlDescriptor struct {
	XMLName           xml.Name   `xml:"DataSource"`
	ID                string     `xml:"ID,attr"`
	ServerType        string     `xml:"serverType,attr"`
	ServerConstructor string     `xml:"serverConstructor,attr"`
	TableName         string     `xml:"tableName,attr"`
	DBName            string     `xml:"dbName,attr"`
	FileName          string     `xml:"fileName,attr"`
	JSONPrefix        string     `xml:"jsonPrefix,attr"`
	JSONSuffix        string     `xml:"jsonSuffix,attr"`
	Fields            []xmlField `xml:"fields>field"`
}

type jsonField struct {
	Name       string `json:"name"`
	NativeName string `json:"nativeName"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primaryKey"`
}

type jsonDescriptor struct {
	ID                string      `json:"ID"`
	ServerType        string      `json:"serverType"`
	ServerConstructor string      `json:"serverConstructor"`
	TableName         string      `json:"tableName"`
	DBName            string      `json:"dbName"`
	FileName          string      `json:"fileName"`
	JSONPrefix        string      `json:"jsonPrefix"`
	JSONSuffix        string      `json:"jsonSuffix"`
	Fields            []jsonField `json:"fields"`
}

// ParseDescriptorXML parses a `.ds.xml` descriptor document.
func ParseDescriptorXML(data []byte) (*Descriptor, error) {
	var raw xmlDescriptor
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDescriptorParse, err)
	}
	desc := &Descriptor{
		ID:                raw.ID,
		ServerType:        raw.ServerType,
		ServerConstructor: raw.ServerConstructor,
		TableName:         raw.TableName,
		DBName:            raw.DBName,
		FileName:          raw.FileName,
		JSONPrefix:        raw.JSONPrefix,
		JSONSuffix:        raw.JSONSuffix,
	}
	for _, f := range raw.Fields {
		desc.Fields = append(desc.Fields, FieldDescriptor{
			Name:       f.Name,
			NativeName: f.NativeName,
			Type:       FieldType(f.Type),
			PrimaryKey: f.PrimaryKey,
		})
	}
	return desc, validateDescriptor(desc)
}

// ParseDescriptorJSON parses a `.ds.js` descriptor. An optional
// `isc.DataSource.create(...)` wrapper around the JSON object is tolerated.
func ParseDescriptorJSON(data []byte) (*Descriptor, error) {
	text := strings.TrimSpace(string(data))
	if open := strings.Index(text, "{"); open > 0 {
		if close := strings.LastIndex(text, "}"); close > open {
			text = text[open : close+1]
		}
	}

	var raw jsonDescriptor
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDescriptorParse, err)
	}
	desc := &Descriptor{
		ID:                raw.ID,
		ServerType:        raw.ServerType,
		ServerConstructor: raw.ServerConstructor,
		TableName:         raw.TableName,
		DBName:            raw.DBName,
		FileName:          raw.FileName,
		JSONPrefix:        raw.JSONPrefix,
		JSONSuffix:        raw.JSONSuffix,
	}
	for _, f := range raw.Fields {
		desc.Fields = append(desc.Fields, FieldDescriptor{
			Name:       f.Name,
			NativeName: f.NativeName,
			Type:       FieldType(f.Type),
			PrimaryKey: f.PrimaryKey,
		})
	}
	return desc, validateDescriptor(desc)
}

func validateDescriptor(desc *Descriptor) error {
	if desc.ID == "" {
		return fmt.Errorf("%w: descriptor has no ID", ErrDescriptorParse)
	}
	seen := map[string]bool{}
	for _, f := range desc.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: descriptor %q has a field without a name", ErrDescriptorParse, desc.ID)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: descriptor %q declares field %q twice", ErrDescriptorParse, desc.ID, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}
