package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const countriesXML = `<DataSource ID="countries" serverType="sql" tableName="country_table" dbName="main">
	<fields>
		<field name="id" type="sequence" primaryKey="true"/>
		<field name="name" nativeName="country_name" type="text"/>
		<field name="continent" type="text"/>
	</fields>
</DataSource>`

const countriesJS = `isc.DataSource.create({
	"ID": "countries",
	"serverType": "sql",
	"tableName": "country_table",
	"fields": [
		{"name": "id", "type": "sequence", "primaryKey": true},
		{"name": "name", "nativeName": "country_name", "type": "text"},
		{"name": "continent", "type": "text"}
	]
});`

func Test_ParseDescriptorXML(t *testing.T) {
	desc, err := ParseDescriptorXML([]byte(countriesXML))
	require.NoError(t, err)

	assert.Equal(t, "countries", desc.ID)
	assert.Equal(t, "sql", desc.ServerType)
	assert.Equal(t, "country_table", desc.TableName)
	assert.Equal(t, "main", desc.DBName)
	require.Len(t, desc.Fields, 3)
	assert.True(t, desc.Fields[0].PrimaryKey)
	assert.True(t, desc.Fields[0].IsSequence())
	assert.Equal(t, "country_name", desc.Fields[1].Column())
	assert.Equal(t, "continent", desc.Fields[2].Column())
}

func Test_ParseDescriptorXML_invalid(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{name: "no ID", doc: `<DataSource><fields><field name="a"/></fields></DataSource>`},
		{name: "unnamed field", doc: `<DataSource ID="x"><fields><field type="text"/></fields></DataSource>`},
		{name: "duplicate field", doc: `<DataSource ID="x"><fields><field name="a"/><field name="a"/></fields></DataSource>`},
		{name: "malformed document", doc: `<DataSource ID="x">`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDescriptorXML([]byte(tc.doc))
			assert.ErrorIs(t, err, ErrDescriptorParse)
		})
	}
}

func Test_ParseDescriptorJSON(t *testing.T) {
	t.Run("with isc.DataSource.create wrapper", func(t *testing.T) {
		desc, err := ParseDescriptorJSON([]byte(countriesJS))
		require.NoError(t, err)
		assert.Equal(t, "countries", desc.ID)
		require.Len(t, desc.Fields, 3)
		assert.Equal(t, "country_name", desc.Fields[1].Column())
	})

	t.Run("bare object", func(t *testing.T) {
		desc, err := ParseDescriptorJSON([]byte(`{"ID": "plain", "fields": [{"name": "a", "type": "text"}]}`))
		require.NoError(t, err)
		assert.Equal(t, "plain", desc.ID)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := ParseDescriptorJSON([]byte(`isc.DataSource.create(nope);`))
		assert.ErrorIs(t, err, ErrDescriptorParse)
	})
}

func Test_Descriptor_fieldProjections(t *testing.T) {
	desc, err := ParseDescriptorXML([]byte(countriesXML))
	require.NoError(t, err)

	t.Run("PKFields and NonPKFields", func(t *testing.T) {
		pks := desc.PKFields()
		require.Len(t, pks, 1)
		assert.Equal(t, "id", pks[0].Name)
		assert.Len(t, desc.NonPKFields(), 2)
	})

	t.Run("PKValues requires a non-nil key value", func(t *testing.T) {
		values, err := desc.PKValues(Record{"id": float64(7), "name": "Brazil"})
		require.NoError(t, err)
		assert.Equal(t, Record{"id": float64(7)}, values)

		_, err = desc.PKValues(Record{"name": "Brazil"})
		assert.ErrorIs(t, err, ErrMissingPrimaryKey)

		_, err = desc.PKValues(Record{"id": nil})
		assert.ErrorIs(t, err, ErrMissingPrimaryKey)
	})

	t.Run("PKValues without any PK field", func(t *testing.T) {
		noPK := &Descriptor{ID: "x", Fields: []FieldDescriptor{{Name: "a"}}}
		_, err := noPK.PKValues(Record{"a": 1})
		assert.ErrorIs(t, err, ErrMissingPrimaryKey)
	})

	t.Run("ToRecord fills missing fields with nil and drops extras", func(t *testing.T) {
		record := desc.ToRecord(Record{"id": float64(1), "bogus": "x"})
		assert.Equal(t, Record{"id": float64(1), "name": nil, "continent": nil}, record)
	})

	t.Run("ToRecords is idempotent", func(t *testing.T) {
		once := desc.ToRecords([]Record{{"id": float64(1), "name": "Brazil"}})
		twice := desc.ToRecords(once)
		assert.Equal(t, once, twice)
	})

	t.Run("ToRecords accepts a single object and nil", func(t *testing.T) {
		assert.Len(t, desc.ToRecords(Record{"id": float64(1)}), 1)
		assert.Empty(t, desc.ToRecords(nil))
	})
}

func Test_Descriptor_SQLProjection(t *testing.T) {
	desc, err := ParseDescriptorXML([]byte(countriesXML))
	require.NoError(t, err)

	assert.Equal(t, "country_table", desc.SQLTable())
	assert.Equal(t, []string{"id", "country_name AS name", "continent"}, desc.SQLColumns())

	col, ok := desc.SQLColumn("name")
	require.True(t, ok)
	assert.Equal(t, "country_name", col)

	_, ok = desc.SQLColumn("bogus")
	assert.False(t, ok)

	noTable := &Descriptor{ID: "plain"}
	assert.Equal(t, "plain", noTable.SQLTable())
}
