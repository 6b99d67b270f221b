package monitor

type HttpRequestLabels struct {
	Status string
	Route  string
	Method string
}

type DBQueryLabels struct {
	QueryType string
}

// OperationLabels identifies one transaction-envelope operation.
type OperationLabels struct {
	DataSource    string
	OperationType string
	Status        string
}

func (o OperationLabels) ToMap() map[string]string {
	return map[string]string{
		"data_source":    o.DataSource,
		"operation_type": o.OperationType,
		"status":         o.Status,
	}
}

var OperationLabelNames = []string{"data_source", "operation_type", "status"}
