package models

// OperationKind is the mutation type of an Operation.
type OperationKind string

const (
	OperationCreate OperationKind = "create"
	OperationUpdate OperationKind = "update"
	OperationDelete OperationKind = "delete"
)

// Operation is one planned mutation against the record store.
type Operation struct {
	Kind OperationKind `json:"kind"`
	// ID is the record the operation targets. For creates it is the id
	// assigned to the new record.
	ID     string         `json:"id"`
	Record *CompanyRecord `json:"record,omitempty"`
	Plan   *MergePlan     `json:"plan,omitempty"`
	// DependsOn names records whose pending update must commit before this
	// operation may run.
	DependsOn []string `json:"dependsOn,omitempty"`
}

// IsNoop reports whether the operation would not change the store.
func (o Operation) IsNoop() bool {
	switch o.Kind {
	case OperationCreate:
		return o.Record == nil
	case OperationUpdate:
		return o.Plan.IsNoop()
	case OperationDelete:
		return o.ID == ""
	}
	return true
}

// CreateOp plans a new record.
func CreateOp(rec *CompanyRecord) Operation {
	return Operation{Kind: OperationCreate, ID: rec.ID, Record: rec}
}

// UpdateOp plans a field-level update.
func UpdateOp(plan *MergePlan) Operation {
	return Operation{Kind: OperationUpdate, ID: plan.TargetID, Plan: plan}
}

// DeleteOp plans a deletion gated on the listed updates.
func DeleteOp(id string, dependsOn ...string) Operation {
	return Operation{Kind: OperationDelete, ID: id, DependsOn: dependsOn}
}
