package workflow

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-memdb"
)

const executionsTable = "executions"

type executionRecord struct {
	ID         string
	WorkflowID string
	LeadID     string
	Execution  *Execution
}

// executionStore indexes execution handles by id and by workflow and lead.
type executionStore struct {
	db *memdb.MemDB
}

func newExecutionStore() (*executionStore, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			executionsTable: {
				Name: executionsTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"workflow_lead": {
						Name: "workflow_lead",
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "WorkflowID"},
								&memdb.StringFieldIndex{Field: "LeadID"},
							},
						},
					},
				},
			},
		},
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution store: %w", err)
	}

	return &executionStore{db: db}, nil
}

func (s *executionStore) insert(e *Execution) error {
	txn := s.db.Txn(true)

	err := txn.Insert(executionsTable, &executionRecord{
		ID:         e.ID(),
		WorkflowID: e.WorkflowID(),
		LeadID:     e.LeadID(),
		Execution:  e,
	})
	if err != nil {
		txn.Abort()

		return fmt.Errorf("failed to store execution %s: %w", e.ID(), err)
	}

	txn.Commit()

	return nil
}

func (s *executionStore) get(id string) (*Execution, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(executionsTable, "id", id)
	if err != nil || raw == nil {
		return nil, false
	}

	return raw.(*executionRecord).Execution, true
}

// byWorkflowLead returns the executions of workflowID for leadID in start order.
func (s *executionStore) byWorkflowLead(workflowID, leadID string) []*Execution {
	return s.collect("workflow_lead", workflowID, leadID)
}

func (s *executionStore) collect(index string, args ...any) []*Execution {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(executionsTable, index, args...)
	if err != nil {
		return nil
	}

	var out []*Execution
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*executionRecord).Execution)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].state.StartedAt.Before(out[j].state.StartedAt)
	})

	return out
}
