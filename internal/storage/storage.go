package storage

import "rangeHedger/internal/model"

// Storage defines a sink for decision audit records.
type Storage interface {
	PutDecisionBatch(decisions []model.DecisionRecord) error
}
