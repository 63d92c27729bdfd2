package physical

// Visitor defines the interface for objects that can visit each type of
// physical plan node. It provides type-specific visit methods for each
// concrete node type in the physical plan.
type Visitor interface {
	VisitTableScan(*TableScan) error
	VisitProjection(*Projection) error
	VisitFilter(*Filter) error
	VisitHashAggregate(*HashAggregate) error
	VisitHashJoin(*HashJoin) error
	VisitSort(*Sort) error
	VisitLimit(*Limit) error
	VisitUnion(*Union) error
	VisitReverse(*Reverse) error
	VisitCache(*Cache) error
}
