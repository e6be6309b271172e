// Package dag assembles instantiated workflow steps into an immutable
// execution graph. Connection sources are resolved by step name, then by
// step type, then against the setup record. Iterated steps are expanded
// into indexed nodes and joins collect them back in index order.
package dag
