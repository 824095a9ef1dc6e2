// Package output groups transformed records into a view tree and renders the
// tree as JSON and CSV files.
//
// View keys:
//
//	USER          userId
//	DAY           date portion of the record start time (UTC)
//	MODULE_CONFIG category name
//	SINGLE        one constant key
//
// Layout:
//
//	NESTED + MULTIPLE   <viewKey>/<category>.<ext>, an array of records
//	NESTED + SINGLE     <viewKey>/<viewKey>.<ext>, keyed by category
//	FLAT   + MULTIPLE   <viewKey>.<ext>, keyed by category
//	FLAT   + SINGLE     export.<ext>, keyed by view key then category
//
// Archive writes the files into a zip in creation order.
package output
