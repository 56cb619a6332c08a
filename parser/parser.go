package parser

import (
	"regexp"
	"strings"
)

// QueryType represents the type of SQL statement
type QueryType int

const (
	QueryUnknown QueryType = iota
	QueryInsert
	QueryUpdate
	QueryDelete
	QuerySelect
)

// Match statement type (allows comments before keyword)
var queryTypeRegex = regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE)\b`)

// TypeOf determines the statement type of a SQL string
func TypeOf(query string) QueryType {
	matches := queryTypeRegex.FindStringSubmatch(query)
	if matches == nil {
		return QueryUnknown
	}
	switch strings.ToUpper(matches[1]) {
	case "SELECT":
		return QuerySelect
	case "INSERT":
		return QueryInsert
	case "UPDATE":
		return QueryUpdate
	case "DELETE":
		return QueryDelete
	}
	return QueryUnknown
}

// IsWrite returns true for INSERT, UPDATE and DELETE statements
func (t QueryType) IsWrite() bool {
	return t == QueryInsert || t == QueryUpdate || t == QueryDelete
}

// Label returns the metric label for the statement type
func (t QueryType) Label() string {
	switch t {
	case QuerySelect:
		return "select"
	case QueryInsert:
		return "insert"
	case QueryUpdate:
		return "update"
	case QueryDelete:
		return "delete"
	default:
		return "unknown"
	}
}
