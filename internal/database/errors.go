package database

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// UniqueViolationField は一意制約違反の場合に違反したフィールド名を返す。
// フィールド名は制約名（<table>_<column>_key）から導出し、APIのJSON名に合わせてcamelCaseにする。
func UniqueViolationField(err error) (string, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != uniqueViolation {
		return "", false
	}

	name := strings.TrimSuffix(pqErr.Constraint, "_key")
	if pqErr.Table != "" {
		name = strings.TrimPrefix(name, pqErr.Table+"_")
	}
	if name == "" {
		return "field", true
	}
	return snakeToCamel(name), true
}

func snakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}
