package repository

import (
	"encoding/json"
	"fmt"
)

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// toJSONB はJSONBカラムへ書き込む値をエンコードする。
func toJSONB(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jsonb: %w", err)
	}
	return b, nil
}

// fromJSONB はJSONBカラムの値をデコードする。NULLの場合はdstを変更しない。
func fromJSONB(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("failed to unmarshal jsonb: %w", err)
	}
	return nil
}

// nonNil はnilスライスを空スライスにする。JSONで[]として出力するため。
func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
