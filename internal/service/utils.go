package service

import "strings"

// sanitizeUTF8 drops invalid UTF-8 sequences. PostgreSQL rejects them in
// text columns and backends occasionally return broken OCR output.
func sanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}

func sanitizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeUTF8(*s)
	return &v
}
