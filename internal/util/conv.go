package util

import "strings"

// SplitCSV 拆分逗号分隔的查询参数并去掉空项
func SplitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func BoolPtr(b bool) *bool { return &b }

func Float64Ptr(f float64) *float64 { return &f }
