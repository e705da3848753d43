package views

import "strconv"

func parseUint(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }

func formatUint(n uint64) string { return strconv.FormatUint(n, 10) }

// parseCount 把计数值解析成非负整数；缺失/脏数据一律按 0 处理，不报错。
func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
