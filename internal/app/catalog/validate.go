package catalog

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// 领域层统一的输入校验错误，上层稳定映射成 400。
var ErrInvalidImageID = errors.New("invalid image id")
var ErrInvalidCategory = errors.New("invalid category")
var ErrInvalidTitle = errors.New("invalid title")
var ErrInvalidQuery = errors.New("invalid search query")

// ValidateImageID 图片 id 全站统一是 UUID，非 UUID 直接拒绝，
// 不让垃圾 id 穿透到缓存和计数器。
func ValidateImageID(id string) error {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return ErrInvalidImageID
	}
	return nil
}

var categoryRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}[a-z0-9]$`)

// ValidateCategory 分类是 URL 里的 slug：小写字母/数字/中划线。
// "all" 是查询参数里的特殊值，表示不过滤。
func ValidateCategory(category string) error {
	category = strings.TrimSpace(category)
	if category == "all" {
		return nil
	}
	if !categoryRe.MatchString(category) {
		return ErrInvalidCategory
	}
	return nil
}

// ValidateTitle 标题 1~200 字符，去掉首尾空白后不能为空。
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > 200 {
		return ErrInvalidTitle
	}
	return nil
}

// ValidateQuery 搜索词 1~100 字符。
func ValidateQuery(q string) error {
	q = strings.TrimSpace(q)
	if q == "" || len(q) > 100 {
		return ErrInvalidQuery
	}
	return nil
}

// NormalizeKeywords 去重、去空白，最多 50 个关键词。
func NormalizeKeywords(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, kw := range raw {
		kw = strings.TrimSpace(kw)
		if kw == "" || len(kw) > 64 {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
		if len(out) == 50 {
			break
		}
	}
	return out
}
