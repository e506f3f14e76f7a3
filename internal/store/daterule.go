package store

import (
	"oura-sync/internal/errors"
	"oura-sync/internal/record"
)

// DateColumn 为按日期去重的主键列。
const DateColumn = "date"

// DateRule 返回数据类型对应的日期来源字段，以及缺失时是否仍然保存。
func DateRule(dataType string) (field string, optional bool) {
	switch dataType {
	case "enhanced_tag", "restmode_period":
		return "start_day", false
	case "ring_configuration":
		return "set_up_at", true
	default:
		return "day", false
	}
}

// resolveDate 按规则取日期；缺失且不可选时返回 *errors.ErrRecordRejected。
// 返回的记录为副本，并在有日期时写入 date 列。
func resolveDate(dataType string, rec *record.Flat) (*record.Flat, string, error) {
	field, optional := DateRule(dataType)
	date, ok := rec.Get(field)
	if !ok || date == "" {
		if !optional {
			return nil, "", &errors.ErrRecordRejected{DataType: dataType, Field: field}
		}
		return rec.Clone(), "", nil
	}
	out := rec.Clone()
	out.Set(DateColumn, date)
	return out, date, nil
}
