package model

import "time"

// CollectedAtKey は永続化時にメタデータへ付与する取り込み日時のキー。
const CollectedAtKey = "collected_at"

// Record はルーティングキーで保存された1件の永続化レコードを表す。
type Record struct {
	Collection string
	Key        string
	Document   *Metadata
	UpdatedAt  time.Time
}

// CollectedAt はドキュメントのcollected_at（Unix秒）を時刻として返す。
func (r *Record) CollectedAt() (time.Time, bool) {
	v, ok := r.Document.Get(CollectedAtKey)
	if !ok {
		return time.Time{}, false
	}
	f, ok := v.AsFloat()
	if !ok {
		return time.Time{}, false
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec), true
}

// CollectedAtValue は時刻をcollected_atとして保存する値に変換する。
func CollectedAtValue(t time.Time) Value {
	return FloatValue(float64(t.UnixMicro()) / 1e6)
}
