// 包 model 定义跨包共享的数据模型（端点结果/运行报告/表统计）。
package model

import "time"

// Outcome 为单个端点一次同步的结果；Error 为空表示成功。
type Outcome struct {
	Endpoint string        `json:"endpoint"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Fetched  int           `json:"fetched"`
	Stored   int           `json:"stored"`
	Rejected int           `json:"rejected"`
	Duration time.Duration `json:"duration_ns"`

	// Err 为原始错误，供调用方 errors.As 判定；不参与序列化。
	Err error `json:"-"`
}

// Report 为一次运行的汇总，Outcomes 按端点名排序。
type Report struct {
	RunID      string    `json:"run_id"`
	StartDate  string    `json:"start_date"`
	EndDate    string    `json:"end_date"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Failed 返回失败的端点数。
func (r Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Success {
			n++
		}
	}
	return n
}

// Outcome 按端点名查找结果。
func (r Report) Outcome(endpoint string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Endpoint == endpoint {
			return o, true
		}
	}
	return Outcome{}, false
}

// TableStats 为单表统计。
type TableStats struct {
	Name    string `json:"name"`
	Columns int    `json:"columns"`
	Rows    int    `json:"rows"`
	Keyed   bool   `json:"keyed"`
}
