// 包 syncer 负责主流程编排：
// - 逐端点获取令牌、拉取数据、展平并落库
// - 端点之间相互隔离，单个端点失败不影响其他端点
// - 令牌文件或数据库不可用时终止剩余端点
package syncer

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"oura-sync/internal/auth"
	"oura-sync/internal/config"
	"oura-sync/internal/errors"
	"oura-sync/internal/logx"
	"oura-sync/internal/model"
	"oura-sync/internal/record"
)

// TokenSource 提供有效的访问令牌（auth.Manager）。
type TokenSource interface {
	GetToken(ctx context.Context) (*auth.Token, error)
}

// Fetcher 执行一次带 Bearer 令牌的 GET 请求（fetch.Client）。
type Fetcher interface {
	GetJSON(ctx context.Context, endpoint, rawURL, accessToken string, query url.Values) ([]byte, error)
}

// Store 写入一条扁平记录（store.SQLite / store.Memory）。
type Store interface {
	Upsert(ctx context.Context, dataType string, rec *record.Flat) error
}

// Options 为运行参数，构造后不再变化。
type Options struct {
	Endpoints   map[string]string // 名称 -> URL
	Start, End  time.Time
	Concurrency int
	DryRun      bool
	Flattener   record.Flattener
}

// Runner 同步执行器，持有令牌来源/HTTP 客户端/存储。
type Runner struct {
	opts   Options
	tokens TokenSource
	fetch  Fetcher
	store  Store
	now    func() time.Time
}

// New 创建 Runner；端点表会被复制，调用方之后的修改不影响运行。
func New(opts Options, tokens TokenSource, f Fetcher, s Store) *Runner {
	eps := make(map[string]string, len(opts.Endpoints))
	for k, v := range opts.Endpoints {
		eps[k] = v
	}
	opts.Endpoints = eps
	return &Runner{opts: opts, tokens: tokens, fetch: f, store: s, now: time.Now}
}

// Names 返回已配置的端点名（排序）。
func (r *Runner) Names() []string {
	out := make([]string, 0, len(r.opts.Endpoints))
	for k := range r.opts.Endpoints {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Run 同步指定端点（为空时同步全部）。每个端点的结果都会出现在报告中；
// 仅当遇到资源级故障（令牌文件、数据库）时返回 error，此时尚未开始的端点记为跳过。
func (r *Runner) Run(ctx context.Context, endpoints []string) (model.Report, error) {
	if len(endpoints) == 0 {
		endpoints = r.Names()
	}
	endpoints = dedup(endpoints)

	rep := model.Report{
		RunID:     uuid.NewString(),
		StartDate: r.opts.Start.Format(config.DateLayout),
		EndDate:   r.opts.End.Format(config.DateLayout),
		StartedAt: r.now(),
		DryRun:    r.opts.DryRun,
	}
	logx.Infof("开始同步：运行=%s 端点=%d 区间=%s~%s 演练=%v", rep.RunID, len(endpoints), rep.StartDate, rep.EndDate, r.opts.DryRun)

	var (
		mu       sync.Mutex
		outcomes = make([]model.Outcome, 0, len(endpoints))
		fatal    error
	)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, max(1, r.opts.Concurrency))
	var wg sync.WaitGroup
	for _, name := range endpoints {
		name := name
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			mu.Lock()
			stop := fatal
			mu.Unlock()
			var o model.Outcome
			if stop != nil {
				o = model.Outcome{Endpoint: name, Error: fmt.Sprintf("skipped: %v", stop)}
			} else {
				o = r.syncEndpoint(runCtx, name)
			}

			mu.Lock()
			outcomes = append(outcomes, o)
			if stop == nil && o.Err != nil && isResourceFault(o.Err) && fatal == nil {
				fatal = o.Err
				cancel()
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Endpoint < outcomes[j].Endpoint })
	rep.Outcomes = outcomes
	rep.FinishedAt = r.now()
	logx.Infof("同步结束：运行=%s 成功=%d 失败=%d 耗时=%s", rep.RunID, len(outcomes)-rep.Failed(), rep.Failed(), rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	return rep, fatal
}

// syncEndpoint 处理单个端点：令牌 → 拉取 → 解析 data → 展平 → 落库。
func (r *Runner) syncEndpoint(ctx context.Context, name string) (o model.Outcome) {
	o.Endpoint = name
	log := logx.With("endpoint", name)
	started := r.now()
	defer func() {
		o.Duration = r.now().Sub(started)
		if o.Err != nil {
			o.Error = o.Err.Error()
			log.Error("端点同步失败", "error", o.Err)
			return
		}
		o.Success = true
		log.Info("端点同步完成", "fetched", o.Fetched, "stored", o.Stored, "rejected", o.Rejected)
	}()

	rawURL, ok := r.opts.Endpoints[name]
	if !ok {
		o.Err = fmt.Errorf("unknown endpoint %q", name)
		return o
	}
	tok, err := r.tokens.GetToken(ctx)
	if err != nil {
		o.Err = err
		return o
	}
	q := url.Values{}
	q.Set("start_date", r.opts.Start.Format(config.DateLayout))
	q.Set("end_date", r.opts.End.Format(config.DateLayout))
	body, err := r.fetch.GetJSON(ctx, name, rawURL, tok.AccessToken, q)
	if err != nil {
		o.Err = err
		return o
	}
	items, err := record.DecodeData(body)
	if err != nil {
		o.Err = &errors.ErrFetch{Endpoint: name, URL: rawURL, Err: fmt.Errorf("decode body: %w", err)}
		return o
	}
	o.Fetched = len(items)
	for i, item := range items {
		if item.Kind != record.Object {
			o.Rejected++
			log.Warn("跳过非对象记录", "index", i, "kind", item.Kind.String())
			continue
		}
		err := r.store.Upsert(ctx, name, r.opts.Flattener.Flatten(item))
		var rej *errors.ErrRecordRejected
		switch {
		case err == nil:
			o.Stored++
		case stderrors.As(err, &rej):
			o.Rejected++
			log.Warn("跳过记录", "index", i, "reason", err.Error())
		default:
			o.Err = err
			return o
		}
	}
	return o
}

// isResourceFault 判断是否为无法继续任何端点的故障。
func isResourceFault(err error) bool {
	var tf *errors.ErrTokenFile
	var db *errors.ErrDatabaseOpen
	return stderrors.As(err, &tf) || stderrors.As(err, &db)
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
