package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"alpha-arena/internal/decision"
	"alpha-arena/internal/executor"
	"alpha-arena/internal/journal"
	"alpha-arena/internal/market"
	"alpha-arena/internal/venue"
)

type stubCollector struct {
	snapshot market.Snapshot
	err      error
}

func (s *stubCollector) Collect(ctx context.Context, symbols []string) (market.Snapshot, error) {
	return s.snapshot, s.err
}

type stubAccount struct {
	snapshot venue.AccountSnapshot
	err      error
}

func (s *stubAccount) GetAccountInfo(ctx context.Context) (venue.AccountSnapshot, error) {
	return s.snapshot, s.err
}

type stubModel struct {
	raw   string
	err   error
	calls int
}

func (s *stubModel) GenerateDecision(ctx context.Context, snapshot market.Snapshot, account venue.AccountSnapshot) (string, error) {
	s.calls++
	return s.raw, s.err
}

type stubParser struct {
	decision decision.TradingDecision
	err      error
}

func (s *stubParser) Parse(raw string) (decision.TradingDecision, error) {
	return s.decision, s.err
}

type stubExecutor struct {
	outcome executor.Outcome
	err     error
	calls   int
}

func (s *stubExecutor) Execute(ctx context.Context, d decision.TradingDecision) (executor.Outcome, error) {
	s.calls++
	return s.outcome, s.err
}

type stubJournal struct {
	cycles []journal.CycleRecord
	errors []string
}

func (s *stubJournal) RecordCycle(ctx context.Context, record journal.CycleRecord) error {
	s.cycles = append(s.cycles, record)
	return nil
}

func (s *stubJournal) RecordError(ctx context.Context, agent, msg string, cause error) {
	s.errors = append(s.errors, msg)
}

func marketWithAssets() market.Snapshot {
	return market.Snapshot{Assets: []market.AssetSnapshot{{Symbol: "ETH", Price: 4200}}}
}

func newTestAgent(t *testing.T, collector *stubCollector, account *stubAccount,
	model *stubModel, parser *stubParser, exec *stubExecutor, j *stubJournal) *Agent {
	t.Helper()
	a, err := New("alpha", []string{"ETH"}, time.Hour, collector, account, model, parser, exec, j, nil)
	if err != nil {
		t.Fatalf("创建代理失败: %v", err)
	}
	return a
}

func TestRunCycleFullPath(t *testing.T) {
	j := &stubJournal{}
	exec := &stubExecutor{outcome: executor.Outcome{Symbol: "ETH", Executed: true}}
	a := newTestAgent(t,
		&stubCollector{snapshot: marketWithAssets()},
		&stubAccount{snapshot: venue.AccountSnapshot{TotalValue: 10000}},
		&stubModel{raw: "CHAIN_OF_THOUGHT ..."},
		&stubParser{decision: decision.TradingDecision{Symbol: "ETH", Action: decision.ActionBuy}},
		exec, j)

	if err := a.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle 失败: %v", err)
	}
	if exec.calls != 1 {
		t.Errorf("执行次数 = %d, 期望 1", exec.calls)
	}
	if len(j.cycles) != 1 {
		t.Fatalf("周期记录数 = %d, 期望 1", len(j.cycles))
	}
	record := j.cycles[0]
	if record.Agent != "alpha" || record.RawResponse == "" || len(record.Decision) == 0 || len(record.Outcome) == 0 {
		t.Errorf("周期记录不完整: %+v", record)
	}
}

func TestRunCycleParseFailureStillRecorded(t *testing.T) {
	j := &stubJournal{}
	exec := &stubExecutor{}
	a := newTestAgent(t,
		&stubCollector{snapshot: marketWithAssets()},
		&stubAccount{},
		&stubModel{raw: "乱码输出"},
		&stubParser{err: &decision.ParseError{Reason: "缺少推理块"}},
		exec, j)

	if err := a.runCycle(context.Background()); err == nil {
		t.Fatal("解析失败应返回错误")
	}
	if exec.calls != 0 {
		t.Error("解析失败后不应执行")
	}
	if len(j.cycles) != 1 {
		t.Fatalf("解析失败的周期也应落库: %d", len(j.cycles))
	}
	record := j.cycles[0]
	if record.ParseError == "" || record.RawResponse != "乱码输出" {
		t.Errorf("记录应包含原始输出与解析错误: %+v", record)
	}
	if len(record.Decision) != 0 {
		t.Error("解析失败不应有决策")
	}
}

func TestRunCycleCollectFailure(t *testing.T) {
	j := &stubJournal{}
	model := &stubModel{}
	a := newTestAgent(t,
		&stubCollector{err: errors.New("连接超时")},
		&stubAccount{}, model, &stubParser{}, &stubExecutor{}, j)

	if err := a.runCycle(context.Background()); err == nil {
		t.Fatal("行情采集失败应返回错误")
	}
	if model.calls != 0 {
		t.Error("行情失败后不应调用模型")
	}
	if len(j.errors) != 1 {
		t.Errorf("应记录一条异常事件: %v", j.errors)
	}
}

func TestRunCycleEmptySnapshot(t *testing.T) {
	j := &stubJournal{}
	model := &stubModel{}
	a := newTestAgent(t,
		&stubCollector{snapshot: market.Snapshot{}},
		&stubAccount{}, model, &stubParser{}, &stubExecutor{}, j)

	if err := a.runCycle(context.Background()); err == nil {
		t.Fatal("空行情快照应跳过本周期")
	}
	if model.calls != 0 {
		t.Error("空快照不应调用模型")
	}
}

func TestRunCycleExecFailureRecorded(t *testing.T) {
	j := &stubJournal{}
	a := newTestAgent(t,
		&stubCollector{snapshot: marketWithAssets()},
		&stubAccount{},
		&stubModel{raw: "输出"},
		&stubParser{decision: decision.TradingDecision{Symbol: "ETH", Action: decision.ActionBuy}},
		&stubExecutor{err: errors.New("中间价缺失")}, j)

	if err := a.runCycle(context.Background()); err == nil {
		t.Fatal("执行失败应返回错误")
	}
	if len(j.cycles) != 1 || j.cycles[0].ExecError == "" {
		t.Errorf("执行失败的周期也应落库: %+v", j.cycles)
	}
}
