package journal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"alpha-arena/internal/config"
	"alpha-arena/internal/store"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("创建内存数据库失败: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	j, err := New(st, nil)
	if err != nil {
		t.Fatalf("初始化 journal 失败: %v", err)
	}
	return j
}

func TestRecordAndListCycles(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		record := CycleRecord{
			Agent:       "alpha",
			Market:      json.RawMessage(`{"assets":[]}`),
			Account:     json.RawMessage(`{"total_value":10000}`),
			RawResponse: "CHAIN_OF_THOUGHT ...",
			Decision:    json.RawMessage(`{"symbol":"ETH","action":"HOLD"}`),
		}
		if err := j.RecordCycle(ctx, record); err != nil {
			t.Fatalf("RecordCycle 失败: %v", err)
		}
	}
	if err := j.RecordCycle(ctx, CycleRecord{Agent: "beta", ParseError: "缺少推理块"}); err != nil {
		t.Fatalf("RecordCycle 失败: %v", err)
	}

	records, err := j.ListCycles(ctx, "alpha", 10)
	if err != nil {
		t.Fatalf("ListCycles 失败: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("记录数 = %d, 期望 3", len(records))
	}
	if records[0].Agent != "alpha" || len(records[0].Decision) == 0 {
		t.Errorf("记录内容异常: %+v", records[0])
	}

	all, err := j.ListCycles(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListCycles 失败: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("全部记录数 = %d, 期望 4", len(all))
	}
	// 倒序返回，最新的在前。
	if all[0].Agent != "beta" || all[0].ParseError != "缺少推理块" {
		t.Errorf("最新记录应为 beta 的解析失败: %+v", all[0])
	}
	if all[0].Decision != nil {
		t.Errorf("解析失败的周期不应有决策: %s", all[0].Decision)
	}
}

func TestRecordErrorDoesNotPanic(t *testing.T) {
	j := newTestJournal(t)

	j.RecordError(context.Background(), "alpha", "行情采集失败", errors.New("连接超时"))
	j.RecordError(context.Background(), "alpha", "无具体原因", nil)

	var count int
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM journal_events`).Scan(&count); err != nil {
		t.Fatalf("查询事件数失败: %v", err)
	}
	if count != 2 {
		t.Errorf("事件数 = %d, 期望 2", count)
	}
}
