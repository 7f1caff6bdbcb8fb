// Package journal 把每个决策周期完整落库：行情快照、账户状态、
// 模型原始输出、解析结果与执行结果。无论周期在哪一步失败，
// 都要留下可回放的记录。
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alpha-arena/internal/store"
)

// CycleRecord 是一个决策周期的完整记录。
type CycleRecord struct {
	ID          int64           `json:"id,omitempty"`
	Agent       string          `json:"agent"`
	Market      json.RawMessage `json:"market,omitempty"`
	Account     json.RawMessage `json:"account,omitempty"`
	RawResponse string          `json:"raw_response,omitempty"`
	Decision    json.RawMessage `json:"decision,omitempty"`
	ParseError  string          `json:"parse_error,omitempty"`
	Outcome     json.RawMessage `json:"outcome,omitempty"`
	ExecError   string          `json:"exec_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Journal 负责周期记录与异常事件的持久化。
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
}

// New 初始化日志存储，创建所需表结构。
func New(st *store.Store, logger *zap.Logger) (*Journal, error) {
	if st == nil {
		return nil, fmt.Errorf("journal: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	j := &Journal{
		db:     st.DB(),
		logger: logger,
	}

	if err := j.initSchema(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS agent_cycles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent TEXT NOT NULL,
	market TEXT,
	account TEXT,
	raw_response TEXT,
	decision TEXT,
	parse_error TEXT,
	outcome TEXT,
	exec_error TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_cycles_agent ON agent_cycles(agent);

CREATE TABLE IF NOT EXISTS journal_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent TEXT NOT NULL,
	message TEXT NOT NULL,
	error TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`
	if _, err := j.db.Exec(stmt); err != nil {
		return fmt.Errorf("journal: 初始化表失败: %w", err)
	}
	return nil
}

// RecordCycle 写入一个完整的周期记录。
func (j *Journal) RecordCycle(ctx context.Context, record CycleRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO agent_cycles
		 (agent, market, account, raw_response, decision, parse_error, outcome, exec_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Agent,
		nullableJSON(record.Market),
		nullableJSON(record.Account),
		record.RawResponse,
		nullableJSON(record.Decision),
		record.ParseError,
		nullableJSON(record.Outcome),
		record.ExecError,
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: 写入周期记录失败: %w", err)
	}
	return nil
}

// RecordError 写入一条异常事件。落库失败只记日志，不向上传播，
// 避免记录动作本身拖垮交易周期。
func (j *Journal) RecordError(ctx context.Context, agent, msg string, cause error) {
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO journal_events (agent, message, error, created_at) VALUES (?, ?, ?, ?)`,
		agent, msg, errText, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		j.logger.Warn("记录异常事件失败", zap.Error(err))
	}
}

// ListCycles 按时间倒序检索最近的周期记录，agent 为空时不过滤。
func (j *Journal) ListCycles(ctx context.Context, agent string, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, agent, market, account, raw_response, decision, parse_error, outcome, exec_error, created_at
	          FROM agent_cycles`
	args := make([]interface{}, 0, 2)
	if agent != "" {
		query += ` WHERE agent = ?`
		args = append(args, agent)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询周期记录失败: %w", err)
	}
	defer rows.Close()

	records := make([]CycleRecord, 0, limit)
	for rows.Next() {
		var (
			record  CycleRecord
			market  sql.NullString
			account sql.NullString
			dec     sql.NullString
			outcome sql.NullString
			created string
		)
		if scanErr := rows.Scan(&record.ID, &record.Agent, &market, &account,
			&record.RawResponse, &dec, &record.ParseError, &outcome, &record.ExecError, &created); scanErr != nil {
			return nil, fmt.Errorf("journal: 解析周期记录失败: %w", scanErr)
		}

		record.Market = rawJSON(market)
		record.Account = rawJSON(account)
		record.Decision = rawJSON(dec)
		record.Outcome = rawJSON(outcome)

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}
		record.CreatedAt = ts

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: 读取周期记录失败: %w", err)
	}
	return records, nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func rawJSON(v sql.NullString) json.RawMessage {
	if !v.Valid || v.String == "" {
		return nil
	}
	return json.RawMessage(v.String)
}
