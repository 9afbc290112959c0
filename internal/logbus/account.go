package logbus

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Record 账号审计日志中的一行（JSONL）。
type Record struct {
	Timestamp string         `json:"timestamp"`
	AccountID string         `json:"account_id"`
	Level     string         `json:"level"`
	Phase     string         `json:"phase,omitempty"`
	Msg       string         `json:"msg"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// AccountLogger 单个账号的追加写日志：文件、总线、控制台三路输出。
// 同一账号的记录由 mu 串行化，保证文件内顺序与时间单调一致。
type AccountLogger struct {
	accountID string
	bus       *Bus
	console   io.Writer

	mu   sync.Mutex
	file *os.File
	last time.Time
	now  func() time.Time
}

type AccountLoggerOptions struct {
	Dir     string
	Bus     *Bus
	Console io.Writer
}

// OpenAccountLogger 打开 <dir>/account_<id>.jsonl；dir 为空时只写总线和控制台。
func OpenAccountLogger(accountID string, opts AccountLoggerOptions) (*AccountLogger, error) {
	l := &AccountLogger{
		accountID: accountID,
		bus:       opts.Bus,
		console:   opts.Console,
		now:       time.Now,
	}
	if opts.Dir == "" {
		return l, nil
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(opts.Dir, fmt.Sprintf("account_%s.jsonl", accountID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l.file = f
	return l, nil
}

func (l *AccountLogger) AccountID() string {
	if l == nil {
		return ""
	}
	return l.accountID
}

func (l *AccountLogger) Info(phase, msg string, fields map[string]any) {
	l.write("info", phase, msg, fields)
}

func (l *AccountLogger) Warn(phase, msg string, fields map[string]any) {
	l.write("warn", phase, msg, fields)
}

func (l *AccountLogger) Error(phase, msg string, fields map[string]any) {
	l.write("error", phase, msg, fields)
}

func (l *AccountLogger) Debug(phase, msg string, fields map[string]any) {
	l.write("debug", phase, msg, fields)
}

func (l *AccountLogger) write(level, phase, msg string, fields map[string]any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now().UTC()
	if ts.Before(l.last) {
		ts = l.last
	}
	l.last = ts

	if l.file != nil {
		rec := Record{
			Timestamp: ts.Format(time.RFC3339Nano),
			AccountID: l.accountID,
			Level:     level,
			Phase:     phase,
			Msg:       msg,
			Fields:    fields,
		}
		if b, err := json.Marshal(rec); err == nil {
			b = append(b, '\n')
			_, _ = l.file.Write(b)
		}
	}
	if l.bus != nil {
		l.bus.Publish("log", LogData{Level: level, AccountID: l.accountID, Phase: phase, Msg: msg, Fields: fields})
	}
	if l.console != nil && level != "debug" {
		_, _ = fmt.Fprintf(l.console, "[%s] %s: %s\n", l.accountID, strings.ToUpper(level), msg)
	}
}

func (l *AccountLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
