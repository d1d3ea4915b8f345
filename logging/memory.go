package logging

import (
	"context"
	"sync"
)

// Entry 内存日志条目
type Entry struct {
	Level   Level
	Message string
	Fields  map[string]any
}

// MemoryLogger 将日志保存在内存中，测试用来断言“被吞掉的错误确实记录过”。
// 通过 WithFields 派生的日志器共享同一份条目列表。
type MemoryLogger struct {
	sink   *memorySink
	fields []Field
}

type memorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{sink: &memorySink{}}
}

func (l *MemoryLogger) record(level Level, msg string, fields []Field) {
	merged := make(map[string]any, len(l.fields)+len(fields))
	for _, f := range l.fields {
		merged[f.Key] = f.Value
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	l.sink.mu.Lock()
	l.sink.entries = append(l.sink.entries, Entry{Level: level, Message: msg, Fields: merged})
	l.sink.mu.Unlock()
}

func (l *MemoryLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.record(DebugLevel, msg, fields)
}

func (l *MemoryLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.record(InfoLevel, msg, fields)
}

func (l *MemoryLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.record(WarnLevel, msg, fields)
}

func (l *MemoryLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.record(ErrorLevel, msg, fields)
}

func (l *MemoryLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &MemoryLogger{sink: l.sink, fields: merged}
}

// Entries 返回已记录条目的副本
func (l *MemoryLogger) Entries() []Entry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	out := make([]Entry, len(l.sink.entries))
	copy(out, l.sink.entries)
	return out
}

// Filter 返回指定级别的条目
func (l *MemoryLogger) Filter(level Level) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
