package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

// logFilter drops entries below the configured level, per module when a
// module override is set. Entries suppressed on the console still reach
// the file writer, so the rotating log keeps the full trace.
type logFilter struct {
	formatter    logrus.Formatter
	defaultLevel Level
	moduleLevels map[string]Level

	fileWriter  io.Writer
	filterLevel Level
}

func newLogFilter(formatter logrus.Formatter) *logFilter {
	return &logFilter{
		formatter:    formatter,
		defaultLevel: TraceLevel,
		filterLevel:  TraceLevel,
		moduleLevels: make(map[string]Level),
	}
}

func (f *logFilter) levelFor(e *logrus.Entry) Level {
	module := ""
	if value, ok := e.Data[FieldKeyModule]; ok {
		module = value.(string)
	} else if e.HasCaller() {
		module = getPackageName(e.Caller.Function)
	}
	if module != "" {
		if lv, ok := f.moduleLevels[module]; ok {
			return lv
		}
	}
	return f.defaultLevel
}

func (f *logFilter) Format(e *logrus.Entry) ([]byte, error) {
	level := f.levelFor(e)
	if e.Level > logrus.Level(level) && f.fileWriter == nil {
		return nil, nil
	}
	buf, err := f.formatter.Format(e)
	if f.fileWriter != nil && len(buf) > 0 {
		f.fileWriter.Write(buf)
	}
	if e.Level > logrus.Level(level) {
		return nil, nil
	}
	return buf, err
}

func (f *logFilter) SetModuleLevel(module string, level Level) {
	f.moduleLevels[module] = level
}

func (f *logFilter) GetModuleLevel(module string) Level {
	if lv, ok := f.moduleLevels[module]; ok {
		return lv
	}
	return f.defaultLevel
}

func (f *logFilter) SetDefaultLevel(level Level) {
	f.defaultLevel = level
}

func (f *logFilter) GetDefaultLevel() Level {
	return f.defaultLevel
}

func (f *logFilter) SetFileWriter(writer io.Writer) error {
	f.fileWriter = writer
	return nil
}
