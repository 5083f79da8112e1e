package whatsapp

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/zhaopengme/hiperboot/pkg/logger"
)

// logAdapter routes whatsmeow's internal logging into the process logger.
// whatsmeow's INFO output is chatty, so it is demoted to DEBUG.
type logAdapter struct {
	module string
}

func NewLogAdapter(module string) waLog.Logger {
	return &logAdapter{module: module}
}

func (l *logAdapter) Errorf(msg string, args ...interface{}) {
	logger.ErrorC(l.module, fmt.Sprintf(msg, args...))
}

func (l *logAdapter) Warnf(msg string, args ...interface{}) {
	logger.WarnC(l.module, fmt.Sprintf(msg, args...))
}

func (l *logAdapter) Infof(msg string, args ...interface{}) {
	logger.DebugC(l.module, fmt.Sprintf(msg, args...))
}

func (l *logAdapter) Debugf(msg string, args ...interface{}) {
	logger.DebugC(l.module, fmt.Sprintf(msg, args...))
}

func (l *logAdapter) Sub(module string) waLog.Logger {
	return &logAdapter{module: l.module + "/" + module}
}
