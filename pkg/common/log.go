package common

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// InitLogger builds a *logrus.Logger for one Client instance, tagged
// with appName so multiple clients in one process can be told apart in
// shared output.
func InitLogger(level, appName string) (*log.Logger, error) {
	logger := log.New()
	switch strings.ToLower(level) {
	case "trace":
		logger.SetLevel(log.TraceLevel)
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info", "":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	case "fatal":
		logger.SetLevel(log.FatalLevel)
	case "panic":
		logger.SetLevel(log.PanicLevel)
	default:
		return nil, fmt.Errorf("unsupported log level %q", level)
	}
	logger.SetFormatter(&ProxyLogFormatter{AppName: appName})
	return logger, nil
}

// ProxyLogFormatter is a compact single-line formatter, in the style of
// the teacher's MyLogFormatter, so client log lines interleave sanely
// with an embedding application's own logging.
type ProxyLogFormatter struct {
	AppName string
}

func (f *ProxyLogFormatter) Format(entry *log.Entry) ([]byte, error) {
	year, month, day := entry.Time.Date()
	hour, minute, second := entry.Time.Clock()
	str := fmt.Sprintf("%d/%02d/%02d %02d:%02d:%02d %s [%s] %s\n", year, month, day, hour, minute, second,
		strings.ToUpper(entry.Level.String()), f.AppName, entry.Message)
	return []byte(str), nil
}
