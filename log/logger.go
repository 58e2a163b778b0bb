package log

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/wotcworks/wotc-app/conf"
)

var (
	Orchestrator logrus.FieldLogger
	Vault        logrus.FieldLogger
	Channel      logrus.FieldLogger
	Worker       logrus.FieldLogger
	Audit        logrus.FieldLogger
)

func init() {
	Orchestrator = Logger(logrus.New(), conf.GetEnv("WOTC_ERROR_LOG"),
		"orchestrator", conf.GetEnv("ENVIRONMENT"))
	Vault = Logger(logrus.New(), conf.GetEnv("WOTC_VAULT_LOG"),
		"vault", conf.GetEnv("ENVIRONMENT"))
	Channel = Logger(logrus.New(), conf.GetEnv("WOTC_CHANNEL_LOG"),
		"channel", conf.GetEnv("ENVIRONMENT"))

	Worker = Logger(logrus.New(), conf.GetEnv("WOTC_WORKER_ERROR_LOG"),
		"worker", conf.GetEnv("ENVIRONMENT"))

	auditBase := logrus.New()
	auditBase.Formatter = &logrus.JSONFormatter{}
	Audit = Logger(auditBase, conf.GetEnv("WOTC_AUDIT_LOG"),
		"audit", conf.GetEnv("ENVIRONMENT"))
}

func Logger(logger *logrus.Logger, outputFile string,
	application, environment string) logrus.FieldLogger {

	if outputFile != "" {
		if file, err := os.OpenFile(filepath.Clean(outputFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640); err == nil {
			logger.SetOutput(file)
		} else {
			logger.Infof("Failed to open output file %s. Will use stderr. %s",
				outputFile, err.Error())
		}
	}

	return logger.WithFields(logrus.Fields{
		"application": application,
		"environment": environment})
}
