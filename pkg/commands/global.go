package commands

import (
	"fmt"
	"path"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func GlobalFlags() []cli.Flag {
	globalFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log Level",
			Aliases: []string{"l"},
			EnvVars: []string{"ACORN_NAMES_LOG_LEVEL", "LOGLEVEL"},
			Value:   "info",
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "json or text",
			EnvVars: []string{"ACORN_NAMES_LOG_FORMAT"},
			Value:   "json",
		},
		&cli.BoolFlag{
			Name:    "log-caller",
			Usage:   "log the caller (aka line number and file)",
			EnvVars: []string{"ACORN_NAMES_LOG_CALLER"},
		},
	}

	return globalFlags
}

func callerPrettyfier(f *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", path.Base(f.File), f.Line)
}

func Before(c *cli.Context) error {
	var formatter logrus.Formatter
	switch c.String("log-format") {
	case "json":
		f := &logrus.JSONFormatter{}
		if c.Bool("log-caller") {
			f.CallerPrettyfier = callerPrettyfier
		}
		formatter = f
	case "text":
		f := &logrus.TextFormatter{FullTimestamp: true}
		if c.Bool("log-caller") {
			f.CallerPrettyfier = callerPrettyfier
		}
		formatter = f
	default:
		return fmt.Errorf("unknown --log-format %q", c.String("log-format"))
	}

	logrus.SetReportCaller(c.Bool("log-caller"))
	logrus.SetFormatter(formatter)

	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	return nil
}
