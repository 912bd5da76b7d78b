package logging

import "go.uber.org/zap"

var Log *zap.Logger = zap.NewNop()

// Init builds the process-wide production logger.
func Init(ginMode string) *zap.Logger {
	var l *zap.Logger
	var err error
	if ginMode == "release" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}
