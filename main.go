package main

import (
	"fmt"
	"os"
	"time"

	logger "github.com/sirupsen/logrus"

	"signalexecutor/cmd/executor"
	"signalexecutor/src/database"
	"signalexecutor/src/server"
	"signalexecutor/src/utils"
)

var (
	APP_NAME = os.Getenv("APP_NAME")
)

func main() {
	dbConfig := database.GetConfig()
	utils.SetupLogger(dbConfig.LogLevel, dbConfig.LogFormat)
	defer handlePanic()

	rt, err := executor.Bootstrap()
	if err != nil {
		logger.WithError(err).Fatal("Failed to bootstrap")
	}

	server.StartServer(server.GetConfig().Port, server.NewRouter(rt.DB, rt.Engine, rt.Fleet))
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
