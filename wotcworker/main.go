package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/wotcworks/wotc-app/conf"
	"github.com/wotcworks/wotc-app/log"
	"github.com/wotcworks/wotc-app/wotc/archive"
	"github.com/wotcworks/wotc-app/wotc/database"
	"github.com/wotcworks/wotc-app/wotc/notification"
	"github.com/wotcworks/wotc-app/wotc/repository/postgres"
	"github.com/wotcworks/wotc-app/wotc/vault"
	"github.com/wotcworks/wotc-app/wotcworker/queueing"
	"github.com/wotcworks/wotc-app/wotcworker/worker"
)

func main() {
	fmt.Println("Starting wotcworker...")

	db := database.GetDbConnection()
	repo := postgres.NewRepository(db)

	key, err := vault.LoadKey()
	if err != nil {
		logrus.Fatal(err)
	}
	v := vault.New(db, repo, key)

	queDB := database.GetQueuePool()
	enqueuer := queueing.NewEnqueuer(queDB)

	w := worker.NewWorker(db, v, newSaver(), newNotifier(), enqueuer)

	master := queueing.StartQue(log.Worker, w, queDB, getEnvInt("WORKER_POOL_SIZE", 2))
	defer master.StopQue()

	waitForSig()
}

// newSaver prefers the S3 archive when a bucket is configured.
func newSaver() archive.Saver {
	if bucket := conf.GetEnv("WOTC_ARCHIVE_BUCKET"); bucket != "" {
		return &archive.S3Saver{
			Bucket:        bucket,
			Endpoint:      conf.GetEnv("WOTC_ARCHIVE_S3_ENDPOINT"),
			AssumeRoleArn: conf.GetEnv("WOTC_ARCHIVE_ROLE_ARN"),
			Logger:        log.Worker,
		}
	}
	baseDir := conf.GetEnv("WOTC_ARCHIVE_DIR")
	if baseDir == "" {
		baseDir = "/var/wotc/archive"
	}
	return &archive.LocalSaver{BaseDir: baseDir, Logger: log.Worker}
}

// newNotifier adds the Slack alerter when a token is configured; the
// structured log stream is always emitted by the worker regardless.
func newNotifier() notification.Notifier {
	if token := conf.GetEnv("WOTC_SLACK_TOKEN"); token != "" {
		return notification.NewSlackNotifier(
			token,
			conf.GetEnv("WOTC_SLACK_OPERATIONS_CHANNEL"),
			conf.GetEnv("WOTC_SLACK_ALERTS_CHANNEL"),
			conf.GetEnv("DEPLOYMENT_TARGET"),
			log.Worker,
		)
	}
	return &notification.LogNotifier{Logger: log.Worker}
}

func getEnvInt(key string, fallback int) int {
	if value, err := strconv.Atoi(conf.GetEnv(key)); err == nil {
		return value
	}
	return fallback
}

func waitForSig() {
	signalChan := make(chan os.Signal, 1)
	defer close(signalChan)

	signal.Notify(signalChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	exitChan := make(chan int)
	defer close(exitChan)

	go func() {
		for {
			s := <-signalChan
			switch s {
			case syscall.SIGINT:
				fmt.Println("interrupt")
				exitChan <- 0
			case syscall.SIGTERM:
				fmt.Println("force stop")
				exitChan <- 0
			case syscall.SIGQUIT:
				fmt.Println("stop and core dump")
				exitChan <- 0
			}
		}
	}()

	code := <-exitChan
	os.Exit(code)
}
