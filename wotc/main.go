package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/wotcworks/wotc-app/wotc/wotccli"
)

func main() {
	if err := wotccli.GetApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
