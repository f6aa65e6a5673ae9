package main

import (
	_ "time/tzdata" // cron math needs IANA data even on scratch images

	"github.com/nextlevelbuilder/helperd/cmd"
)

func main() {
	cmd.Execute()
}
