package main

import (
	"log"
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/vaultctl"
)

func main() {

	app, err := vaultctl.NewApp(nil, os.Stdout, os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}

	os.Exit(app.Run(os.Args[1:]))

}
