package main

import (
	"log"
	"os"

	"lmsportal/internal/config"
	"lmsportal/internal/lmsapi"
	"lmsportal/internal/logsvc"
	"lmsportal/internal/session"
)

func main() {
	cfg := config.Load()

	logger := log.New(os.Stderr, "LMSCTL : ", log.LstdFlags)
	errs := logsvc.New(cfg.RollbarToken, cfg.Env)
	defer errs.Close()

	cli := commandLine{
		api:       lmsapi.New(cfg.APIBaseURL, cfg.APITimeout),
		store:     session.NewFile(cfg.CtlHome),
		log:       errs,
		out:       os.Stdout,
		in:        os.Stdin,
		socketURL: cfg.SocketURL,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("error: %s", err)
		}
		errs.Close()
		os.Exit(1)
	}
}
