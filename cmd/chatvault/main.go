// chatvault - command line front end for the conversation archive.
package main

import (
	"fmt"
	"os"

	"github.com/kittclouds/chatvault/internal/cli"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	cfg, err := cli.LoadConfig()
	if err != nil {
		fail(err)
	}

	switch cmd {
	case cli.CmdList:
		err = cli.HandleList(cfg, args)
	case cli.CmdShow:
		err = cli.HandleShow(cfg, args)
	case cli.CmdSearch:
		err = cli.HandleSearch(cfg, args)
	case cli.CmdBranch:
		err = cli.HandleBranch(cfg, args)
	case cli.CmdTitle:
		err = cli.HandleTitle(cfg, args)
	case cli.CmdDelete:
		err = cli.HandleDelete(cfg, args)
	case cli.CmdStats:
		err = cli.HandleStats(cfg, args)
	case cli.CmdCheck:
		err = cli.HandleCheck(cfg, args)
	case cli.CmdExport:
		err = cli.HandleExport(cfg, args)
	case cli.CmdImport:
		err = cli.HandleImport(cfg, args)
	case cli.CmdConfig:
		err = cli.HandleConfig(cfg, args)
	case cli.CmdVersion:
		err = cli.HandleVersion(args)
	case cli.CmdHelp:
		cli.PrintUsage()
	}

	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "chatvault: %v\n", err)
	os.Exit(1)
}
