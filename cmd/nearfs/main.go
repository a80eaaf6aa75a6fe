package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("nearfs/cli")

// IsVeryVerbose is a global var signalling if the CLI is running in very
// verbose mode or not (default: false).
var IsVeryVerbose bool

// FlagVeryVerbose enables very verbose mode, which is useful when debugging
// the CLI itself. It should be included as a flag on the top-level command
// (e.g. nearfs -vv).
var FlagVeryVerbose = &cli.BoolFlag{
	Name:        "vv",
	Usage:       "enables very verbose mode, useful for debugging the CLI",
	Destination: &IsVeryVerbose,
}

var subsystems = []string{
	"nearfs/cli",
	"nearfs/handler",
	"nearfs/resolver",
	"nearfs/ingest",
	"nearfs/carimport",
	"nearfs/carwriter",
	"nearfs/s3store",
}

func main() {
	app := &cli.App{
		Name:                 "nearfs",
		Usage:                "IPFS gateway for files stored on NEAR",
		EnableBashCompletion: true,
		Flags:                append([]cli.Flag{FlagVeryVerbose}, storageFlags...),
		Commands: []*cli.Command{
			initCmd,
			serverCmd,
			importCmd,
			exportCmd,
			getCmd,
			loadLakeCmd,
		},
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func before(cctx *cli.Context) error {
	for _, subsystem := range subsystems {
		_ = logging.SetLogLevel(subsystem, "INFO")
	}

	if IsVeryVerbose {
		for _, subsystem := range subsystems {
			_ = logging.SetLogLevel(subsystem, "DEBUG")
		}
	}

	return nil
}
