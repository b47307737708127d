// Command ddc controls a local docker-compose Django stack and deploys it to
// a remote host over SSH.
package main

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nickalie/ddc/internal/platform/cli"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// newLogger returns a development logger at debug level when verbose and a
// production logger that only reports warnings otherwise.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// run executes the command line and returns the process exit code
func run(args []string, stderr io.Writer, opts ...cli.AppOption) int {
	cli.Version = version
	app := cli.NewApp(append([]cli.AppOption{cli.WithLoggerFactory(newLogger)}, opts...)...)

	if err := app.Execute(args); err != nil {
		cli.PrintError(stderr, err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}
