package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"

	"logsweep/internal/app"
	"logsweep/internal/config"
	"logsweep/internal/sweep"
	logx "logsweep/pkg/logx"
)

func main() {
	var (
		cfgPath string
		dotEnv  string
		mode    string
	)
	flag.StringVar(&cfgPath, "config", "", "optional YAML or JSON config file")
	flag.StringVar(&dotEnv, "env-file", ".env", "dotenv file loaded before the environment is read")
	flag.StringVar(&mode, "mode", defaultMode(), "once | daemon | lambda")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, mode, app.Options{ConfigFile: cfgPath, DotEnv: dotEnv}))
}

func run(ctx context.Context, mode string, opts app.Options) int {
	log := logx.NewConsole("info")

	switch mode {
	case "once", "daemon", "lambda":
	default:
		log.Error("unknown mode", logx.String("mode", mode))
		return 2
	}

	a, err := app.New(ctx, opts)
	if err != nil {
		var ce *config.Error
		if errors.As(err, &ce) {
			log.Error("invalid configuration", logx.Err(err))
		} else {
			log.Error("startup failed", logx.Err(err))
		}
		return 1
	}
	defer a.Close()

	switch mode {
	case "lambda":
		lambda.StartWithOptions(a.LambdaHandler(), lambda.WithContext(ctx))
		return 0
	case "daemon":
		if err := a.RunDaemon(ctx); err != nil {
			log.Error("daemon failed", logx.Err(err))
			return 1
		}
		return 0
	default:
		res := a.RunOnce(ctx)
		if res.Outcome == sweep.OutcomeFault {
			log.Error("sweep failed", logx.String("run_id", res.RunID), logx.Err(res.Fault))
			return 1
		}
		return 0
	}
}

// defaultMode picks lambda inside the Lambda runtime so the same binary can
// be deployed without flags.
func defaultMode() string {
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		return "lambda"
	}
	return "once"
}
