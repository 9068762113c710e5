// Command gogate runs the authentication and real-time presence server and
// its administration tasks.
//
//	gogate serve --config gogate.yaml
//	gogate serve --dev
//	echo -n 's3cret-passphrase' | gogate provision --identifier ops --label "Ops desk"
//	gogate unlock <principal-id>
//	echo -n 's3cret-passphrase' | gogate hash
//
// Settings come from the YAML file and GOGATE_* environment variables
// (GOGATE_JWT_ACCESS_TTL=2m, GOGATE_REDIS_ADDRS=...).
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	gglog "github.com/MrEthical07/goGate/internal/log"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "gogate:", err)
		stop()
		os.Exit(1)
	}
}

type app struct {
	configFile string
	settings   settings
	log        zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "gogate",
		Short:             "Session, passkey and presence server",
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "path to a YAML config file")
	pf.Bool("dev", false, "in-process Redis, generated keys and a seeded admin")
	pf.String("log-level", "", "trace, debug, info, warn or error")
	pf.Bool("log-json", false, "write JSON log lines")

	root.AddCommand(a.serveCmd(), a.provisionCmd(), a.unlockCmd(), a.hashCmd())
	return root
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	v, err := newViper(a.configFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	for key, name := range map[string]string{
		"dev":       "dev",
		"log.level": "log-level",
		"log.json":  "log-json",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return err
		}
	}

	a.settings, err = loadSettings(v)
	if err != nil {
		return err
	}
	a.log, err = gglog.New(gglog.Options{
		Level:  a.settings.Log.Level,
		JSON:   a.settings.Log.JSON,
		Writer: cmd.ErrOrStderr(),
	})
	return err
}

func randomKey(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
