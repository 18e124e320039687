package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/kubetraining/sitesync/errors"
	"github.com/kubetraining/sitesync/synctypes"
)

// targets prints every configured environment with redacted credentials.
func (a *app) targets(c *cli.Context) error {
	cfg, err := a.loadConfig(c)
	if err != nil {
		return err
	}

	names := cfg.TargetNames()
	if len(names) == 0 {
		fmt.Fprintln(a.stdout, "no targets configured")
		return nil
	}

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENV\tBUCKET\tPREFIX\tENDPOINT\tREGION\tACCESS KEY\tSTATUS")
	for _, env := range names {
		target, _, err := cfg.Target(string(env))
		status := "ok"
		if err != nil {
			raw := cfg.Targets[env]
			target = synctypes.Target{
				Name:     env,
				Bucket:   raw.Bucket,
				Prefix:   raw.Prefix,
				Endpoint: raw.Endpoint,
				Region:   raw.Region,
			}
			status = "missing credentials"
		}

		creds := target.Credentials.Redacted()
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			env, target.Bucket, orDash(target.NormalizedPrefix()), orDash(target.Endpoint),
			orDash(target.Region), orDash(creds.AccessKey), status)
	}
	if err := w.Flush(); err != nil {
		return errors.New("list targets", errors.KindInternal, err)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
